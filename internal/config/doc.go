// Package config loads the Oxbow runtime configuration from built-in
// defaults, an optional JSON file, and OXBOW_* environment overrides,
// applied in that order.
package config
