// Package pebblestore wraps Pebble with the durability policy and the small
// helper surface the rest of Oxbow needs: point reads/writes, atomic batches,
// range iteration, and whole-prefix deletion for stream expiry. A MetricsHook
// seam lets callers observe read/write/commit latencies without the store
// depending on any metrics library.
package pebblestore
