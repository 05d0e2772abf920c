// Package client contains Cobra CLI commands for oxbow.
package client
