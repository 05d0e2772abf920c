// Package serverrun boots the single-node server: storage, runtime, and
// the HTTP surface, with signal-aware shutdown.
package serverrun
