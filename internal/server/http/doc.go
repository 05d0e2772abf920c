// Package httpserver provides HTTP endpoints for appending to, finalizing,
// and resuming stream buffers, including the SSE resume surface and the
// chat-stream fallback for messages whose stream has already finalized.
package httpserver
