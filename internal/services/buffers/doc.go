// Package bufsvc provides the application-facing operations over stream
// buffers: append, finalize, resume, tail with optional CEL filtering,
// stats, and raw SSE ingest. It owns slow-operation logging; the buffer
// actors below it stay free of policy.
package bufsvc
