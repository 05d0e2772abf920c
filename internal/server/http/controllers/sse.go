package controllers

import (
	"net/http"
)

// sseWriter writes server-sent-event frames to an HTTP response.
type sseWriter struct {
	w http.ResponseWriter
}

// newSSEWriter sets the SSE response headers and returns a writer.
func newSSEWriter(w http.ResponseWriter) sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return sseWriter{w: w}
}

// WriteBlock sends one pre-framed block. The payload already carries its
// "id:" and "data:" lines; only the terminating blank line is added.
func (s sseWriter) WriteBlock(block []byte) error {
	if _, err := s.w.Write(block); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n\n"))
	return err
}

// WriteEvent sends a named event with a data line.
func (s sseWriter) WriteEvent(event string, data []byte) error {
	if event != "" {
		if _, err := s.w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n\n"))
	return err
}

// Flush pushes buffered frames to the client.
func (s sseWriter) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
