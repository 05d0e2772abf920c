package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oxbow-io/oxbow/internal/runtime"
	bufsvc "github.com/oxbow-io/oxbow/internal/services/buffers"
	"github.com/oxbow-io/oxbow/internal/streambuf"
)

// StreamsController handles the stream buffer endpoints: append, finalize,
// resume, tail, stats, and raw SSE ingest.
type StreamsController struct {
	rt  *runtime.Runtime
	svc *bufsvc.Service
}

// NewStreamsController creates a new streams controller.
func NewStreamsController(rt *runtime.Runtime, svc *bufsvc.Service) *StreamsController {
	return &StreamsController{rt: rt, svc: svc}
}

// RegisterRoutes registers stream routes with the given mux.
func (c *StreamsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/streams/append", c.handleAppend)
	mux.HandleFunc("/v1/streams/finalize", c.handleFinalize)
	mux.HandleFunc("/v1/streams/resume", c.handleResume)
	mux.HandleFunc("/v1/streams/tail", c.handleTail)
	mux.HandleFunc("/v1/streams/stats", c.handleStats)
	mux.HandleFunc("/v1/streams/ingest", c.handleIngest)
}

type appendEventReq struct {
	ID    string `json:"id"`
	Block string `json:"block"`
}

type appendReq struct {
	Stream string           `json:"stream"`
	Events []appendEventReq `json:"events"`
}

// handleAppend merges a batch of blocks into the stream's buffer.
//
// Returns {"ok": true, "count": N} where N is the post-merge event count.
// Duplicate ids are absorbed silently; appending to a finalized stream is a
// 409 conflict.
func (c *StreamsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req appendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	events := make([]streambuf.AppendEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, streambuf.AppendEvent{ID: ev.ID, Payload: []byte(ev.Block)})
	}
	count, err := c.svc.Append(r.Context(), req.Stream, events)
	if err != nil {
		writeBufferError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "count": count})
}

type finalizeReq struct {
	Stream string `json:"stream"`
}

// handleFinalize marks a stream complete. Idempotent; returns 204.
func (c *StreamsController) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req finalizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.svc.Finalize(r.Context(), req.Stream); err != nil {
		writeBufferError(w, err)
		return
	}
	writeNoContent(w)
}

// handleResume streams a buffer over SSE: buffered blocks from the caller's
// cursor first, then live blocks until the stream finalizes or the client
// goes away. The cursor comes from the Last-Event-ID header (or the
// last_event_id query parameter); an unknown cursor replays from the start.
func (c *StreamsController) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stream := r.URL.Query().Get("stream")
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}
	sub, err := c.svc.Resume(stream, lastEventID)
	if err != nil {
		writeBufferError(w, err)
		return
	}
	defer sub.Cancel()

	sse := newSSEWriter(w)
	for _, ev := range sub.Replay {
		if err := sse.WriteBlock(ev.Payload); err != nil {
			return
		}
	}
	sse.Flush()
	if sub.Finalized {
		return
	}
	for {
		select {
		case ev, ok := <-sub.Live:
			if !ok {
				return
			}
			if err := sse.WriteBlock(ev.Payload); err != nil {
				return
			}
			sse.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

type tailEvent struct {
	ID          string `json:"id"`
	Seq         uint64 `json:"seq"`
	CreatedAtMs int64  `json:"createdAtMs"`
	Block       string `json:"block"`
}

// handleTail streams a buffer's events as JSON data frames, optionally
// filtered by a CEL expression in the filter query parameter. Meant for
// debugging; resume is the production surface.
func (c *StreamsController) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stream := r.URL.Query().Get("stream")
	sub, match, err := c.svc.Tail(stream, r.URL.Query().Get("filter"))
	if err != nil {
		switch {
		case errors.Is(err, streambuf.ErrInvalidStream),
			errors.Is(err, streambuf.ErrExpired),
			errors.Is(err, streambuf.ErrClosed):
			writeBufferError(w, err)
		default:
			// Filter compile errors land here.
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	defer sub.Cancel()

	sse := newSSEWriter(w)
	send := func(ev streambuf.Event) error {
		if !match(ev) {
			return nil
		}
		b, _ := json.Marshal(tailEvent{ID: ev.ID, Seq: ev.Seq, CreatedAtMs: ev.CreatedAtMs, Block: string(ev.Payload)})
		return sse.WriteEvent("entry", b)
	}
	for _, ev := range sub.Replay {
		if err := send(ev); err != nil {
			return
		}
	}
	sse.Flush()
	if sub.Finalized {
		return
	}
	for {
		select {
		case ev, ok := <-sub.Live:
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				return
			}
			sse.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleStats returns a JSON snapshot of one buffer.
func (c *StreamsController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st, err := c.svc.Stats(r.URL.Query().Get("stream"))
	if err != nil {
		writeBufferError(w, err)
		return
	}
	writeJSON(w, st)
}

// handleIngest consumes the request body as a raw SSE byte stream, batching
// its blocks into the buffer and finalizing when the body ends.
func (c *StreamsController) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		writeError(w, http.StatusBadRequest, "stream is required")
		return
	}
	if err := c.svc.Ingest(r.Context(), stream, r.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeNoContent(w)
}
