package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oxbow-io/oxbow/internal/messages"
	"github.com/oxbow-io/oxbow/internal/runtime"
	bufsvc "github.com/oxbow-io/oxbow/internal/services/buffers"
	idpkg "github.com/oxbow-io/oxbow/pkg/id"
)

// MessagesController handles persisted messages and the chat-stream resume
// surface that falls back to them.
type MessagesController struct {
	rt  *runtime.Runtime
	svc *bufsvc.Service
}

// NewMessagesController creates a new messages controller.
func NewMessagesController(rt *runtime.Runtime, svc *bufsvc.Service) *MessagesController {
	return &MessagesController{rt: rt, svc: svc}
}

// RegisterRoutes registers message routes with the given mux.
func (c *MessagesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", c.handlePut)
	mux.HandleFunc("GET /v1/messages/{id}", c.handleGet)
	mux.HandleFunc("GET /v1/chats/stream", c.handleChatStream)
}

// handlePut upserts a message record. An absent id is generated.
func (c *MessagesController) handlePut(w http.ResponseWriter, r *http.Request) {
	var m messages.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if m.ID == "" {
		m.ID = idpkg.New()
	}
	if m.UpdatedAtMs == 0 {
		m.UpdatedAtMs = time.Now().UnixMilli()
	}
	if err := c.rt.Messages().Put(r.Context(), m); err != nil {
		if errors.Is(err, messages.ErrInvalidMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, m)
}

// handleGet loads one message by id.
func (c *MessagesController) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := c.rt.Messages().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, m)
}

// handleChatStream resumes the SSE stream behind a message. While the
// message still has an active stream the request attaches to that buffer
// like a normal resume. Once the stream is gone the persisted message is
// replayed as a single synthesized appendMessage event; a missing message
// yields 204 so the client stops retrying.
func (c *MessagesController) handleChatStream(w http.ResponseWriter, r *http.Request) {
	msgID := r.URL.Query().Get("message_id")
	if msgID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	m, err := c.rt.Messages().Get(r.Context(), msgID)
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			writeNoContent(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	if m.ActiveStreamID == "" {
		payload, err := json.Marshal(map[string]any{"message": m})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "storage failure")
			return
		}
		sse := newSSEWriter(w)
		_ = sse.WriteEvent("appendMessage", payload)
		sse.Flush()
		return
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}
	sub, err := c.svc.Resume(m.ActiveStreamID, lastEventID)
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
