// Package client is a thin HTTP client for the stream buffer service. It
// covers the producer side (append, finalize, ingest) and the consumer side
// (resume with a cursor, chat-stream resume with message fallback).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oxbow-io/oxbow/internal/batcher"
	"github.com/oxbow-io/oxbow/internal/messages"
	"github.com/oxbow-io/oxbow/internal/streambuf"
)

var (
	// ErrConflict is returned for appends against a finalized stream.
	ErrConflict = errors.New("client: stream already finalized")
	// ErrGone is returned when the stream's buffer has expired.
	ErrGone = errors.New("client: stream expired")
	// ErrNotFound is returned for missing messages.
	ErrNotFound = errors.New("client: not found")
	// ErrUnavailable is returned for transport failures and 5xx responses.
	ErrUnavailable = errors.New("client: service unavailable")
)

// Event is one append entry: an SSE block keyed by its id line.
type Event struct {
	ID    string `json:"id"`
	Block string `json:"block"`
}

// Client talks to one service instance.
type Client struct {
	base string
	hc   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a client for the given base URL.
func New(base string, opts ...Option) *Client {
	c := &Client{base: base, hc: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Append merges events into a stream and returns the post-merge count.
func (c *Client) Append(ctx context.Context, stream string, events []Event) (int, error) {
	body, err := json.Marshal(map[string]any{"stream": stream, "events": events})
	if err != nil {
		return 0, err
	}
	resp, err := c.post(ctx, "/v1/streams/append", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Finalize marks a stream complete. Idempotent on the server.
func (c *Client) Finalize(ctx context.Context, stream string) error {
	body, err := json.Marshal(map[string]string{"stream": stream})
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, "/v1/streams/finalize", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusErr(resp)
}

// Ingest streams raw SSE bytes to the server, which batches and finalizes.
func (c *Client) Ingest(ctx context.Context, stream string, src io.Reader) error {
	u := c.base + "/v1/streams/ingest?stream=" + url.QueryEscape(stream)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, src)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/event-stream")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return statusErr(resp)
}

// Relay returns a reader that mirrors src byte for byte. A background
// batcher splits the copied stream into blocks, appends them to the given
// stream, and finalizes it when src ends. The buffering side is best
// effort: its failures never stall or fail the returned reader.
func (c *Client) Relay(ctx context.Context, stream string, src io.Reader) io.Reader {
	primary, side := batcher.Tee(src)
	b := batcher.New(clientSink{c: c, stream: stream}, batcher.Options{})
	go func() { _ = b.Run(ctx, side) }()
	return primary
}

type clientSink struct {
	c      *Client
	stream string
}

func (s clientSink) Append(ctx context.Context, events []streambuf.AppendEvent) error {
	evs := make([]Event, 0, len(events))
	for _, ev := range events {
		evs = append(evs, Event{ID: ev.ID, Block: string(ev.Payload)})
	}
	_, err := s.c.Append(ctx, s.stream, evs)
	return err
}

func (s clientSink) Finalize(ctx context.Context) error {
	return s.c.Finalize(ctx, s.stream)
}

// Resume opens the SSE stream for a buffer from the given cursor. The
// caller reads blocks from the returned body and closes it when done.
func (c *Client) Resume(ctx context.Context, stream, lastEventID string) (io.ReadCloser, error) {
	u := c.base + "/v1/streams/resume?stream=" + url.QueryEscape(stream)
	return c.openSSE(ctx, u, lastEventID)
}

// ResumeChat opens the chat stream behind a message. While the message has
// an active stream this behaves like Resume on it; after the stream is gone
// the body carries one synthesized appendMessage event. ok is false when
// the message does not exist (HTTP 204) and the client should stop.
func (c *Client) ResumeChat(ctx context.Context, messageID, lastEventID string) (body io.ReadCloser, ok bool, err error) {
	u := c.base + "/v1/chats/stream?message_id=" + url.QueryEscape(messageID)
	rc, err := c.openSSE(ctx, u, lastEventID)
	if errors.Is(err, errNoContent) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}

// PutMessage upserts a message record and returns the stored form.
func (c *Client) PutMessage(ctx context.Context, m messages.Message) (messages.Message, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return messages.Message{}, err
	}
	resp, err := c.post(ctx, "/v1/messages", bytes.NewReader(body))
	if err != nil {
		return messages.Message{}, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return messages.Message{}, err
	}
	var out messages.Message
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return messages.Message{}, err
	}
	return out, nil
}

// GetMessage loads a message by id.
func (c *Client) GetMessage(ctx context.Context, id string) (messages.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/messages/"+url.PathEscape(id), nil)
	if err != nil {
		return messages.Message{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return messages.Message{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return messages.Message{}, err
	}
	var out messages.Message
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return messages.Message{}, err
	}
	return out, nil
}

var errNoContent = errors.New("client: no content")

func (c *Client) openSSE(ctx context.Context, u, lastEventID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	req.Header.Set("Accept", "text/event-stream")
	// SSE bodies are long-lived; rely on ctx, not the client timeout.
	hc := *c.hc
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil, errNoContent
	}
	if err := statusErr(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode == http.StatusGone:
		return ErrGone
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
}
