// Package messages persists chat messages alongside the stream buffers so a
// resume request can fall back to the final persisted message when its
// stream has already been finalized and expired.
package messages

import (
	"context"
	"encoding/json"
	"errors"

	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
)

// ErrNotFound is returned for message ids with no persisted record.
var ErrNotFound = errors.New("messages: not found")

// ErrInvalidMessage is returned for records missing an id.
var ErrInvalidMessage = errors.New("messages: invalid message")

// Message is one persisted chat message. ActiveStreamID is set while the
// message is still being produced and cleared once its stream finalizes.
type Message struct {
	ID             string          `json:"id"`
	ChatID         string          `json:"chatId,omitempty"`
	Role           string          `json:"role,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	ActiveStreamID string          `json:"activeStreamId,omitempty"`
	UpdatedAtMs    int64           `json:"updatedAtMs"`
}

// Store reads and writes messages in the shared key-value store.
type Store struct {
	db *pebblestore.DB
}

var msgPrefix = []byte("msg/")

// NewStore creates a message store over an open database.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

func key(id string) []byte {
	k := make([]byte, 0, len(msgPrefix)+len(id))
	k = append(k, msgPrefix...)
	return append(k, id...)
}

// Put writes the full message record.
func (s *Store) Put(ctx context.Context, m Message) error {
	if m.ID == "" {
		return ErrInvalidMessage
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key(m.ID), raw, nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Get loads a message by id.
func (s *Store) Get(ctx context.Context, id string) (Message, error) {
	raw, err := s.db.Get(key(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// ClearActiveStream drops the active stream marker once the stream has
// finalized. A no-op when the marker is already clear.
func (s *Store) ClearActiveStream(ctx context.Context, id string, updatedAtMs int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.ActiveStreamID == "" {
		return nil
	}
	m.ActiveStreamID = ""
	m.UpdatedAtMs = updatedAtMs
	return s.Put(ctx, m)
}
