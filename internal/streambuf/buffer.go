package streambuf

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/oxbow-io/oxbow/internal/storage/pebble"
	logpkg "github.com/oxbow-io/oxbow/pkg/log"
)

// Meta is the persisted per-stream metadata.
type Meta struct {
	Finalized   bool  `json:"finalized"`
	ExpiresAtMs int64 `json:"expiresAtMs"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// Stats is a point-in-time snapshot of a buffer.
type Stats struct {
	Events      int   `json:"events"`
	Finalized   bool  `json:"finalized"`
	ExpiresAtMs int64 `json:"expiresAtMs"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
	Listeners   int   `json:"listeners"`
}

// Buffer owns all state for one stream id. All mutations run under mu; no
// two mutating operations for the same id ever interleave.
type Buffer struct {
	db          *pebblestore.DB
	id          string
	retention   time.Duration
	listenerBuf int
	logger      logpkg.Logger
	obs         Observer
	now         func() time.Time
	onExpire    func(id string)

	mu        sync.Mutex
	lastSeq   uint64
	seen      map[string]uint64 // event id -> seq
	meta      Meta
	listeners map[*listener]struct{}
	timer     *time.Timer
	expired   bool
}

// openBuffer loads (or lazily creates) the buffer for one stream id,
// rebuilding the dedup index and last seq from the persisted log.
func openBuffer(opts Options, id string) (*Buffer, error) {
	b := &Buffer{
		db:          opts.DB,
		id:          id,
		retention:   opts.Retention,
		listenerBuf: opts.ListenerBuf,
		logger:      opts.Logger.With(logpkg.Str("stream", id)),
		obs:         opts.Observer,
		now:         opts.Clock,
		onExpire:    opts.onExpire,
		seen:        map[string]uint64{},
		listeners:   map[*listener]struct{}{},
	}

	persisted := false
	if raw, err := b.db.Get(KeyMeta(id)); err == nil {
		var m Meta
		if json.Unmarshal(raw, &m) == nil {
			b.meta = m
			persisted = true
		}
	} else if !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, err
	}

	lo := KeyEvent(id, 0)
	hi := KeyEvent(id, ^uint64(0))
	it, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	for ok := it.First(); ok; ok = it.Next() {
		seq := seqFromEventKey(it.Key())
		if ev, ok2 := DecodeEvent(it.Value()); ok2 {
			b.seen[ev.ID] = seq
		}
		if seq > b.lastSeq {
			b.lastSeq = seq
		}
	}
	if err := it.Close(); err != nil {
		return nil, err
	}

	now := b.now()
	if !persisted {
		b.meta = Meta{ExpiresAtMs: now.Add(b.retention).UnixMilli(), UpdatedAtMs: now.UnixMilli()}
	}
	// Arm the wake timer for state that survived a restart so it still expires.
	if persisted {
		b.armLocked()
	}
	return b, nil
}

// ID returns the stream id this buffer owns.
func (b *Buffer) ID() string { return b.id }

// Append merges the events whose ids are not yet present, persists them
// atomically with the advanced expiry deadline, re-arms the wake timer, and
// pushes the newly added events to every attached listener. Returns the
// post-merge event count.
func (b *Buffer) Append(ctx context.Context, events []AppendEvent) (int, error) {
	if len(events) == 0 {
		return 0, ErrInvalidEvent
	}
	for _, ev := range events {
		if ev.ID == "" || len(ev.Payload) == 0 {
			return 0, ErrInvalidEvent
		}
	}

	start := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.expired {
		return 0, ErrExpired
	}
	if b.meta.Finalized {
		return 0, ErrFinalized
	}

	now := b.now()
	nowMs := now.UnixMilli()

	batch := b.db.NewBatch()
	defer batch.Close()

	var added []Event
	seq := b.lastSeq
	inBatch := map[string]struct{}{}
	for _, ev := range events {
		if _, dup := b.seen[ev.ID]; dup {
			continue
		}
		if _, dup := inBatch[ev.ID]; dup {
			continue
		}
		inBatch[ev.ID] = struct{}{}
		seq++
		rec := EncodeEvent(ev.ID, nowMs, ev.Payload)
		if err := batch.Set(KeyEvent(b.id, seq), rec, nil); err != nil {
			return 0, err
		}
		added = append(added, Event{ID: ev.ID, Payload: ev.Payload, CreatedAtMs: nowMs, Seq: seq})
	}

	meta := Meta{Finalized: false, ExpiresAtMs: now.Add(b.retention).UnixMilli(), UpdatedAtMs: nowMs}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}
	if err := batch.Set(KeyMeta(b.id), metaRaw, nil); err != nil {
		return 0, err
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return 0, err
	}

	b.lastSeq = seq
	b.meta = meta
	for _, ev := range added {
		b.seen[ev.ID] = ev.Seq
	}
	b.armLocked()
	b.pushLocked(added)

	deduped := len(events) - len(added)
	b.obs.ObserveAppend(time.Since(start), len(added), deduped)
	return len(b.seen), nil
}

// Finalize marks the stream complete. Idempotent: the second and later calls
// succeed without touching anything. Closes every listener's channel.
func (b *Buffer) Finalize(ctx context.Context) error {
	start := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.expired {
		return ErrExpired
	}
	if b.meta.Finalized {
		return nil
	}

	now := b.now()
	meta := Meta{Finalized: true, ExpiresAtMs: now.Add(b.retention).UnixMilli(), UpdatedAtMs: now.UnixMilli()}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	batch := b.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(KeyMeta(b.id), raw, nil); err != nil {
		return err
	}
	if err := b.db.CommitBatch(ctx, batch); err != nil {
		return err
	}

	b.meta = meta
	b.armLocked()
	b.closeListenersLocked()
	b.obs.ObserveFinalize(time.Since(start))
	return nil
}

// Resume computes the cursor from lastEventID (unknown or empty means replay
// everything), replays the log from there, and, while still under the same
// critical section, attaches a live listener at the post-replay position so
// the replay-then-live transition is gap-free. When the stream is already
// finalized the subscription is terminal: full replay, nil Live channel.
func (b *Buffer) Resume(lastEventID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.expired {
		return nil, ErrExpired
	}

	start := uint64(1)
	if seq, ok := b.seen[lastEventID]; ok && lastEventID != "" {
		start = seq + 1
	}
	replay, err := b.readLocked(start)
	if err != nil {
		return nil, err
	}

	if b.meta.Finalized {
		return &Subscription{Replay: replay, Finalized: true, Cancel: func() {}}, nil
	}

	l := &listener{cursor: b.lastSeq, ch: make(chan Event, b.listenerBuf)}
	b.listeners[l] = struct{}{}
	b.obs.ListenerAttached()
	if b.timer == nil {
		// First touch of a never-started stream still schedules expiry.
		b.armLocked()
	}
	return &Subscription{
		Replay: replay,
		Live:   l.ch,
		Cancel: func() { b.detach(l) },
	}, nil
}

// Stats returns a snapshot of the buffer.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Events:      len(b.seen),
		Finalized:   b.meta.Finalized,
		ExpiresAtMs: b.meta.ExpiresAtMs,
		UpdatedAtMs: b.meta.UpdatedAtMs,
		Listeners:   len(b.listeners),
	}
}

// readLocked returns the persisted events with seq >= start, in order.
// Callers hold b.mu.
func (b *Buffer) readLocked(start uint64) ([]Event, error) {
	if start > b.lastSeq {
		return nil, nil
	}
	lo := KeyEvent(b.id, start)
	hi := KeyEvent(b.id, ^uint64(0))
	it, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Event
	for ok := it.First(); ok; ok = it.Next() {
		ev, ok2 := DecodeEvent(it.Value())
		if !ok2 {
			continue
		}
		ev.Seq = seqFromEventKey(it.Key())
		out = append(out, ev)
	}
	return out, nil
}

// pushLocked fans newly appended events out to every listener. A listener
// that cannot accept a write (channel full) is removed and closed; the log
// and the remaining listeners are unaffected. Callers hold b.mu.
func (b *Buffer) pushLocked(added []Event) {
	if len(added) == 0 || len(b.listeners) == 0 {
		return
	}
	var failed []*listener
	for l := range b.listeners {
		ok := true
		for _, ev := range added {
			if ev.Seq <= l.cursor {
				continue
			}
			select {
			case l.ch <- ev:
				l.cursor = ev.Seq
			default:
				ok = false
			}
			if !ok {
				break
			}
		}
		if !ok {
			failed = append(failed, l)
		}
	}
	for _, l := range failed {
		b.logger.Warn("listener write failed, detaching", logpkg.Uint64("cursor", l.cursor))
		b.removeListenerLocked(l)
	}
}

func (b *Buffer) closeListenersLocked() {
	for l := range b.listeners {
		b.removeListenerLocked(l)
	}
}

func (b *Buffer) removeListenerLocked(l *listener) {
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.ch)
	b.obs.ListenerDetached()
}

func (b *Buffer) detach(l *listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeListenerLocked(l)
}

// armLocked (re)schedules the wake timer for the current expiry deadline.
// Callers hold b.mu.
func (b *Buffer) armLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	d := time.UnixMilli(b.meta.ExpiresAtMs).Sub(b.now())
	if d < 0 {
		d = 0
	}
	b.timer = time.AfterFunc(d, b.expire)
}

// expire runs when the wake timer fires. The deadline is re-checked under
// the lock: a mutation that ran after arming may have pushed it out, in
// which case the timer is re-armed and nothing is deleted.
func (b *Buffer) expire() {
	b.mu.Lock()
	if b.expired {
		b.mu.Unlock()
		return
	}
	if b.now().UnixMilli() < b.meta.ExpiresAtMs {
		b.armLocked()
		b.mu.Unlock()
		return
	}
	if err := b.db.DeletePrefix(KeyStreamPrefix(b.id)); err != nil {
		b.logger.Error("expiry delete failed, retrying", logpkg.Err(err))
		b.timer = time.AfterFunc(time.Second, b.expire)
		b.mu.Unlock()
		return
	}
	b.expired = true
	b.closeListenersLocked()
	b.seen = map[string]uint64{}
	b.obs.StreamExpired()
	b.logger.Info("stream expired")
	onExpire := b.onExpire
	b.mu.Unlock()

	if onExpire != nil {
		onExpire(b.id)
	}
}

// stop halts the wake timer and detaches listeners without deleting state.
// Used on registry shutdown.
func (b *Buffer) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.closeListenersLocked()
}
