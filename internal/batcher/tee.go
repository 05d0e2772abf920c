package batcher

import (
	"io"
	"sync"
)

// Tee splits src into a primary reader and a side reader. The primary reads
// pull from src directly; every chunk is also copied into an unbounded
// queue the side reader drains. A slow side consumer therefore never adds
// backpressure to the primary path. The side reader observes the primary's
// terminal error (including EOF) after draining the queue.
func Tee(src io.Reader) (primary, side io.Reader) {
	q := &teeQueue{}
	q.cond.L = &q.mu
	return &teePrimary{src: src, q: q}, q
}

type teeQueue struct {
	mu   sync.Mutex
	cond sync.Cond
	bufs [][]byte
	err  error
}

func (q *teeQueue) push(p []byte) {
	q.mu.Lock()
	q.bufs = append(q.bufs, append([]byte(nil), p...))
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *teeQueue) close(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *teeQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.bufs) == 0 && q.err == nil {
		q.cond.Wait()
	}
	if len(q.bufs) == 0 {
		return 0, q.err
	}
	n := copy(p, q.bufs[0])
	if n < len(q.bufs[0]) {
		q.bufs[0] = q.bufs[0][n:]
	} else {
		q.bufs = q.bufs[1:]
	}
	return n, nil
}

type teePrimary struct {
	src io.Reader
	q   *teeQueue
}

func (t *teePrimary) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		t.q.push(p[:n])
	}
	if err != nil {
		t.q.close(err)
	}
	return n, err
}
