package streambuf

// listener is one live subscriber attached to a buffer. Never persisted.
// cursor is the highest seq already handed to this listener; it only moves
// forward and never exceeds the log's last seq.
type listener struct {
	cursor uint64
	ch     chan Event
}

// Subscription is the result of Resume: the buffered replay plus, for
// still-active streams, a live channel that delivers subsequent events until
// finalize, cancellation, or expiry closes it.
type Subscription struct {
	// Replay holds the events from the resume cursor to the end of the log
	// at resume time, in log order.
	Replay []Event
	// Live is nil when the stream was already finalized (terminal read).
	// Otherwise it yields events appended after Replay, gap-free, and is
	// closed by finalize, Cancel, or expiry.
	Live <-chan Event
	// Finalized reports whether the stream was complete at resume time.
	Finalized bool
	// Cancel detaches the listener. Safe to call multiple times; a no-op
	// for terminal reads.
	Cancel func()
}
