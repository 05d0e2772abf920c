package streambuf

import "errors"

var (
	// ErrInvalidEvent is returned for appends with no events or events
	// missing an id or payload. No mutation occurs.
	ErrInvalidEvent = errors.New("streambuf: invalid append event")

	// ErrFinalized is returned for appends against a finalized stream.
	ErrFinalized = errors.New("streambuf: stream already finalized")

	// ErrExpired is returned when operating on a buffer whose state has been
	// deleted by the retention timer.
	ErrExpired = errors.New("streambuf: stream expired")

	// ErrClosed is returned by a registry that has been shut down.
	ErrClosed = errors.New("streambuf: registry closed")

	// ErrInvalidStream is returned for an empty stream id.
	ErrInvalidStream = errors.New("streambuf: invalid stream id")
)
