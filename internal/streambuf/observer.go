package streambuf

import "time"

// Observer is a minimal hook surface for buffer observations. The metrics
// package provides a prometheus-backed implementation.
type Observer interface {
	ObserveAppend(elapsed time.Duration, appended, deduped int)
	ObserveFinalize(elapsed time.Duration)
	ListenerAttached()
	ListenerDetached()
	StreamExpired()
}

// NoopObserver is used when no observer is provided.
type NoopObserver struct{}

func (NoopObserver) ObserveAppend(time.Duration, int, int) {}
func (NoopObserver) ObserveFinalize(time.Duration)         {}
func (NoopObserver) ListenerAttached()                     {}
func (NoopObserver) ListenerDetached()                     {}
func (NoopObserver) StreamExpired()                        {}
