// Package batcher turns a raw server-sent-event byte stream into batched,
// id-keyed append calls against a stream buffer.
//
// The input is cut into blocks on blank lines. Each block's "id:" line
// becomes the event id used for dedup downstream; blocks without one cannot
// be replayed idempotently and are dropped. Blocks are flushed to the sink
// when a batch fills or a short delay elapses, whichever comes first, and
// the sink is finalized when the input ends.
//
// All sink failures are logged and discarded. The batcher sits on the side
// of a live delivery path and must never stall or fail it.
package batcher
