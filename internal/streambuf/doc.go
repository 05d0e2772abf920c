// Package streambuf implements Oxbow's resumable stream buffer.
//
// # Overview
//
// Each stream id is owned by exactly one Buffer instance, handed out by a
// Registry. A Buffer is a durable append log plus in-memory fan-out state,
// persisted in Pebble under lexicographically ordered keys:
//   - sb/{id}/e/{seq_be8} (event records, seq assigned in append order)
//   - sb/{id}/m           (stream metadata: finalized, expiresAt, updatedAt)
//
// Records are stored as: idLen(uvarint) | id | createdAt(8B BE ms) | payload
// | crc32c(frame).
//
// All mutations for one id run under the buffer's mutex: concurrent appends,
// an append racing a finalize, and the replay phase of a resume are strictly
// serialized, so a listener's replay-then-live transition is gap-free.
// Appends are idempotent per event id; re-sent ids are skipped without
// disturbing log order.
//
// API surface (internal)
//
//	buf, _ := reg.Get(streamID)
//	n, _ := buf.Append(ctx, []AppendEvent{{ID: "e1", Payload: block}})
//	_ = buf.Finalize(ctx)
//
//	sub, _ := buf.Resume("e1")
//	for _, ev := range sub.Replay { ... }
//	for ev := range sub.Live { ... } // nil when already finalized
//
// # Expiry
//
// Every mutation advances expiresAt by the retention window and re-arms a
// wake timer. When the timer fires, the deadline is re-checked under the
// lock (a mutation may have extended it); a genuinely expired stream has its
// whole key prefix deleted and every attached listener force-closed.
package streambuf
