package streambuf

import (
	"encoding/binary"
	"hash/crc32"
)

// AppendEvent is a single caller-supplied event for Append.
type AppendEvent struct {
	ID      string
	Payload []byte
}

// Event is one persisted log entry. Seq is its position in the stream's log,
// assigned at first successful append.
type Event struct {
	ID          string
	Payload     []byte
	CreatedAtMs int64
	Seq         uint64
}

// Record encoding: varint idLen | id | createdAt_be8 | payload | crc32c(frame)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeEvent serializes an event record (without its seq, which lives in the key).
func EncodeEvent(id string, createdAtMs int64, payload []byte) []byte {
	out := make([]byte, 0, 10+len(id)+8+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(id)))
	out = append(out, tmp[:n]...)
	out = append(out, id...)
	out = appendBE8(out, uint64(createdAtMs))
	out = append(out, payload...)

	crc := crc32.Checksum(out, castagnoli)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// DecodeEvent parses a record. Returns false for truncated or corrupt frames.
func DecodeEvent(b []byte) (Event, bool) {
	if len(b) < 1+8+4 {
		return Event{}, false
	}
	frame := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(frame, castagnoli) != expect {
		return Event{}, false
	}
	idLen, n := binary.Uvarint(frame)
	if n <= 0 || n+int(idLen)+8 > len(frame) {
		return Event{}, false
	}
	id := string(frame[n : n+int(idLen)])
	ts := binary.BigEndian.Uint64(frame[n+int(idLen) : n+int(idLen)+8])
	payload := append([]byte(nil), frame[n+int(idLen)+8:]...)
	return Event{ID: id, Payload: payload, CreatedAtMs: int64(ts)}, true
}
