package streambuf

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - sb/{id}/e/{seq_be8}
// - sb/{id}/m

var (
	sbPrefix   = []byte("sb/")
	entrySeg   = []byte("/e/")
	metaSuffix = []byte("/m")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyStreamPrefix builds the common prefix for all keys of one stream id.
func KeyStreamPrefix(id string) []byte {
	k := make([]byte, 0, len(sbPrefix)+len(id)+1)
	k = append(k, sbPrefix...)
	k = append(k, id...)
	k = append(k, '/')
	return k
}

// KeyEvent builds the entry key with a big-endian sequence for proper ordering.
func KeyEvent(id string, seq uint64) []byte {
	k := make([]byte, 0, len(sbPrefix)+len(id)+len(entrySeg)+8)
	k = append(k, sbPrefix...)
	k = append(k, id...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// KeyMeta builds the stream metadata key.
func KeyMeta(id string) []byte {
	k := make([]byte, 0, len(sbPrefix)+len(id)+len(metaSuffix))
	k = append(k, sbPrefix...)
	k = append(k, id...)
	k = append(k, metaSuffix...)
	return k
}

// seqFromEventKey extracts the sequence from an entry key.
func seqFromEventKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
