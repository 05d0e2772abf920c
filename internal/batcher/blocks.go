package batcher

import "bytes"

// BlockSeparator delimits complete blocks in a server-sent-event stream.
var BlockSeparator = []byte("\n\n")

// SplitBlocks cuts buf into complete blocks and returns them along with the
// trailing bytes that are not yet terminated by a separator. Empty blocks
// (runs of separators) are skipped.
func SplitBlocks(buf []byte) (blocks [][]byte, rest []byte) {
	for {
		i := bytes.Index(buf, BlockSeparator)
		if i < 0 {
			return blocks, buf
		}
		block := buf[:i]
		buf = buf[i+len(BlockSeparator):]
		if len(bytes.TrimSpace(block)) == 0 {
			continue
		}
		blocks = append(blocks, block)
	}
}

// ExtractBlockID returns the value of the block's "id:" line, or "" when the
// block carries none.
func ExtractBlockID(block []byte) string {
	for _, line := range bytes.Split(block, []byte("\n")) {
		if !bytes.HasPrefix(line, []byte("id:")) {
			continue
		}
		return string(bytes.TrimSpace(line[len("id:"):]))
	}
	return ""
}
