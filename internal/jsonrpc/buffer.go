package jsonrpc

import "bytes"

// LineBuffer accumulates stream bytes and yields complete newline-terminated
// records, retaining a partial tail across Feed calls. The raw form of each
// line (trailing newline included) is preserved so callers can forward the
// exact bytes they received.
type LineBuffer struct {
	tail []byte
}

// Feed appends chunk to the retained tail, splits on '\n', and returns every
// complete, non-empty line (with its trailing newline re-attached). Any
// final incomplete segment is retained for the next call.
func (b *LineBuffer) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	data := append(b.tail, chunk...)
	b.tail = nil

	var lines [][]byte
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := data[:idx+1]
		data = data[idx+1:]
		if idx > 0 {
			// Non-empty: there is at least one byte before the newline.
			// Whitespace-only lines are still yielded here for observation;
			// the Parser rejects them on JSON decode.
			lines = append(lines, line)
		}
	}

	if len(data) > 0 {
		b.tail = append([]byte(nil), data...)
	}

	return lines
}

// Clear discards any retained partial tail.
func (b *LineBuffer) Clear() {
	b.tail = nil
}
