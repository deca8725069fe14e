package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
)

// ParsedLine pairs a decoded Message with the exact raw bytes it was
// decoded from, so an observer can correlate the two without re-encoding.
type ParsedLine struct {
	Message *Message
	Raw     []byte
}

// Parser decodes single lines into JSON-RPC 2.0 messages. It never raises:
// a line that fails to decode, or that decodes but doesn't carry
// jsonrpc:"2.0", is logged and dropped.
type Parser struct{}

// Parse attempts to decode line as a JSON-RPC 2.0 message. It returns
// ok=false if the line is not valid JSON or does not carry the expected
// protocol version; callers must still forward the raw bytes (transparency
// is a Router/Tracker concern, not a Parser one).
func (Parser) Parse(line []byte) (msg *Message, ok bool) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		logger.Slog().Debug("jsonrpc: dropping unparseable line", "error", err)
		return nil, false
	}
	if m.JSONRPC != Version {
		logger.Slog().Debug("jsonrpc: dropping line with wrong/missing version", "jsonrpc", m.JSONRPC)
		return nil, false
	}
	return &m, true
}

// ParseLines decodes every line in lines, skipping (and logging) any that
// fail. The returned slice preserves {message, raw} index alignment for
// messages that did parse; it intentionally omits rejected lines since
// nothing downstream observes them — callers needing the original bytes for
// forwarding already have them from the LineBuffer/raw chunk, independent of
// parse success.
func (p Parser) ParseLines(lines [][]byte) []ParsedLine {
	out := make([]ParsedLine, 0, len(lines))
	for _, line := range lines {
		msg, ok := p.Parse(line)
		if !ok {
			continue
		}
		out = append(out, ParsedLine{Message: msg, Raw: line})
	}
	return out
}

// ParseError describes why a line was rejected, for callers (mainly tests)
// that want the reason rather than just a boolean.
type ParseError struct {
	Line   []byte
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jsonrpc: %s: %q", e.Reason, string(e.Line))
}

// ParseStrict behaves like Parse but returns a *ParseError describing the
// rejection reason, for call sites (chiefly tests) that want it.
func (Parser) ParseStrict(line []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, &ParseError{Line: line, Reason: "invalid JSON"}
	}
	if m.JSONRPC != Version {
		return nil, &ParseError{Line: line, Reason: "missing or wrong jsonrpc version"}
	}
	return &m, nil
}
