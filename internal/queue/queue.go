// Package queue holds raw JSON-RPC records while no child is attached to the
// Router, draining them in order once a child reconnects.
package queue

import (
	"strings"
	"sync"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/jsonrpc"
)

// rank orders queued records when priority mode is enabled: initialize
// first, then tool/resource calls, then other requests, then notifications.
type rank int

const (
	rankInitialize rank = iota
	rankToolOrResource
	rankOtherRequest
	rankNotification
)

// Record is one queued raw line plus the rank it was assigned at add-time.
type Record struct {
	Raw  []byte
	rank rank
	seq  uint64
}

// Queue is a FIFO, or optionally priority-ordered, hold of raw records.
// It has no capacity limit; the Supervisor is responsible for not leaving
// a child unattached indefinitely.
type Queue struct {
	mu       sync.Mutex
	priority bool
	records  []Record
	seq      uint64
	parser   jsonrpc.Parser
}

// New creates a Queue. When priority is true, Add ranks records by method
// per §3 of the spec; otherwise strict FIFO is used.
func New(priority bool) *Queue {
	return &Queue{priority: priority}
}

// Add appends raw (which must include its trailing newline) to the queue.
func (q *Queue) Add(raw []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := Record{Raw: raw, rank: rankOtherRequest, seq: q.seq}
	q.seq++

	if q.priority {
		r.rank = classify(q.parser, raw)
	}

	q.records = append(q.records, r)
}

// AddFront re-queues raw at the head, used when a flushed write fails
// partway through draining. It bypasses rank ordering: a record being put
// back belongs at the very front regardless of priority, so a failed drain
// retries it first on the next flush.
func (q *Queue) AddFront(raw []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := Record{Raw: raw, rank: -1, seq: 0}
	q.records = append([]Record{r}, q.records...)
}

// Flush returns all queued records in rank-then-FIFO order (or strict FIFO
// if priority mode is off — insertion order is already FIFO in that case)
// and empties the queue.
func (q *Queue) Flush() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return nil
	}

	records := q.records
	q.records = nil

	if q.priority {
		sortByRank(records)
	}

	out := make([][]byte, len(records))
	for i, r := range records {
		out[i] = r.Raw
	}
	return out
}

// Clear empties the queue without returning its contents.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
}

// Size returns the number of currently queued records.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// classify inspects the parsed method of raw to assign a priority rank.
// Records that fail to parse (or carry no method, e.g. bare responses)
// fall back to rankOtherRequest — they still need to be delivered, just
// without special treatment.
func classify(p jsonrpc.Parser, raw []byte) rank {
	msg, ok := p.Parse(raw)
	if !ok || msg.Method == "" {
		return rankOtherRequest
	}

	if msg.Method == "initialize" {
		return rankInitialize
	}
	if strings.HasPrefix(msg.Method, "tools/") || strings.HasPrefix(msg.Method, "resources/") {
		return rankToolOrResource
	}
	if !msg.HasID() {
		return rankNotification
	}
	return rankOtherRequest
}

// sortByRank performs a stable sort by rank, preserving FIFO order within
// a rank via the monotonic seq field.
func sortByRank(records []Record) {
	// Insertion sort: the input is already FIFO-ordered and small in
	// practice (bounded by how long a child stays disconnected), so this
	// is simpler than pulling in sort.Slice for a handful of records.
	for i := 1; i < len(records); i++ {
		j := i
		for j > 0 && less(records[j], records[j-1]) {
			records[j], records[j-1] = records[j-1], records[j]
			j--
		}
	}
}

func less(a, b Record) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.seq < b.seq
}
