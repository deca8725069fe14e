// Package session implements the Session Tracker: it observes client and
// server JSON-RPC traffic to remember the last initialize handshake and the
// single most recent in-flight request, without ever altering the bytes it
// observes. Transparency — ProcessClientData and ProcessServerData only read
// the lines they are given and return nothing — is a hard contract relied on
// by the Router, which forwards its own copy of the bytes.
package session

import (
	"sync"
	"time"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/jsonrpc"
)

// PendingRequest is the most recent client request carrying an id for which
// no server response has been observed yet.
type PendingRequest struct {
	ID        string
	Method    string
	Raw       []byte
	Timestamp time.Time
}

// InitializeSnapshot remembers the client's initialize request so it can be
// replayed to a freshly (re)started child before any queued traffic.
type InitializeSnapshot struct {
	RawRequest  []byte
	ID          string
	Initialized bool
}

// Tracker observes client/server JSON-RPC traffic and maintains the
// PendingRequest and InitializeSnapshot state described above. All four
// fields are guarded by a single mutex, matching the single-lock discipline
// the spec calls for when a true multi-threaded target is chosen.
type Tracker struct {
	mu sync.Mutex

	parser jsonrpc.Parser

	pending    *PendingRequest
	initialize *InitializeSnapshot
	nowFunc    func() time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{nowFunc: time.Now}
}

// ProcessClientData observes one raw chunk of client->child bytes (which may
// contain zero, one, or several JSON-RPC lines already split by the caller).
// It returns nothing and does not modify the slices; forwarding the bytes is
// left to the caller. Unparseable lines are simply not observed.
func (t *Tracker) ProcessClientData(lines [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, raw := range lines {
		msg, ok := t.parser.Parse(raw)
		if !ok {
			continue
		}

		if msg.Method == "initialize" && msg.HasID() {
			t.initialize = &InitializeSnapshot{
				RawRequest: append([]byte(nil), raw...),
				ID:         msg.IDString(),
			}
		}

		if msg.HasID() && msg.Method != "" {
			t.pending = &PendingRequest{
				ID:        msg.IDString(),
				Method:    msg.Method,
				Raw:       append([]byte(nil), raw...),
				Timestamp: t.nowFunc(),
			}
		}
	}
}

// ProcessServerData observes one raw chunk of child->client bytes.
func (t *Tracker) ProcessServerData(lines [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, raw := range lines {
		msg, ok := t.parser.Parse(raw)
		if !ok {
			continue
		}
		if !msg.HasID() {
			continue
		}
		id := msg.IDString()

		if t.pending != nil && t.pending.ID == id {
			t.pending = nil
		}

		if t.initialize != nil && t.initialize.ID == id {
			if msg.Result != nil && msg.Error == nil {
				t.initialize.Initialized = true
			}
			// A matching error leaves Initialized false; the snapshot (and
			// its raw request) is kept so the caller can decide to retry.
		}
	}
}

// PendingRequest returns a copy of the currently tracked pending request,
// or nil if none is outstanding.
func (t *Tracker) PendingRequest() *PendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return nil
	}
	cp := *t.pending
	return &cp
}

// ClearPendingRequest drops the tracked pending request, e.g. after
// synthesizing an error response for it.
func (t *Tracker) ClearPendingRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
}

// InitializeSnapshot returns a copy of the current initialize snapshot, or
// nil if the client has not yet sent an initialize request.
func (t *Tracker) InitializeSnapshot() *InitializeSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialize == nil {
		return nil
	}
	cp := *t.initialize
	return &cp
}

// Reset clears all tracked state. Called only on explicit shutdown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	t.initialize = nil
}

// SetNowFunc overrides the clock used for PendingRequest.Timestamp; exposed
// for deterministic tests of the idle sweep.
func (t *Tracker) SetNowFunc(f func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = f
}
