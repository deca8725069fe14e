// Package sweep implements the pending-request idle sweep: a ticker that
// periodically asks the Session Tracker for its current pending request
// and, once it has sat unanswered longer than the configured interval,
// synthesizes a "timed out" JSON-RPC error to the client.
package sweep

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/session"
)

// DefaultInterval matches the spec's pendingSweepMs default.
const DefaultInterval = 30 * time.Second

// Sweeper runs the idle sweep for the lifetime of the supervisor process,
// independent of any restart cycle (see DESIGN.md for why it always runs
// rather than only during a restart).
type Sweeper struct {
	tracker  *session.Tracker
	interval time.Duration
	emit     func(raw []byte)
	nowFunc  func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Sweeper. emit is called with a fully formed, newline
// terminated JSON-RPC error line to write to the client.
func New(tracker *session.Tracker, interval time.Duration, emit func(raw []byte)) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		emit:     emit,
		nowFunc:  time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep ticker in its own goroutine.
func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	pending := s.tracker.PendingRequest()
	if pending == nil {
		return
	}
	if s.nowFunc().Sub(pending.Timestamp) < s.interval {
		return
	}

	raw, err := timeoutError(pending.ID, pending.Method)
	if err != nil {
		logger.Slog().Warn("sweep: failed to synthesize timeout error, dropping", "error", err)
		s.tracker.ClearPendingRequest()
		return
	}

	s.emit(raw)
	s.tracker.ClearPendingRequest()
}

// timeoutError builds the synthetic `{"jsonrpc":"2.0","id":...,"error":
// {"code":-32603,"message":"... timed out ...","data":{"method":...}}}`
// line described in the spec's wire protocol section.
func timeoutError(id, method string) ([]byte, error) {
	data, err := json.Marshal(struct {
		Method string `json:"method"`
	}{Method: method})
	if err != nil {
		return nil, err
	}

	msg := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Error   struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"error"`
	}{
		JSONRPC: "2.0",
		ID:      json.RawMessage(id),
	}
	msg.Error.Code = -32603
	msg.Error.Message = fmt.Sprintf("Request timed out (%s)", method)
	msg.Error.Data = data

	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}

// Stop halts the sweep ticker and waits for its goroutine to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
