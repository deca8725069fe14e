// Package reload implements the Hot-Reload Controller: it debounces into
// a single active cycle, coalesces any change that arrives while a cycle
// is already running into exactly one more cycle, and delegates the
// actual build and restart to injected collaborators.
package reload

import (
	"sync"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
)

// BuildRunner is the narrow slice of internal/build.Runner the controller
// needs, so it can be faked in tests.
type BuildRunner interface {
	Run() bool
	Cancel()
}

// Controller serializes build/restart cycles on a single goroutine and
// guarantees that a burst of file changes collapses into at most one
// extra cycle once the current one completes.
type Controller struct {
	builder   BuildRunner
	onRestart func() error

	mu      sync.Mutex
	pending bool
	running bool
}

// New builds a Controller. onRestart is invoked after every successful
// build; an error it returns propagates out of HandleFileChange.
func New(builder BuildRunner, onRestart func() error) *Controller {
	return &Controller{builder: builder, onRestart: onRestart}
}

// HandleFileChange is invoked by the File Watcher on every (debounced)
// change. If a cycle is already in flight, it marks the change as
// pending and returns immediately; the in-flight cycle will pick it up.
// Otherwise it runs the cycle synchronously on the calling goroutine.
func (c *Controller) HandleFileChange() error {
	c.mu.Lock()
	c.pending = true
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	var lastErr error
	for {
		c.mu.Lock()
		if !c.pending {
			c.running = false
			c.mu.Unlock()
			return lastErr
		}
		c.pending = false
		c.mu.Unlock()

		if err := c.performBuildAndRestart(); err != nil {
			c.mu.Lock()
			c.running = false
			c.pending = false
			c.mu.Unlock()
			return err
		}
	}
}

// performBuildAndRestart cancels any in-flight build, runs a fresh one,
// and on success calls onRestart. A failed build is logged and swallowed
// — the caller's loop will retry on the next pending change, and a
// failure that happens to be the last one in the burst simply leaves the
// original child running untouched.
func (c *Controller) performBuildAndRestart() error {
	c.builder.Cancel()

	if !c.builder.Run() {
		logger.Slog().Warn("reload: build failed, keeping current child running")
		return nil
	}

	return c.onRestart()
}
