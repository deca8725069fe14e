package process

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// BreakerSettings configures the circuit breaker guarding repeated initial
// spawn failures. It never guards Restart: once a child has started
// successfully at least once, hot reloads are expected to be attempted
// regardless of how many times they fail.
type BreakerSettings struct {
	MaxFailures  uint32
	ResetTimeout int64 // milliseconds
}

// Lifecycle owns the single current child Handle and drives it through
// start, stop and restart using the injected Spawner, ReadinessChecker and
// Terminator. All three are interfaces so tests can substitute fakes that
// resolve instantly instead of exercising real OS processes and timers.
type Lifecycle struct {
	spawner    Spawner
	readiness  ReadinessChecker
	terminator Terminator

	spawnConfig     SpawnConfig
	readinessConfig ReadinessConfig

	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	handle *Handle
}

// NewLifecycle builds a Lifecycle. breaker guards only Start, never Restart.
func NewLifecycle(spawner Spawner, readiness ReadinessChecker, terminator Terminator, spawnCfg SpawnConfig, readinessCfg ReadinessConfig, breaker BreakerSettings) *Lifecycle {
	settings := gobreaker.Settings{
		Name:        "mcp-hot-reload-spawn",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.MaxFailures
		},
	}
	if breaker.ResetTimeout > 0 {
		settings.Timeout = msToDuration(breaker.ResetTimeout)
	}

	return &Lifecycle{
		spawner:         spawner,
		readiness:       readiness,
		terminator:      terminator,
		spawnConfig:     spawnCfg,
		readinessConfig: readinessCfg,
		breaker:         gobreaker.NewCircuitBreaker(settings),
	}
}

// Start spawns the child for the first time and waits for it to become
// ready, through the circuit breaker. Calling Start while a child is
// already running returns KindAlreadyRunning.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	if l.handle != nil {
		l.mu.Unlock()
		return newErr(KindAlreadyRunning, "a child is already running", nil)
	}
	l.mu.Unlock()

	_, err := l.breaker.Execute(func() (interface{}, error) {
		h, spawnErr := l.spawner.Spawn(l.spawnConfig)
		if spawnErr != nil {
			return nil, spawnErr
		}
		if readyErr := l.readiness.WaitUntilReady(h, l.readinessConfig); readyErr != nil {
			l.terminator.Terminate(h, RestartProfile())
			return nil, readyErr
		}

		l.mu.Lock()
		l.handle = h
		l.mu.Unlock()
		return h, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return newErr(KindCircuitOpen, "spawn circuit breaker is open after repeated startup failures", err)
	}
	return err
}

// Stop terminates the current child with StopProfile and clears the
// handle. Stopping when nothing is running is a no-op.
func (l *Lifecycle) Stop() error {
	l.mu.Lock()
	h := l.handle
	l.handle = nil
	l.mu.Unlock()

	if h == nil {
		return nil
	}
	h.MarkExpectedExit()
	err := l.terminator.Terminate(h, StopProfile())
	h.Dispose()
	return err
}

// Restart terminates the current child (RestartProfile) and spawns a
// replacement, waiting for it to become ready. Unlike Start, Restart is not
// guarded by the circuit breaker: a failed hot reload should be retriable
// on the next file change regardless of how many prior reloads failed.
func (l *Lifecycle) Restart() error {
	l.mu.Lock()
	old := l.handle
	l.handle = nil
	l.mu.Unlock()

	if old != nil {
		old.MarkExpectedExit()
		if err := l.terminator.Terminate(old, RestartProfile()); err != nil {
			old.Dispose()
			return err
		}
		old.Dispose()
	}

	h, err := l.spawner.Spawn(l.spawnConfig)
	if err != nil {
		return err
	}
	if err := l.readiness.WaitUntilReady(h, l.readinessConfig); err != nil {
		l.terminator.Terminate(h, RestartProfile())
		return err
	}

	l.mu.Lock()
	l.handle = h
	l.mu.Unlock()
	return nil
}

// Handle returns the current child handle, or nil if none is running.
func (l *Lifecycle) Handle() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// WaitForCrash returns the current child's exit channel, or nil if no
// child is running. A nil channel blocks forever in a select, which is the
// behavior callers want when there is nothing to wait on.
func (l *Lifecycle) WaitForCrash() <-chan ExitResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		return nil
	}
	return l.handle.WaitForCrash()
}
