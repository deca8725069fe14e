// Package supervisor wires every other package into the single top-level
// component the spec calls the Supervisor: it owns the Config, builds the
// Router/Lifecycle/Watcher/Controller/Sweeper graph, drives the initial
// spawn, and reacts to child crashes and OS signals for the lifetime of
// the process.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/build"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/config"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/cronutil"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/metrics"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/process"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/queue"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/reload"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/router"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/session"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/sweep"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/watch"
)

// Supervisor owns the full component graph for one supervised child server.
type Supervisor struct {
	cfg config.Config

	tracker   *session.Tracker
	queue     *queue.Queue
	router    *router.Router
	lifecycle *process.Lifecycle
	watcher   *watch.Watcher
	builder   *build.Runner
	reloadCtl *reload.Controller
	sweeper   *sweep.Sweeper

	metricsSrv *http.Server

	onExit func(code int)

	stopCh chan struct{}
	doneCh chan struct{}
}

// New validates cfg and builds the full component graph without starting
// anything. onExit is called exactly once, with the process's intended
// exit code, when Run's main loop decides to stop; tests inject a fake to
// observe it instead of the real os.Exit.
func New(cfg config.Config, onExit func(code int)) (*Supervisor, error) {
	return newWithIO(cfg, onExit, os.Stdin, os.Stdout)
}

// newWithIO is New with the client stdin/stdout overridable, so tests can
// drive a Supervisor over in-memory pipes instead of the process's real
// stdio.
func newWithIO(cfg config.Config, onExit func(code int), clientR io.Reader, clientW io.Writer) (*Supervisor, error) {
	if os.Getenv(process.InstanceMarkerEnv) != "" {
		return nil, fmt.Errorf("supervisor: refusing to start, %s is already set (recursive self-spawn)", process.InstanceMarkerEnv)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if onExit == nil {
		onExit = os.Exit
	}

	tracker := session.New()
	q := queue.New(cfg.PriorityQueue)
	r := router.New(clientR, clientW, q, tracker)

	spawnCfg := process.SpawnConfig{
		Command: cfg.ServerCommand,
		Args:    cfg.ServerArgs,
		Cwd:     cfg.Cwd,
		Env:     cfg.Env,
	}
	breaker := process.BreakerSettings{
		MaxFailures:  uint32(cfg.SpawnBreaker.MaxFailures),
		ResetTimeout: cfg.SpawnBreaker.ResetTimeoutMs,
	}
	lifecycle := process.NewLifecycle(
		process.OSSpawner{},
		process.PollingReadinessChecker{},
		process.SignalTerminator{},
		spawnCfg,
		process.DefaultReadinessConfig(),
		breaker,
	)

	builder := build.New()

	s := &Supervisor{
		cfg:       cfg,
		tracker:   tracker,
		queue:     q,
		router:    r,
		lifecycle: lifecycle,
		builder:   builder,
		onExit:    onExit,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	s.reloadCtl = reload.New(buildAdapter{builder: builder, cfg: buildConfig(cfg)}, s.onRestart)
	s.watcher = watch.New(cfg.WatchPattern, time.Duration(cfg.DebounceMs)*time.Millisecond, s.onFileChange)
	s.sweeper = sweep.New(tracker, time.Duration(cfg.PendingSweepMs)*time.Millisecond, func(raw []byte) {
		_ = s.router.EmitToClient(raw)
	})

	return s, nil
}

func buildConfig(cfg config.Config) build.Config {
	return build.Config{
		Command: cfg.BuildCommand,
		Cwd:     cfg.Cwd,
		Timeout: time.Duration(cfg.BuildTimeoutMs) * time.Millisecond,
	}
}

// buildAdapter narrows internal/build.Runner down to internal/reload's
// BuildRunner interface, binding the Config the controller never sees.
type buildAdapter struct {
	builder *build.Runner
	cfg     build.Config
}

func (a buildAdapter) Run() bool {
	start := time.Now()
	ok := a.builder.Run(a.cfg)
	metrics.RecordBuild(ok, time.Since(start).Seconds())
	return ok
}

func (a buildAdapter) Cancel() { a.builder.Cancel() }

// Run starts the initial child, the watcher, the idle sweep and the
// metrics server (if configured), then blocks until a shutdown signal or
// a fatal error, calling onExit exactly once before returning.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.doneCh)

	s.router.Start()

	if err := s.lifecycle.Start(); err != nil {
		logger.Slog().Error("supervisor: initial spawn failed", "error", err)
		s.onExit(1)
		return
	}

	h := s.lifecycle.Handle()
	s.router.ConnectServer(h.Stdin, h.Stdout)
	metrics.SetChildUp(true)

	if err := s.watcher.Start(); err != nil {
		logger.Slog().Error("supervisor: file watcher failed to start", "error", err)
	}
	s.sweeper.Start()

	if s.cfg.MetricsAddr != "" {
		s.startMetricsServer()
	}

	go s.watchCrashes()
	go s.watchQueueDepth()
	if s.cfg.HealthCron != "" {
		go s.runHealthCron()
	}

	sigCh := installSignalHandler()
	defer uninstallSignalHandler(sigCh)

	select {
	case <-ctx.Done():
		s.shutdown(0)
	case sig := <-sigCh:
		logger.Slog().Info("supervisor: received signal, shutting down", "signal", sig.String())
		go s.killOnSecondSignal(sigCh)
		s.shutdown(0)
	case <-s.stopCh:
	}
}

// killOnSecondSignal exits the supervisor at once with code 1 if a second
// signal arrives before graceful shutdown finishes. It closes the pipes of
// the handle Lifecycle still tracks, if any; it sends no signal to the
// child, and once Stop has begun Lifecycle tracks no handle.
func (s *Supervisor) killOnSecondSignal(sigCh chan os.Signal) {
	select {
	case <-sigCh:
		logger.Slog().Warn("supervisor: second signal received, forcing exit")
		if h := s.lifecycle.Handle(); h != nil {
			h.Dispose()
		}
		os.Exit(1)
	case <-s.doneCh:
	}
}

func (s *Supervisor) shutdown(code int) {
	s.watcher.Stop()
	s.sweeper.Stop()
	s.router.Stop()
	if err := s.lifecycle.Stop(); err != nil {
		logger.Slog().Warn("supervisor: error stopping child during shutdown", "error", err)
	}
	s.stopMetricsServer()
	close(s.stopCh)
	s.onExit(code)
}

func (s *Supervisor) onFileChange() {
	if err := s.reloadCtl.HandleFileChange(); err != nil {
		logger.Slog().Error("supervisor: hot-reload cycle failed", "error", err)
	}
}

// onRestart is the Hot-Reload Controller's collaborator: it disconnects the
// router, restarts the child through the Lifecycle Manager, replays the
// initialize handshake ahead of the queue, and announces the new tool set.
func (s *Supervisor) onRestart() error {
	cycleID := uuid.New().String()
	ctx := context.WithValue(context.Background(), logger.ContextKeyCycleID, cycleID)

	logger.InfoContext(ctx, "supervisor: restarting child")
	s.router.DisconnectServer()
	metrics.SetChildUp(false)

	if err := s.lifecycle.Restart(); err != nil {
		metrics.RecordRestart(false)
		logger.ErrorContext(ctx, "supervisor: restart failed", "error", err)
		return err
	}

	h := s.lifecycle.Handle()
	var preamble []byte
	if snap := s.tracker.InitializeSnapshot(); snap != nil {
		preamble = snap.RawRequest
	}
	s.router.ConnectServerWithPreamble(h.Stdin, h.Stdout, preamble)
	metrics.SetChildUp(true)
	metrics.RecordRestart(true)

	if err := s.router.EmitToClient(toolsListChangedNotification()); err != nil {
		logger.WarnContext(ctx, "supervisor: failed to announce tools/list_changed", "error", err)
	}

	logger.InfoContext(ctx, "supervisor: restart complete")
	return nil
}

// watchCrashes polls for the current child handle and reacts to an
// unsolicited exit. Polling (rather than blocking on a channel that changes
// identity across restarts) mirrors the readiness checker's own poll loop.
// It holds the specific Handle it is waiting on, not just its exit channel,
// so that when the channel fires it can check Handle.ExpectedExit and
// ignore terminations Lifecycle.Stop/Restart already initiated themselves
// — otherwise the old child's exit during a hot reload would race with the
// new child having just been attached, and handleCrash would tear down the
// replacement instead of the child that actually crashed.
func (s *Supervisor) watchCrashes() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		h := s.lifecycle.Handle()
		if h == nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		select {
		case <-s.stopCh:
			return
		case result := <-h.WaitForCrash():
			if h.ExpectedExit() {
				continue
			}
			s.handleCrash(result)
		}
	}
}

func (s *Supervisor) handleCrash(result process.ExitResult) {
	metrics.RecordChildCrash()
	metrics.SetChildUp(false)

	if pending := s.tracker.PendingRequest(); pending != nil {
		raw, err := crashError(pending, result)
		if err != nil {
			logger.Slog().Error("supervisor: failed to synthesize crash error", "error", err)
		} else if err := s.router.EmitToClient(raw); err != nil {
			logger.Slog().Error("supervisor: failed to emit crash error to client", "error", err)
		}
		s.tracker.ClearPendingRequest()
	}

	s.router.DisconnectServer()
	if err := s.lifecycle.Stop(); err != nil {
		logger.Slog().Warn("supervisor: error clearing crashed child", "error", err)
	}
	logger.Slog().Warn("supervisor: child exited unexpectedly", "description", process.ExitDescription(result))
}

// runHealthCron logs a self-check line (child pid and liveness) on the
// schedule cfg.HealthCron describes, re-resolving the next run time after
// every tick so drift or missed ticks never cause a burst of catch-up runs.
func (s *Supervisor) runHealthCron() {
	for {
		next, err := cronutil.NextRun(s.cfg.HealthCron, time.Now())
		if err != nil {
			logger.Slog().Error("supervisor: health cron schedule invalid", "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.logHealthCheck()
		}
	}
}

func (s *Supervisor) logHealthCheck() {
	h := s.lifecycle.Handle()
	if h == nil {
		logger.Slog().Warn("supervisor: health check, no child running")
		return
	}
	logger.Slog().Info("supervisor: health check", "pid", h.PID, "alive", h.IsAlive(), "queue_depth", s.queue.Size())
}

func (s *Supervisor) watchQueueDepth() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			metrics.SetQueueDepth(s.queue.Size())
		}
	}
}

func (s *Supervisor) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}

	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Slog().Error("supervisor: metrics server failed", "error", err)
		}
	}()
}

func (s *Supervisor) stopMetricsServer() {
	if s.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.metricsSrv.Shutdown(ctx)
}

// ResolveLogFormat implements SPEC_FULL.md §3.1's "text for a TTY, json
// otherwise" default, used by cmd/mcp-hot-reload when --log-format is not
// explicitly set.
func ResolveLogFormat(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if info, err := os.Stdout.Stat(); err == nil && (info.Mode()&os.ModeCharDevice) != 0 {
		return "text"
	}
	return "json"
}
