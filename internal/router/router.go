// Package router implements the Message Router: it owns the single
// listener on the client's stdio, relays bytes to and from whichever
// child is currently attached, and queues client data while no child is
// connected. Every byte it forwards is passed through untouched — the
// Session Tracker only ever observes a copy.
package router

import (
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/jsonrpc"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/logger"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/queue"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/session"
)

const readBufSize = 64 * 1024

// warnLogLimit caps how often the router logs a write-failure warning. A
// flapping child pipe can otherwise produce one warning per chunk.
const warnLogLimit = 1 // per second

// Router owns the client<->child relay. Construct with New, call Start
// once, then ConnectServer/DisconnectServer as the Lifecycle Manager
// attaches and detaches children.
type Router struct {
	clientR io.Reader
	clientW io.Writer
	queue   *queue.Queue
	tracker *session.Tracker

	clientBuf jsonrpc.LineBuffer

	mu            sync.Mutex
	writeMu       sync.Mutex
	clientWriteMu sync.Mutex
	childStdin    io.Writer
	childStdout   io.Reader
	serverBuf     jsonrpc.LineBuffer
	serverGen     int64

	started  bool
	stopOnce sync.Once
	stopped  int32

	warnLimiter *rate.Limiter
}

// New builds a Router. clientR/clientW are typically the supervisor's own
// stdin/stdout.
func New(clientR io.Reader, clientW io.Writer, q *queue.Queue, tracker *session.Tracker) *Router {
	return &Router{
		clientR:     clientR,
		clientW:     clientW,
		queue:       q,
		tracker:     tracker,
		warnLimiter: rate.NewLimiter(warnLogLimit, 1),
	}
}

// Start installs the single client listener. Calling it twice panics —
// the spec guarantees exactly one listener for the router's lifetime.
func (r *Router) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		panic("router: Start called twice")
	}
	r.started = true
	r.mu.Unlock()

	go r.clientLoop()
}

func (r *Router) clientLoop() {
	buf := make([]byte, readBufSize)
	for {
		if atomic.LoadInt32(&r.stopped) != 0 {
			return
		}
		n, err := r.clientR.Read(buf)
		if n > 0 {
			r.handleClientChunk(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

// handleClientChunk implements the edge-case policies from the spec:
// empty chunks are ignored; everything else (whitespace-only, malformed,
// multi-message) is observed line-by-line but forwarded as a single
// write, preserving exactly what was read.
func (r *Router) handleClientChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	lines := r.clientBuf.Feed(chunk)
	if len(lines) > 0 {
		r.tracker.ProcessClientData(lines)
	}

	if !r.writeToChild(chunk) {
		r.queue.Add(chunk)
	}
}

// writeToChild attempts to forward chunk to the attached child's stdin.
// It reports whether the write was attempted and succeeded; false means
// the caller must queue the chunk instead (no child attached, or the
// write failed).
func (r *Router) writeToChild(chunk []byte) bool {
	r.mu.Lock()
	stdin := r.childStdin
	r.mu.Unlock()

	if stdin == nil {
		return false
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := stdin.Write(chunk); err != nil {
		if r.warnLimiter.Allow() {
			logger.Slog().Warn("router: write to child stdin failed, queueing", "error", err)
		}
		return false
	}
	return true
}

// ConnectServer attaches a new child's stdio. It first disconnects any
// previously attached child, then flushes the queue through the new
// connection in order.
func (r *Router) ConnectServer(childStdin io.Writer, childStdout io.Reader) {
	r.attach(childStdin, childStdout, nil)
}

// ConnectServerWithPreamble attaches a new child's stdio and, if preamble is
// non-empty, writes it directly to the child before the queue drains. This
// is how a replayed initialize request reaches a freshly (re)started child
// ahead of everything the client sent while no child was attached.
func (r *Router) ConnectServerWithPreamble(childStdin io.Writer, childStdout io.Reader, preamble []byte) {
	r.attach(childStdin, childStdout, preamble)
}

func (r *Router) attach(childStdin io.Writer, childStdout io.Reader, preamble []byte) {
	r.DisconnectServer()

	r.mu.Lock()
	r.childStdin = childStdin
	r.childStdout = childStdout
	r.serverBuf.Clear()
	gen := atomic.AddInt64(&r.serverGen, 1)
	r.mu.Unlock()

	go r.serverLoop(childStdout, gen)

	if len(preamble) > 0 {
		r.writeToChild(preamble)
	}

	r.drainQueue()
}

func (r *Router) serverLoop(stdout io.Reader, gen int64) {
	buf := make([]byte, readBufSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.handleServerChunk(append([]byte(nil), buf[:n]...), gen)
		}
		if err != nil {
			return
		}
	}
}

func (r *Router) handleServerChunk(chunk []byte, gen int64) {
	r.mu.Lock()
	current := r.serverGen
	if current != gen {
		r.mu.Unlock()
		return
	}
	lines := r.serverBuf.Feed(chunk)
	r.mu.Unlock()

	if len(lines) > 0 {
		r.tracker.ProcessServerData(lines)
	}

	if err := r.writeToClient(chunk); err != nil && r.warnLimiter.Allow() {
		logger.Slog().Warn("router: write to client stdout failed", "error", err)
	}
}

// EmitToClient writes a supervisor-synthesized line (a crash error, an idle
// sweep timeout) directly to the client, serialized against forwarded
// server output so the two never interleave mid-line.
func (r *Router) EmitToClient(raw []byte) error {
	return r.writeToClient(raw)
}

func (r *Router) writeToClient(chunk []byte) error {
	r.clientWriteMu.Lock()
	defer r.clientWriteMu.Unlock()
	_, err := r.clientW.Write(chunk)
	return err
}

// drainQueue flushes the queue through the currently attached child. A
// failed write re-queues the record at the head and stops draining; the
// rest of the queue is retried on the next ConnectServer.
func (r *Router) drainQueue() {
	for _, raw := range r.queue.Flush() {
		if !r.writeToChild(raw) {
			r.queue.AddFront(raw)
			return
		}
	}
}

// DisconnectServer detaches the current child, if any. Subsequent client
// data is queued until ConnectServer is called again. The server-read
// goroutine for the detached child exits on its own once the
// underlying pipe closes (owned by the Lifecycle Manager, not the
// Router) or once a new generation supersedes it.
func (r *Router) DisconnectServer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.childStdin = nil
	r.childStdout = nil
	atomic.AddInt64(&r.serverGen, 1)
}

// Stop removes the client listener and disconnects the server. No
// further I/O is performed after this returns. Idempotent.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		atomic.StoreInt32(&r.stopped, 1)
		r.DisconnectServer()
	})
}
