package router

import (
	"bufio"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/queue"
	"github.com/Stefan-Nitu/mcp-hot-reload-sub001/internal/session"
)

// failingWriter always errors, simulating a child whose stdin pipe is
// already broken.
type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func newTestRouter(t *testing.T) (*Router, *io.PipeWriter, *io.PipeReader) {
	t.Helper()
	clientInR, clientInW := io.Pipe()
	clientOutR, clientOutW := io.Pipe()

	r := New(clientInR, clientOutW, queue.New(false), session.New())
	r.Start()

	t.Cleanup(func() {
		r.Stop()
		_ = clientInW.Close()
		_ = clientOutR.Close()
	})

	return r, clientInW, clientOutR
}

func TestRouter_QueuesClientDataWhenNoChildAttached(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	_, err := clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"ping\",\"id\":1}\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return r.queue.Size() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRouter_ForwardsClientDataToAttachedChild(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()
	r.ConnectServer(childStdinW, childStdoutR)
	defer childStdoutW.Close()

	line := "{\"jsonrpc\":\"2.0\",\"method\":\"ping\",\"id\":1}\n"
	go func() { _, _ = clientInW.Write([]byte(line)) }()

	scanner := bufio.NewScanner(childStdinR)
	require.True(t, scanner.Scan())
	assert.Equal(t, `{"jsonrpc":"2.0","method":"ping","id":1}`, scanner.Text())
}

func TestRouter_ForwardsServerDataToClient(t *testing.T) {
	r, _, clientOutR := newTestRouter(t)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()
	r.ConnectServer(childStdinW, childStdoutR)
	defer childStdinR.Close()

	line := "{\"jsonrpc\":\"2.0\",\"result\":{},\"id\":1}\n"
	go func() { _, _ = childStdoutW.Write([]byte(line)) }()

	scanner := bufio.NewScanner(clientOutR)
	require.True(t, scanner.Scan())
	assert.Equal(t, `{"jsonrpc":"2.0","result":{},"id":1}`, scanner.Text())
}

func TestRouter_EmptyChunkIsIgnored(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.handleClientChunk(nil)
	assert.Equal(t, 0, r.queue.Size())
}

func TestRouter_FlushesQueueOnConnectInOrder(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	_, err := clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"a\",\"id\":1}\n"))
	require.NoError(t, err)
	_, err = clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"b\",\"id\":2}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.queue.Size() == 2 }, time.Second, 5*time.Millisecond)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()
	defer childStdoutW.Close()
	r.ConnectServer(childStdinW, childStdoutR)

	scanner := bufio.NewScanner(childStdinR)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), `"method":"a"`)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), `"method":"b"`)
}

func TestRouter_FailedWriteRequeuesAtHeadAndStopsDraining(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	_, err := clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"a\",\"id\":1}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.queue.Size() == 1 }, time.Second, 5*time.Millisecond)

	r.mu.Lock()
	r.childStdin = failingWriter{}
	r.mu.Unlock()

	r.drainQueue()
	assert.Equal(t, 1, r.queue.Size())
}

func TestRouter_RepeatedWriteFailuresNeverPanicOrBlock(t *testing.T) {
	r, _, _ := newTestRouter(t)

	r.mu.Lock()
	r.childStdin = failingWriter{}
	r.mu.Unlock()

	// Hammering writeToChild must never panic or block regardless of how
	// often the underlying warning would otherwise fire.
	for i := 0; i < 20; i++ {
		assert.False(t, r.writeToChild([]byte("x")))
	}
}

func TestRouter_ConnectServerWithPreambleWritesBeforeQueueDrain(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	_, err := clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"queued\",\"id\":2}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.queue.Size() == 1 }, time.Second, 5*time.Millisecond)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()
	defer childStdoutW.Close()
	preamble := []byte("{\"jsonrpc\":\"2.0\",\"method\":\"initialize\",\"id\":1}\n")
	r.ConnectServerWithPreamble(childStdinW, childStdoutR, preamble)

	scanner := bufio.NewScanner(childStdinR)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), `"method":"initialize"`)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), `"method":"queued"`)
}

func TestRouter_EmitToClientWritesDirectly(t *testing.T) {
	r, _, clientOutR := newTestRouter(t)

	go func() { _ = r.EmitToClient([]byte("{\"jsonrpc\":\"2.0\",\"id\":9,\"error\":{}}\n")) }()

	scanner := bufio.NewScanner(clientOutR)
	require.True(t, scanner.Scan())
	assert.Contains(t, scanner.Text(), `"id":9`)
}

func TestRouter_DisconnectServerQueuesSubsequentClientData(t *testing.T) {
	r, clientInW, _ := newTestRouter(t)

	childStdinR, childStdinW := io.Pipe()
	childStdoutR, childStdoutW := io.Pipe()
	defer childStdinR.Close()
	defer childStdoutW.Close()
	r.ConnectServer(childStdinW, childStdoutR)

	r.DisconnectServer()

	_, err := clientInW.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"a\",\"id\":1}\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.queue.Size() == 1 }, time.Second, 5*time.Millisecond)
}
