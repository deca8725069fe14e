package reload

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	mu       sync.Mutex
	results  []bool
	runCount int32
	cancels  int32
}

func (f *fakeBuilder) Run() bool {
	atomic.AddInt32(&f.runCount, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return true
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeBuilder) Cancel() {
	atomic.AddInt32(&f.cancels, 1)
}

func TestController_SuccessfulCycleCallsOnRestart(t *testing.T) {
	builder := &fakeBuilder{}
	var restarted int32
	c := New(builder, func() error { atomic.AddInt32(&restarted, 1); return nil })

	require.NoError(t, c.HandleFileChange())
	assert.EqualValues(t, 1, atomic.LoadInt32(&restarted))
	assert.EqualValues(t, 1, builder.runCount)
	assert.EqualValues(t, 1, builder.cancels)
}

func TestController_FailedBuildSwallowsErrorAndSkipsRestart(t *testing.T) {
	builder := &fakeBuilder{results: []bool{false}}
	var restarted int32
	c := New(builder, func() error { atomic.AddInt32(&restarted, 1); return nil })

	require.NoError(t, c.HandleFileChange())
	assert.EqualValues(t, 0, atomic.LoadInt32(&restarted))
}

func TestController_OnRestartErrorPropagatesAndResetsState(t *testing.T) {
	builder := &fakeBuilder{}
	boom := errors.New("boom")
	c := New(builder, func() error { return boom })

	err := c.HandleFileChange()
	assert.Equal(t, boom, err)

	// Controller must be idle again: a subsequent change runs a fresh cycle.
	err = c.HandleFileChange()
	assert.Equal(t, boom, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&builder.runCount))
}

func TestController_ChangeDuringCycleCollapsesToOneExtraCycle(t *testing.T) {
	builder := &fakeBuilder{}
	var restarted int32
	var mu sync.Mutex
	started := make(chan struct{})
	release := make(chan struct{})

	c := New(builder, func() error {
		n := atomic.AddInt32(&restarted, 1)
		if n == 1 {
			mu.Lock()
			close(started)
			mu.Unlock()
			<-release
		}
		return nil
	})

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.HandleFileChange() }()
	<-started

	// Two more changes arrive while the first cycle's onRestart is
	// blocked; both must return immediately (they only mark pending),
	// and must collapse into exactly one extra cycle once the first
	// cycle's goroutine loops back around.
	require.NoError(t, c.HandleFileChange())
	require.NoError(t, c.HandleFileChange())

	close(release)
	require.NoError(t, <-firstDone)

	assert.EqualValues(t, 2, atomic.LoadInt32(&restarted))
}
