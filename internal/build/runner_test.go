package build

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunner_EmptyCommandResolvesTrueWithoutSpawning(t *testing.T) {
	r := New()
	assert.True(t, r.Run(Config{Command: ""}))
	assert.True(t, r.Run(Config{Command: "   "}))
}

func TestRunner_SuccessfulBuildResolvesTrue(t *testing.T) {
	r := New()
	assert.True(t, r.Run(Config{Command: "exit 0", Timeout: time.Second}))
}

func TestRunner_FailedBuildResolvesFalse(t *testing.T) {
	r := New()
	assert.False(t, r.Run(Config{Command: "exit 1", Timeout: time.Second}))
}

func TestRunner_TimeoutResolvesFalse(t *testing.T) {
	r := New()
	start := time.Now()
	ok := r.Run(Config{Command: "sleep 5", Timeout: 50 * time.Millisecond})
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunner_CancelStopsInFlightBuild(t *testing.T) {
	r := New()
	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- r.Run(Config{Command: "sleep 5", Timeout: 10 * time.Second})
	}()

	time.Sleep(50 * time.Millisecond)
	r.Cancel()

	select {
	case ok := <-resultCh:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("cancel did not stop the build in time")
	}
}

func TestRunner_CancelWithNothingRunningIsNoop(t *testing.T) {
	r := New()
	r.Cancel()
	r.Cancel()
}

func TestRunner_NewRunCancelsPreviousBuild(t *testing.T) {
	r := New()
	firstDone := make(chan bool, 1)
	go func() {
		firstDone <- r.Run(Config{Command: "sleep 5", Timeout: 10 * time.Second})
	}()

	time.Sleep(50 * time.Millisecond)
	second := r.Run(Config{Command: "exit 0", Timeout: time.Second})
	assert.True(t, second)

	select {
	case ok := <-firstDone:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("starting a new build did not cancel the first")
	}
}

func TestRunner_IgnoresCommandOutput(t *testing.T) {
	r := New()
	assert.True(t, r.Run(Config{Command: "echo hello && echo world 1>&2", Timeout: time.Second}))
}

func TestRunner_EscalatesToSIGKILLWhenTermIgnored(t *testing.T) {
	r := New()
	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- r.Run(Config{Command: "trap '' TERM; sleep 5 & wait", Timeout: 10 * time.Second})
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	r.Cancel()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, killGrace)
	select {
	case ok := <-resultCh:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("SIGKILL escalation did not stop the build")
	}
}
