package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingReadinessChecker_ReadyOnceStdinWritableAndSettled(t *testing.T) {
	h, err := (OSSpawner{}).Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "sleep 2"}})
	require.NoError(t, err)
	defer h.Dispose()

	cfg := ReadinessConfig{CheckInterval: 5 * time.Millisecond, SettleDelay: 20 * time.Millisecond, Timeout: time.Second}
	err = (PollingReadinessChecker{}).WaitUntilReady(h, cfg)
	assert.NoError(t, err)

	l := SignalTerminator{}
	_ = l.Terminate(h, TerminationProfile{ForcePeriod: time.Millisecond, ZombieTimeout: 50 * time.Millisecond})
}

func TestPollingReadinessChecker_StartupExitReturnsStartupExitKind(t *testing.T) {
	h, err := (OSSpawner{}).Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "exit 1"}})
	require.NoError(t, err)
	defer h.Dispose()

	cfg := ReadinessConfig{CheckInterval: 5 * time.Millisecond, SettleDelay: 20 * time.Millisecond, Timeout: time.Second}
	err = (PollingReadinessChecker{}).WaitUntilReady(h, cfg)
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindStartupExit, pErr.Kind)
}

func TestPollingReadinessChecker_TimeoutReturnsReadinessTimeoutKind(t *testing.T) {
	h, err := (OSSpawner{}).Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	defer func() {
		_ = (SignalTerminator{}).Terminate(h, TerminationProfile{ForcePeriod: time.Millisecond, ZombieTimeout: 50 * time.Millisecond})
	}()

	// Interval never fires before the tiny timeout, so readiness always
	// times out regardless of the child's actual liveness.
	cfg := ReadinessConfig{CheckInterval: time.Second, SettleDelay: time.Second, Timeout: 20 * time.Millisecond}
	err = (PollingReadinessChecker{}).WaitUntilReady(h, cfg)
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindReadinessTimeout, pErr.Kind)
}

func TestPollingReadinessChecker_CrashDuringSettleWindowFailsFast(t *testing.T) {
	h, err := (OSSpawner{}).Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "sleep 0.05"}})
	require.NoError(t, err)
	defer h.Dispose()

	cfg := ReadinessConfig{CheckInterval: 5 * time.Millisecond, SettleDelay: 500 * time.Millisecond, Timeout: 2 * time.Second}
	err = (PollingReadinessChecker{}).WaitUntilReady(h, cfg)
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindStartupExit, pErr.Kind)
}
