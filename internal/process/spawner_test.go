package process

import (
	"bufio"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSSpawner_SpawnStartsProcessWithPipes(t *testing.T) {
	s := OSSpawner{InstanceID: "test"}
	h, err := s.Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "read line; echo \"got:$line\""}})
	require.NoError(t, err)
	defer h.Dispose()

	assert.Greater(t, h.PID, 0)
	require.True(t, h.StdinWritable())

	_, err = h.Stdin.Write([]byte("hello\n"))
	require.NoError(t, err)

	scanner := bufio.NewScanner(h.Stdout)
	require.True(t, scanner.Scan())
	assert.Equal(t, "got:hello", scanner.Text())

	<-h.WaitForCrash()
	assert.False(t, h.IsAlive())
}

func TestOSSpawner_SpawnSetsInstanceMarkerEnv(t *testing.T) {
	s := OSSpawner{InstanceID: "marker-123"}
	h, err := s.Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "echo $" + InstanceMarkerEnv}})
	require.NoError(t, err)
	defer h.Dispose()

	scanner := bufio.NewScanner(h.Stdout)
	require.True(t, scanner.Scan())
	assert.Equal(t, "marker-123", scanner.Text())
	<-h.WaitForCrash()
}

func TestOSSpawner_SpawnMergesParentEnv(t *testing.T) {
	require.NoError(t, os.Setenv("MCP_HOT_RELOAD_TEST_VAR", "present"))
	defer os.Unsetenv("MCP_HOT_RELOAD_TEST_VAR")

	s := OSSpawner{}
	h, err := s.Spawn(SpawnConfig{Command: "sh", Args: []string{"-c", "echo $MCP_HOT_RELOAD_TEST_VAR"}})
	require.NoError(t, err)
	defer h.Dispose()

	scanner := bufio.NewScanner(h.Stdout)
	require.True(t, scanner.Scan())
	assert.Equal(t, "present", scanner.Text())
	<-h.WaitForCrash()
}

func TestOSSpawner_SpawnUnknownCommandReturnsSpawnError(t *testing.T) {
	s := OSSpawner{}
	_, err := s.Spawn(SpawnConfig{Command: "mcp-hot-reload-definitely-not-a-real-binary"})
	require.Error(t, err)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindSpawnError, pErr.Kind)
}
