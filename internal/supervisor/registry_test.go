package supervisor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := NewRegistry(map[string]config.ServiceSpec{
		"sleeper": {Command: []string{"sleep", "30"}},
		"quick":   {Command: []string{"true"}},
		"broken":  {Command: []string{"deskrelay-definitely-missing"}},
	}, zap.NewNop())
	r.stopTimeout = time.Second
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func TestStartStopStatus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	status, err := r.Status("sleeper")
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Nil(t, status.PID)

	require.NoError(t, r.Start("sleeper"))
	status, err = r.Status("sleeper")
	require.NoError(t, err)
	assert.True(t, status.Running)
	require.NotNil(t, status.PID)
	firstPID := *status.PID

	// Second start keeps the same process.
	require.NoError(t, r.Start("sleeper"))
	status, _ = r.Status("sleeper")
	assert.Equal(t, firstPID, *status.PID)

	require.NoError(t, r.Stop(ctx, "sleeper"))
	status, _ = r.Status("sleeper")
	assert.False(t, status.Running)

	assert.ErrorIs(t, r.Stop(ctx, "sleeper"), ErrNotRunning)
}

func TestUnknownService(t *testing.T) {
	r := newTestRegistry(t)
	assert.ErrorIs(t, r.Start("nope"), ErrUnknownService)
	assert.ErrorIs(t, r.Stop(context.Background(), "nope"), ErrUnknownService)
	_, err := r.Status("nope")
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.False(t, r.Known("nope"))
}

func TestStartFailure(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.Start("broken"))
	status, err := r.Status("broken")
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestExitedProcessReportsStopped(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Start("quick"))
	require.Eventually(t, func() bool {
		status, _ := r.Status("quick")
		return !status.Running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsEverything(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Start("sleeper"))
	require.NoError(t, r.Close(context.Background()))

	all := r.StatusAll()
	assert.Len(t, all, 3)
	assert.False(t, all["sleeper"].Running)
	assert.Equal(t, []string{"broken", "quick", "sleeper"}, r.Names())
}
