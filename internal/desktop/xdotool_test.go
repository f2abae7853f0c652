package desktop

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/protocol"
)

func newRecordingXdotool() (*XdotoolInput, *[]string) {
	var calls []string
	x := &XdotoolInput{
		bin: "xdotool",
		run: func(_ context.Context, name string, args ...string) error {
			calls = append(calls, name+" "+strings.Join(args, " "))
			return nil
		},
	}
	return x, &calls
}

func TestXdotoolCommands(t *testing.T) {
	ctx := context.Background()
	x, calls := newRecordingXdotool()

	require.NoError(t, x.MoveTo(ctx, 3, 4))
	require.NoError(t, x.Click(ctx, protocol.ButtonLeft, false))
	require.NoError(t, x.Click(ctx, protocol.ButtonRight, true))
	require.NoError(t, x.MouseToggle(ctx, protocol.ButtonLeft, true))
	require.NoError(t, x.MouseToggle(ctx, protocol.ButtonLeft, false))
	require.NoError(t, x.TypeText(ctx, "-rf"))
	require.NoError(t, x.TypeText(ctx, ""))

	assert.Equal(t, []string{
		"xdotool mousemove --sync 3 4",
		"xdotool click 1",
		"xdotool click --repeat 2 3",
		"xdotool mousedown 1",
		"xdotool mouseup 1",
		"xdotool type --delay 0 -- -rf",
	}, *calls)
}

func TestXdotoolScrollDirections(t *testing.T) {
	x, calls := newRecordingXdotool()
	require.NoError(t, x.Scroll(context.Background(), -1, 3))
	require.NoError(t, x.Scroll(context.Background(), 2, -4))
	require.NoError(t, x.Scroll(context.Background(), 0, 0))

	assert.Equal(t, []string{
		"xdotool click --repeat 3 5",
		"xdotool click --repeat 1 6",
		"xdotool click --repeat 4 4",
		"xdotool click --repeat 2 7",
	}, *calls)
}

func TestXdotoolKeysyms(t *testing.T) {
	x, calls := newRecordingXdotool()
	for _, key := range []string{"enter", "escape", "command", "pagedown", "a"} {
		require.NoError(t, x.KeyTap(context.Background(), key))
	}
	assert.Equal(t, []string{
		"xdotool key -- Return",
		"xdotool key -- Escape",
		"xdotool key -- super",
		"xdotool key -- Next",
		"xdotool key -- a",
	}, *calls)
}

func TestXdotoolRejectsUnknownButton(t *testing.T) {
	x, calls := newRecordingXdotool()
	assert.Error(t, x.Click(context.Background(), "fourth", false))
	assert.Empty(t, *calls)
}

func TestResolveKey(t *testing.T) {
	assert.Equal(t, "control", ResolveKey("Ctrl"))
	assert.Equal(t, "command", ResolveKey("win"))
	assert.Equal(t, "escape", ResolveKey("ESC"))
	assert.Equal(t, "F5", ResolveKey("F5"))
}

func TestNewInputBackends(t *testing.T) {
	in, err := NewInput(BackendDryRun, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &DryRunInput{}, in)

	_, err = NewInput("robot", zap.NewNop())
	assert.Error(t, err)

	in, err = NewInput(BackendAuto, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, in)
}
