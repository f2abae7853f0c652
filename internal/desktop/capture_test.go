package desktop

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/imaging"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

func TestChainCapturerUsesFirstSuccess(t *testing.T) {
	first := &fakeCapturer{err: errors.New("missing tool")}
	second := &fakeCapturer{data: encodePNG(t, 4, 3)}
	third := &fakeCapturer{data: encodePNG(t, 8, 8)}

	data, err := NewChainCapturer(zap.NewNop(), first, second, third).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.data, data)
}

func TestChainCapturerSkipsUndecodableOutput(t *testing.T) {
	garbage := &fakeCapturer{data: []byte("X Error of failed request: BadDrawable")}
	good := &fakeCapturer{data: encodePNG(t, 4, 3)}

	data, err := NewChainCapturer(zap.NewNop(), garbage, good).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good.data, data)
}

func TestScreenshotFallsBackToPlaceholderOnGarbage(t *testing.T) {
	chain := NewChainCapturer(zap.NewNop(), &fakeCapturer{data: []byte("not an image")})
	adapter := NewScreenshotAdapter(chain, imaging.Options{MaxWidth: 1024, MaxHeight: 768, Format: imaging.FormatPNG}, zap.NewNop())

	result, err := adapter.Execute(context.Background(), protocol.ScreenshotParams{})
	require.NoError(t, err)
	require.NotNil(t, result.Screenshot)
	assert.Equal(t, PlaceholderWidth, result.Screenshot.Width)
	assert.Equal(t, PlaceholderHeight, result.Screenshot.Height)
	assert.Equal(t, imaging.FormatPNG, result.Screenshot.Format)
}

func TestChainCapturerFallsBackToPlaceholder(t *testing.T) {
	c := NewChainCapturer(zap.NewNop(),
		&fakeCapturer{err: errors.New("a")},
		&fakeCapturer{err: errors.New("b")},
	)
	data, err := c.Capture(context.Background())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, PlaceholderWidth, img.Bounds().Dx())
	assert.Equal(t, PlaceholderHeight, img.Bounds().Dy())
}

func TestChainCapturerReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewChainCapturer(zap.NewNop(), &fakeCapturer{err: context.Canceled})
	_, err := c.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandCapturerMissingTool(t *testing.T) {
	c := &CommandCapturer{Tool: "deskrelay-no-such-tool"}
	_, err := c.Capture(context.Background())
	assert.ErrorContains(t, err, "not found")
}

func TestCommandCapturerReadsStdout(t *testing.T) {
	c := &CommandCapturer{Tool: "echo", Args: []string{"-n", "pixels"}}
	data, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestNativeCapturers(t *testing.T) {
	darwin := NativeCapturers("darwin")
	require.Len(t, darwin, 1)
	assert.Equal(t, "screencapture", darwin[0].Name())

	t.Setenv("WAYLAND_DISPLAY", "")
	linux := NativeCapturers("linux")
	require.NotEmpty(t, linux)
	assert.Equal(t, "import", linux[0].Name())

	assert.Empty(t, NativeCapturers("plan9"))
}
