package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/imaging"
)

// Placeholder dimensions used when every capture path fails.
const (
	PlaceholderWidth  = 800
	PlaceholderHeight = 600
)

// fileArg is replaced by a temporary output path in CommandCapturer args.
const fileArg = "{file}"

// CommandCapturer runs a native screenshot tool. If Args contains "{file}"
// the tool writes there, otherwise the image is read from stdout.
// The subprocess is killed when ctx ends.
type CommandCapturer struct {
	Tool string
	Args []string
}

// Name implements Capturer.
func (c *CommandCapturer) Name() string { return c.Tool }

// Capture implements Capturer.
func (c *CommandCapturer) Capture(ctx context.Context) ([]byte, error) {
	path, err := exec.LookPath(c.Tool)
	if err != nil {
		return nil, fmt.Errorf("%s not found: %w", c.Tool, err)
	}

	var outFile string
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if a == fileArg {
			if outFile == "" {
				outFile = filepath.Join(os.TempDir(), "deskrelay-"+uuid.New().String()+".png")
			}
			a = outFile
		}
		args[i] = a
	}
	if outFile != "" {
		defer os.Remove(outFile)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", c.Tool, err, strings.TrimSpace(stderr.String()))
	}

	if outFile == "" {
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("%s produced no output", c.Tool)
		}
		return stdout.Bytes(), nil
	}
	return os.ReadFile(outFile)
}

// LibraryCapturer captures the primary display through the portable
// screenshot library. The library call cannot be interrupted; on ctx expiry
// it is abandoned.
type LibraryCapturer struct{}

// Name implements Capturer.
func (LibraryCapturer) Name() string { return "screenshot-library" }

// Capture implements Capturer.
func (LibraryCapturer) Capture(ctx context.Context) ([]byte, error) {
	type captured struct {
		data []byte
		err  error
	}
	done := make(chan captured, 1)

	go func() {
		if screenshot.NumActiveDisplays() < 1 {
			done <- captured{err: errors.New("no active displays")}
			return
		}
		img, err := screenshot.CaptureDisplay(0)
		if err != nil {
			done <- captured{err: err}
			return
		}
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			done <- captured{err: err}
			return
		}
		done <- captured{data: buf.Bytes()}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.data, res.err
	}
}

// ChainCapturer tries each capturer in order, skipping any whose output does
// not decode as an image. When all fail it returns a
// placeholder image so viewers always receive a displayable frame; only
// context cancellation is reported as an error.
type ChainCapturer struct {
	capturers []Capturer
	logger    *zap.Logger
}

// NewChainCapturer creates a capturer that falls through capturers in order.
func NewChainCapturer(logger *zap.Logger, capturers ...Capturer) *ChainCapturer {
	return &ChainCapturer{
		capturers: capturers,
		logger:    logger.With(zap.String("component", "capture")),
	}
}

// Name implements Capturer.
func (c *ChainCapturer) Name() string { return "chain" }

// Capture implements Capturer.
func (c *ChainCapturer) Capture(ctx context.Context) ([]byte, error) {
	for _, capturer := range c.capturers {
		data, err := capturer.Capture(ctx)
		if err == nil {
			if _, _, err = image.DecodeConfig(bytes.NewReader(data)); err == nil {
				return data, nil
			}
			err = fmt.Errorf("undecodable output: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("capture method failed", zap.String("method", capturer.Name()), zap.Error(err))
	}

	c.logger.Warn("all capture methods failed, returning placeholder")
	return imaging.Placeholder(PlaceholderWidth, PlaceholderHeight), nil
}

// NativeCapturers returns the subprocess capturers available on goos.
func NativeCapturers(goos string) []Capturer {
	switch goos {
	case "darwin":
		return []Capturer{
			&CommandCapturer{Tool: "screencapture", Args: []string{"-x", "-t", "png", fileArg}},
		}
	case "linux":
		var capturers []Capturer
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			capturers = append(capturers, &CommandCapturer{Tool: "grim", Args: []string{"-t", "png", "-"}})
		}
		return append(capturers,
			&CommandCapturer{Tool: "import", Args: []string{"-window", "root", "png:-"}},
			&CommandCapturer{Tool: "scrot", Args: []string{"--overwrite", fileArg}},
		)
	default:
		return nil
	}
}

// NewDefaultCapturer builds the platform capture chain: native tools, then the
// portable library, then the placeholder.
func NewDefaultCapturer(logger *zap.Logger) *ChainCapturer {
	capturers := NativeCapturers(runtime.GOOS)
	capturers = append(capturers, LibraryCapturer{})
	return NewChainCapturer(logger, capturers...)
}
