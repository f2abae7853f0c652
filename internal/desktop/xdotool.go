package desktop

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/protocol"
)

// Input backends
const (
	BackendAuto    = "auto"
	BackendXdotool = "xdotool"
	BackendDryRun  = "dryrun"
)

// runFunc executes one tool invocation.
type runFunc func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// xdotoolKeys maps canonical key names onto X keysyms.
var xdotoolKeys = map[string]string{
	"escape":    "Escape",
	"command":   "super",
	"control":   "ctrl",
	"enter":     "Return",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"tab":       "Tab",
	"space":     "space",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"insert":    "Insert",
	"capslock":  "Caps_Lock",
	"shift":     "shift",
	"alt":       "alt",
	"slash":     "slash",
	"backslash": "backslash",
}

var xdotoolButtons = map[string]string{
	protocol.ButtonLeft:   "1",
	protocol.ButtonMiddle: "2",
	protocol.ButtonRight:  "3",
}

// XdotoolInput injects input on X11 through the xdotool binary.
type XdotoolInput struct {
	bin string
	run runFunc
}

// NewXdotoolInput locates xdotool on PATH.
func NewXdotoolInput() (*XdotoolInput, error) {
	bin, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("xdotool not found: %w", err)
	}
	return &XdotoolInput{bin: bin, run: runCommand}, nil
}

func (x *XdotoolInput) do(ctx context.Context, args ...string) error {
	return x.run(ctx, x.bin, args...)
}

func button(name string) (string, error) {
	b, ok := xdotoolButtons[name]
	if !ok {
		return "", fmt.Errorf("unsupported button %q", name)
	}
	return b, nil
}

// MoveTo implements Input.
func (x *XdotoolInput) MoveTo(ctx context.Context, px, py int) error {
	return x.do(ctx, "mousemove", "--sync", strconv.Itoa(px), strconv.Itoa(py))
}

// Click implements Input.
func (x *XdotoolInput) Click(ctx context.Context, name string, double bool) error {
	b, err := button(name)
	if err != nil {
		return err
	}
	if double {
		return x.do(ctx, "click", "--repeat", "2", b)
	}
	return x.do(ctx, "click", b)
}

// MouseToggle implements Input.
func (x *XdotoolInput) MouseToggle(ctx context.Context, name string, down bool) error {
	b, err := button(name)
	if err != nil {
		return err
	}
	if down {
		return x.do(ctx, "mousedown", b)
	}
	return x.do(ctx, "mouseup", b)
}

// Scroll implements Input using wheel buttons 4-7.
func (x *XdotoolInput) Scroll(ctx context.Context, dx, dy int) error {
	if dy != 0 {
		b := "5"
		if dy < 0 {
			b, dy = "4", -dy
		}
		if err := x.do(ctx, "click", "--repeat", strconv.Itoa(dy), b); err != nil {
			return err
		}
	}
	if dx != 0 {
		b := "7"
		if dx < 0 {
			b, dx = "6", -dx
		}
		if err := x.do(ctx, "click", "--repeat", strconv.Itoa(dx), b); err != nil {
			return err
		}
	}
	return nil
}

// TypeText implements Input.
func (x *XdotoolInput) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return x.do(ctx, "type", "--delay", "0", "--", text)
}

// KeyTap implements Input.
func (x *XdotoolInput) KeyTap(ctx context.Context, key string) error {
	if sym, ok := xdotoolKeys[key]; ok {
		key = sym
	}
	return x.do(ctx, "key", "--", key)
}

// DryRunInput logs input events without touching the desktop. It is used on
// hosts with no injection backend.
type DryRunInput struct {
	logger *zap.Logger
}

// NewDryRunInput creates a logging-only input backend.
func NewDryRunInput(logger *zap.Logger) *DryRunInput {
	return &DryRunInput{logger: logger.With(zap.String("component", "dryrun-input"))}
}

func (d *DryRunInput) MoveTo(ctx context.Context, x, y int) error {
	d.logger.Debug("move", zap.Int("x", x), zap.Int("y", y))
	return ctx.Err()
}

func (d *DryRunInput) Click(ctx context.Context, button string, double bool) error {
	d.logger.Debug("click", zap.String("button", button), zap.Bool("double", double))
	return ctx.Err()
}

func (d *DryRunInput) MouseToggle(ctx context.Context, button string, down bool) error {
	d.logger.Debug("mouse toggle", zap.String("button", button), zap.Bool("down", down))
	return ctx.Err()
}

func (d *DryRunInput) Scroll(ctx context.Context, dx, dy int) error {
	d.logger.Debug("scroll", zap.Int("dx", dx), zap.Int("dy", dy))
	return ctx.Err()
}

func (d *DryRunInput) TypeText(ctx context.Context, text string) error {
	d.logger.Debug("type", zap.Int("chars", len(text)))
	return ctx.Err()
}

func (d *DryRunInput) KeyTap(ctx context.Context, key string) error {
	d.logger.Debug("key tap", zap.String("key", key))
	return ctx.Err()
}

// NewInput selects the input backend. "auto" prefers xdotool and falls back to dry run.
func NewInput(backend string, logger *zap.Logger) (Input, error) {
	switch backend {
	case BackendXdotool:
		return NewXdotoolInput()
	case BackendDryRun:
		return NewDryRunInput(logger), nil
	case BackendAuto, "":
		if in, err := NewXdotoolInput(); err == nil {
			return in, nil
		}
		logger.Warn("no input backend available, using dry run")
		return NewDryRunInput(logger), nil
	default:
		return nil, fmt.Errorf("unknown input backend %q", backend)
	}
}
