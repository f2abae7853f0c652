package desktop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/imaging"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

// Timing of synthesized input.
const (
	DragSteps     = 10
	DragStepDelay = 5 * time.Millisecond
	KeyTapDelay   = 10 * time.Millisecond
)

func unexpectedParams(adapter string, params protocol.Params) error {
	return fmt.Errorf("%s adapter cannot execute %T", adapter, params)
}

// ScreenshotAdapter captures, normalizes and encodes the screen.
type ScreenshotAdapter struct {
	capturer Capturer
	defaults imaging.Options
	logger   *zap.Logger
}

// NewScreenshotAdapter creates a screenshot adapter using defaults for unset params.
func NewScreenshotAdapter(capturer Capturer, defaults imaging.Options, logger *zap.Logger) *ScreenshotAdapter {
	return &ScreenshotAdapter{
		capturer: capturer,
		defaults: defaults,
		logger:   logger.With(zap.String("component", "screenshot")),
	}
}

// Execute handles the screenshot command.
func (a *ScreenshotAdapter) Execute(ctx context.Context, params protocol.Params) (*protocol.Result, error) {
	p, ok := params.(protocol.ScreenshotParams)
	if !ok {
		return nil, unexpectedParams("screenshot", params)
	}

	opts := a.defaults
	if p.Format != "" {
		opts.Format = p.Format
	}
	if p.Quality > 0 {
		opts.Quality = p.Quality
	}

	start := time.Now()
	raw, err := a.capturer.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}

	img, err := imaging.Normalize(raw, opts)
	if errors.Is(err, imaging.ErrUndecodable) {
		a.logger.Warn("capture did not decode, returning placeholder", zap.Error(err))
		img, err = imaging.Normalize(imaging.Placeholder(PlaceholderWidth, PlaceholderHeight), opts)
	}
	if err != nil {
		return nil, err
	}
	encoded := img.Base64()

	a.logger.Debug("screenshot taken",
		zap.Int("raw_bytes", len(raw)),
		zap.Int("encoded_bytes", len(encoded)),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Duration("elapsed", time.Since(start)))

	return &protocol.Result{Screenshot: &protocol.ScreenshotResult{
		Image:  encoded,
		Width:  img.Width,
		Height: img.Height,
		Format: img.Format,
	}}, nil
}

// PointerAdapter handles click, move, scroll and drag.
type PointerAdapter struct {
	input     Input
	stepDelay time.Duration
}

// NewPointerAdapter creates a pointer adapter.
func NewPointerAdapter(input Input) *PointerAdapter {
	return &PointerAdapter{input: input, stepDelay: DragStepDelay}
}

// Execute handles pointer commands.
func (a *PointerAdapter) Execute(ctx context.Context, params protocol.Params) (*protocol.Result, error) {
	var err error
	switch p := params.(type) {
	case protocol.ClickParams:
		if err = a.input.MoveTo(ctx, *p.X, *p.Y); err == nil {
			err = a.input.Click(ctx, p.ButtonOrDefault(), p.Double)
		}
	case protocol.MoveParams:
		err = a.input.MoveTo(ctx, *p.X, *p.Y)
	case protocol.ScrollParams:
		if p.X != nil && p.Y != nil {
			if err = a.input.MoveTo(ctx, *p.X, *p.Y); err != nil {
				break
			}
		}
		err = a.input.Scroll(ctx, p.ScrollX, p.ScrollY)
	case protocol.DragParams:
		err = a.drag(ctx, *p.StartX, *p.StartY, *p.EndX, *p.EndY)
	default:
		return nil, unexpectedParams("pointer", params)
	}
	if err != nil {
		return nil, err
	}
	return &protocol.Result{}, nil
}

// drag moves to the start, holds the left button and interpolates DragSteps
// moves to the end so targets register a drag rather than a click.
func (a *PointerAdapter) drag(ctx context.Context, startX, startY, endX, endY int) error {
	if err := a.input.MoveTo(ctx, startX, startY); err != nil {
		return err
	}
	if err := a.input.MouseToggle(ctx, protocol.ButtonLeft, true); err != nil {
		return err
	}

	dx := float64(endX-startX) / DragSteps
	dy := float64(endY-startY) / DragSteps
	for i := 1; i <= DragSteps; i++ {
		x := roundHalfUp(float64(startX) + dx*float64(i))
		y := roundHalfUp(float64(startY) + dy*float64(i))
		err := a.input.MoveTo(ctx, x, y)
		if err == nil {
			err = sleepCtx(ctx, a.stepDelay)
		}
		if err != nil {
			// Never leave the button held.
			_ = a.input.MouseToggle(context.WithoutCancel(ctx), protocol.ButtonLeft, false)
			return err
		}
	}

	return a.input.MouseToggle(ctx, protocol.ButtonLeft, false)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// KeyboardAdapter handles type and keypress.
type KeyboardAdapter struct {
	input    Input
	keyDelay time.Duration
}

// NewKeyboardAdapter creates a keyboard adapter.
func NewKeyboardAdapter(input Input) *KeyboardAdapter {
	return &KeyboardAdapter{input: input, keyDelay: KeyTapDelay}
}

// Execute handles keyboard commands. Keys are tapped sequentially.
func (a *KeyboardAdapter) Execute(ctx context.Context, params protocol.Params) (*protocol.Result, error) {
	switch p := params.(type) {
	case protocol.TypeParams:
		if err := a.input.TypeText(ctx, *p.Text); err != nil {
			return nil, err
		}
	case protocol.KeypressParams:
		for _, key := range p.Keys {
			if err := a.input.KeyTap(ctx, ResolveKey(key)); err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			if err := sleepCtx(ctx, a.keyDelay); err != nil {
				return nil, err
			}
		}
	default:
		return nil, unexpectedParams("keyboard", params)
	}
	return &protocol.Result{}, nil
}
