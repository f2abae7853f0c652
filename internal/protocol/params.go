package protocol

import (
	"fmt"

	"github.com/xiaot623/deskrelay/internal/imaging"
)

// Params is the closed set of per-command parameter records.
type Params interface {
	Command() CommandName
	validate() error
}

// Mouse buttons
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// ScreenshotParams configures a capture. Zero values mean "use the executor default".
type ScreenshotParams struct {
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
}

// ClickParams moves to (X, Y) and clicks.
type ClickParams struct {
	X      *int   `json:"x"`
	Y      *int   `json:"y"`
	Button string `json:"button,omitempty"`
	Double bool   `json:"double,omitempty"`
}

// TypeParams types literal text.
type TypeParams struct {
	Text *string `json:"text"`
}

// KeypressParams taps keys in order.
type KeypressParams struct {
	Keys []string `json:"keys"`
}

// MoveParams moves the pointer.
type MoveParams struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// ScrollParams scrolls by ScrollX/ScrollY notches, optionally at (X, Y).
type ScrollParams struct {
	X       *int `json:"x,omitempty"`
	Y       *int `json:"y,omitempty"`
	ScrollX int  `json:"scroll_x"`
	ScrollY int  `json:"scroll_y"`
}

// DragParams drags from start to end with the left button held.
type DragParams struct {
	StartX *int `json:"startX"`
	StartY *int `json:"startY"`
	EndX   *int `json:"endX"`
	EndY   *int `json:"endY"`
}

func (ScreenshotParams) Command() CommandName { return CommandScreenshot }
func (ClickParams) Command() CommandName      { return CommandClick }
func (TypeParams) Command() CommandName       { return CommandType }
func (KeypressParams) Command() CommandName   { return CommandKeypress }
func (MoveParams) Command() CommandName       { return CommandMove }
func (ScrollParams) Command() CommandName     { return CommandScroll }
func (DragParams) Command() CommandName       { return CommandDrag }

func (p ScreenshotParams) validate() error {
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100")
	}
	if p.Format != "" {
		if _, err := imaging.CanonicalFormat(p.Format); err != nil {
			return err
		}
	}
	return nil
}

func (p ClickParams) validate() error {
	if err := requireInts(map[string]*int{"x": p.X, "y": p.Y}, "x", "y"); err != nil {
		return err
	}
	switch p.Button {
	case "", ButtonLeft, ButtonRight, ButtonMiddle:
		return nil
	default:
		return fmt.Errorf("unsupported button %q", p.Button)
	}
}

// ButtonOrDefault returns the requested button, left when unset.
func (p ClickParams) ButtonOrDefault() string {
	if p.Button == "" {
		return ButtonLeft
	}
	return p.Button
}

func (p TypeParams) validate() error {
	if p.Text == nil {
		return fmt.Errorf("text is required")
	}
	return nil
}

func (p KeypressParams) validate() error {
	if p.Keys == nil {
		return fmt.Errorf("keys is required")
	}
	for i, k := range p.Keys {
		if k == "" {
			return fmt.Errorf("keys[%d] is empty", i)
		}
	}
	return nil
}

func (p MoveParams) validate() error {
	return requireInts(map[string]*int{"x": p.X, "y": p.Y}, "x", "y")
}

func (p ScrollParams) validate() error {
	if (p.X == nil) != (p.Y == nil) {
		return fmt.Errorf("x and y must be given together")
	}
	return nil
}

func (p DragParams) validate() error {
	return requireInts(map[string]*int{
		"startX": p.StartX, "startY": p.StartY, "endX": p.EndX, "endY": p.EndY,
	}, "startX", "startY", "endX", "endY")
}

func requireInts(values map[string]*int, order ...string) error {
	for _, name := range order {
		if values[name] == nil {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}
