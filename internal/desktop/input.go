// Package desktop implements the executor adapters that drive the local
// desktop: screen capture, pointer control and key injection.
package desktop

import (
	"context"
	"strings"
	"time"
)

// Input injects pointer and keyboard events. Implementations are selected at startup.
type Input interface {
	MoveTo(ctx context.Context, x, y int) error
	Click(ctx context.Context, button string, double bool) error
	// MouseToggle presses (down=true) or releases a button.
	MouseToggle(ctx context.Context, button string, down bool) error
	// Scroll scrolls by notches; positive dy scrolls down, positive dx right.
	Scroll(ctx context.Context, dx, dy int) error
	TypeText(ctx context.Context, text string) error
	// KeyTap taps a key given by its canonical name (see ResolveKey).
	KeyTap(ctx context.Context, key string) error
}

// Capturer grabs the screen as encoded image bytes.
type Capturer interface {
	Name() string
	Capture(ctx context.Context) ([]byte, error)
}

// keyMapping maps symbolic names used by agents onto canonical key names.
var keyMapping = map[string]string{
	"/":          "slash",
	"\\":         "backslash",
	"alt":        "alt",
	"arrowdown":  "down",
	"arrowleft":  "left",
	"arrowright": "right",
	"arrowup":    "up",
	"backspace":  "backspace",
	"capslock":   "capslock",
	"cmd":        "command",
	"ctrl":       "control",
	"delete":     "delete",
	"end":        "end",
	"enter":      "enter",
	"esc":        "escape",
	"home":       "home",
	"insert":     "insert",
	"option":     "alt",
	"pagedown":   "pagedown",
	"pageup":     "pageup",
	"shift":      "shift",
	"space":      "space",
	"super":      "command",
	"tab":        "tab",
	"win":        "command",
}

// ResolveKey maps key through the symbolic table (case-insensitively).
// Unmapped names pass through unchanged.
func ResolveKey(key string) string {
	if mapped, ok := keyMapping[strings.ToLower(key)]; ok {
		return mapped
	}
	return key
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
