// Package logging builds the zap loggers shared by deskrelay components.
package logging

import (
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Redacted replaces sensitive values in diagnostic output.
const Redacted = "[REDACTED]"

// sensitiveKeys are never written to logs verbatim.
var sensitiveKeys = map[string]bool{
	"instructions": true,
	"parameters":   true,
	"api_key":      true,
	"input":        true,
}

// New builds a logger for the given level ("debug", "info", ...).
// An unparseable level falls back to info.
func New(level string, development bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	if development {
		config.Development = true
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

// Redact returns a shallow copy of fields with sensitive keys masked.
func Redact(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if sensitiveKeys[k] {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

// Truncate shortens s to at most max bytes for log output, never splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
