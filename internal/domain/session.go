package domain

import (
	"encoding/json"
	"time"
)

// Parameter keys read by the coordinator.
const (
	ParamInstructions = "instructions"
	ParamModel        = "model"
)

// Configuration is a named, reusable agent setup.
type Configuration struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	CreatedAt   time.Time      `json:"created_at"`
}

// StringParam returns parameters[key] when it is a non-empty string.
func (c *Configuration) StringParam(key string) (string, bool) {
	if c == nil || c.Parameters == nil {
		return "", false
	}
	s, ok := c.Parameters[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Session is a caller-visible unit of agent-execution state.
type Session struct {
	ID              int64           `json:"id"`
	SessionID       string          `json:"session_id"`
	ConfigurationID int64           `json:"configuration_id"`
	Status          SessionStatus   `json:"status"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	LastActiveAt    time.Time       `json:"last_active_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SessionSummary is a session joined with its configuration name.
type SessionSummary struct {
	ID           int64         `json:"id"`
	SessionID    string        `json:"session_id"`
	Name         string        `json:"name"`
	Status       SessionStatus `json:"status"`
	LastActiveAt time.Time     `json:"last_active_at"`
}

// SessionDetail is a session with its full configuration.
type SessionDetail struct {
	Session
	Configuration Configuration `json:"configuration"`
}
