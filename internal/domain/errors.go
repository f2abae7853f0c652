package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation does not fit the session status.
	ErrInvalidState = errors.New("invalid state")
)

// BridgeError describes a failed call to the agent-execution backend.
// Status is the upstream HTTP status, zero for transport failures.
type BridgeError struct {
	Message string
	Status  int
	Detail  json.RawMessage
}

func (e *BridgeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("bridge error (status %d): %s", e.Status, e.Message)
	}
	return "bridge error: " + e.Message
}
