// Package domain defines the core domain models for session coordination.
package domain

// SessionStatus represents the lifecycle status of an agent session.
type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "created"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusStopped SessionStatus = "stopped"
	SessionStatusError   SessionStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusStopped || s == SessionStatusError
}

// CanTransition reports whether moving from s to next is allowed.
// Status never moves backward; running -> running refreshes activity.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionStatusCreated:
		return next == SessionStatusRunning || next.IsTerminal()
	case SessionStatusRunning:
		return next == SessionStatusRunning || next.IsTerminal()
	default:
		return false
	}
}
