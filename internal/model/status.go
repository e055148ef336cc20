package model

import "github.com/pkg/errors"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

type Gating string

const (
	// GatingAllOf requires every task in the phase to complete.
	GatingAllOf Gating = "all_of"
	// GatingBestEffort lets timed-out best-effort tasks degrade instead of block.
	GatingBestEffort Gating = "best_effort"
)

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionFinalized SessionStatus = "finalized"
	SessionFailed    SessionStatus = "failed"
	SessionAborted   SessionStatus = "aborted"
)

var terminalStatuses = map[TaskStatus]bool{
	StatusCompleted: true,
}

// Task transitions: pending → in_progress → completed. There is no failure
// state and no way back.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusPending: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusCompleted: true,
	},
}

var terminalSessionStatuses = map[SessionStatus]bool{
	SessionFinalized: true,
	SessionFailed:    true,
	SessionAborted:   true,
}

func IsTerminal(s TaskStatus) bool {
	return terminalStatuses[s]
}

func IsSessionTerminal(s SessionStatus) bool {
	return terminalSessionStatuses[s]
}

func (s TaskStatus) Valid() bool {
	_, ok := validTaskTransitions[s]
	return ok || terminalStatuses[s]
}

func (g Gating) Valid() bool {
	return g == GatingAllOf || g == GatingBestEffort
}

func ValidateTaskTransition(from, to TaskStatus) error {
	if IsTerminal(from) {
		return errors.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return errors.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return errors.Errorf("invalid task transition: %q → %q", from, to)
	}
	return nil
}
