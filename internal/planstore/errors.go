package planstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no acting user identity was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrAccessDenied means the identity is known but does not own the plan.
	ErrAccessDenied = errors.New("access denied")

	// ErrIdeaMismatch means an adjustment draft was computed against a
	// different or stale idea than the plan's stored one.
	ErrIdeaMismatch = errors.New("draft idea does not match plan idea")

	// ErrEventTerminal means an adjustment event already left pending.
	ErrEventTerminal = errors.New("adjustment event already terminal")

	// ErrUpstream marks a failure from the model provider rather than
	// this engine; callers may retry where validation failures may not.
	ErrUpstream = errors.New("upstream model failure")

	// ErrPartialApply means a tree replace failed after its transaction
	// committed, leaving the plan record out of step with its subtree.
	ErrPartialApply = errors.New("tree replace partially applied")
)

// Level names a tier of the plan hierarchy for not-found reporting.
type Level string

const (
	LevelPlan        Level = "plan"
	LevelOutcome     Level = "outcome"
	LevelDeliverable Level = "deliverable"
	LevelAction      Level = "action"
)

// NotFoundError reports a missing record at the most specific level the
// ownership walk reached.
type NotFoundError struct {
	Level Level
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Level, e.ID)
}

// IsNotFound reports whether err is a NotFoundError at any level.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func notFound(level Level, id string) error {
	return &NotFoundError{Level: level, ID: id}
}
