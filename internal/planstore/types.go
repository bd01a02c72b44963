// Package planstore owns the plan tree: a SQLite-backed strict hierarchy of
// Plan -> Outcome -> Deliverable -> Action with ownership-scoped access,
// dense sibling ordering, whole-subtree replacement, read-only resolvers,
// and the adjustment audit log.
package planstore

import "time"

// Status is the lifecycle state of a tree node.
type Status string

const (
	StatusTodo  Status = "todo"
	StatusDoing Status = "doing"
	StatusDone  Status = "done"
)

// Valid reports whether s is one of the node statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanScraping   PlanStatus = "scraping"
	PlanGenerating PlanStatus = "generating"
	PlanReady      PlanStatus = "ready"
	PlanError      PlanStatus = "error"
)

// EventStatus is the state of an adjustment event. Transitions are
// monotonic: pending moves to applied or error and never back.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventApplied EventStatus = "applied"
	EventError   EventStatus = "error"
)

// Plan is the root entity, owned by a single user.
type Plan struct {
	ID              string
	UserID          string
	Idea            string
	Title           string
	Summary         string
	Status          PlanStatus
	GenerationError string
	Research        []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Outcome is a top-level result under a plan.
type Outcome struct {
	ID        string
	PlanID    string
	Title     string
	Summary   string
	Status    Status
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deliverable is a concrete artifact under an outcome.
type Deliverable struct {
	ID        string
	OutcomeID string
	Title     string
	DoneWhen  string
	Notes     string
	Status    Status
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Action is a leaf step under a deliverable.
type Action struct {
	ID            string
	DeliverableID string
	Title         string
	Status        Status
	Position      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AdjustmentEvent records one AI generation or adjustment attempt.
// Events are append-only and immutable once terminal.
type AdjustmentEvent struct {
	ID        string
	PlanID    string
	Prompt    string
	ThreadID  string
	Status    EventStatus
	Summary   string
	Error     string
	AppliedAt *time.Time
	LatencyMS int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Thread maps a plan to its reusable model conversation handle.
type Thread struct {
	PlanID    string
	UserID    string
	Handle    string
	CreatedAt time.Time
}

// Chain is the ancestor path fetched while verifying ownership. Fields above
// the resolved node are always populated; callers reuse them instead of
// re-querying.
type Chain struct {
	Plan        *Plan
	Outcome     *Outcome
	Deliverable *Deliverable
	Action      *Action
}
