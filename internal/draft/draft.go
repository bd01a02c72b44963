// Package draft defines the plan draft structure exchanged with the external
// model and its schema validation. A draft is a complete proposed tree; it
// carries no node identifiers because the model re-emits the whole structure
// on every generation and adjustment.
package draft

// Draft is a full proposed plan tree, ordered as it should be stored.
type Draft struct {
	Idea     string    `json:"idea"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Outcomes []Outcome `json:"outcomes"`
}

// Outcome is one proposed outcome with its deliverables.
type Outcome struct {
	Title        string        `json:"title"`
	Summary      string        `json:"summary"`
	Status       string        `json:"status"`
	Deliverables []Deliverable `json:"deliverables"`
}

// Deliverable is one proposed deliverable with its actions.
type Deliverable struct {
	Title    string   `json:"title"`
	DoneWhen string   `json:"done_when"`
	Notes    string   `json:"notes,omitempty"`
	Status   string   `json:"status"`
	Actions  []Action `json:"actions"`
}

// Action is one proposed leaf step.
type Action struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Bounds carries the structural limits a draft must satisfy.
type Bounds struct {
	MaxIdeaLen      int
	MaxTitleLen     int
	MaxSummaryLen   int
	MaxDoneWhenLen  int
	MaxNotesLen     int
	MaxOutcomes     int
	MaxDeliverables int
	MaxActions      int
}

// DefaultBounds returns the schema limits used when no override is configured.
func DefaultBounds() Bounds {
	return Bounds{
		MaxIdeaLen:      2000,
		MaxTitleLen:     200,
		MaxSummaryLen:   1000,
		MaxDoneWhenLen:  500,
		MaxNotesLen:     1000,
		MaxOutcomes:     5,
		MaxDeliverables: 5,
		MaxActions:      7,
	}
}
