// Package adapters isolates the external model service behind a narrow
// interface so generation can run against the real API or a deterministic
// offline fake.
package adapters

import "context"

// Request describes one structured-generation call.
type Request struct {
	// ThreadID addresses the persistent conversation context for the plan.
	ThreadID string
	// Idea is the plan's original free text.
	Idea string
	// Instruction is the adjustment prompt; empty for initial generation.
	Instruction string
	// Research holds optional snippets gathered before generation.
	Research []string
}

// ModelAdapter produces plan drafts from an external model.
type ModelAdapter interface {
	Name() string

	// NewThread creates a conversation context and returns its opaque handle.
	NewThread(ctx context.Context) (string, error)

	// GeneratePlan asks the model for a complete plan draft and returns the
	// raw JSON bytes. The caller parses and validates; adapters make no
	// promise beyond returning the model's output.
	GeneratePlan(ctx context.Context, req Request) ([]byte, error)
}

// Researcher is implemented by adapters able to gather research snippets
// for an idea before generation.
type Researcher interface {
	Research(ctx context.Context, idea string) ([]string, error)
}
