package models

import "time"

// Outcome is the verdict of one agent session. Success defaults to true and
// flips only when the terminal result message reports an error or when the
// orchestrator catches an exception.
type Outcome struct {
	Success     bool
	Duration    time.Duration
	Accumulated string // assistant text, append-only during streaming
	ToolUses    int
	Error       string
}

// NewOutcome returns an Outcome with the permissive success default.
func NewOutcome() *Outcome {
	return &Outcome{Success: true}
}

func (o *Outcome) Label() string {
	if o.Success {
		return "success"
	}
	return "failure"
}
