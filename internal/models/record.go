package models

import "time"

type RecordOutcome string

const (
	RecordSuccess RecordOutcome = "success"
	RecordFailure RecordOutcome = "failure"
	RecordFatal   RecordOutcome = "fatal"
)

// Record is one row of the local run ledger: a finished (or fatally
// terminated) orchestration, kept for `anvil history`.
type Record struct {
	ID          int64
	CreatedAt   time.Time
	Goal        string
	Workspace   string
	Outcome     RecordOutcome
	DurationSec float64
	ToolUses    int
	Error       string
	Summary     string
}
