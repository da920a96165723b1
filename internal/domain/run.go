package domain

import "time"

// Prompt is a seed prompt with an optional rewritten variant.
type Prompt struct {
	Seed      string
	Rewritten string
}

// Effective returns the rewritten prompt if present, else the seed.
func (p Prompt) Effective() string {
	if p.Rewritten != "" {
		return p.Rewritten
	}
	return p.Seed
}

// Run tracks one in-progress or terminal image-generation run.
type Run struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	TotalTarget int
	Accepted    int
	Attempted   int
	CostSoFar   float64
	State       RunState
	Error       string
}

// IsTerminal reports whether the run has reached Finished or Failed.
func (r Run) IsTerminal() bool {
	return r.State == RunStateFinished || r.State == RunStateFailed
}

// RunSummary is a terminal-run audit row for the Run History Ledger.
// It is informational only: it is never read back to resume a run.
type RunSummary struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	TargetImgs int        `json:"target_images"`
	Accepted   int        `json:"accepted"`
	CostTotal  float64    `json:"cost_total"`
	Outcome    RunOutcome `json:"outcome"`
	Error      string     `json:"error,omitempty"`
}
