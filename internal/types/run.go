package types

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord archives one CLI run and its rendered report.
type RunRecord struct {
	ID         uuid.UUID `json:"id"`
	Command    string    `json:"command"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Successes  int       `json:"successes"`
	Skips      int       `json:"skips"`
	Failures   int       `json:"failures"`
	Aborted    bool      `json:"aborted"`
	Markdown   string    `json:"markdown"`
}
