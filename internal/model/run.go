package model

import "time"

// Run kinds persisted to the audit table.
const (
	RunKindFundamentals = "fundamentals"
	RunKindCashFlow     = "cashflow"
)

// IngestRun is one audit row per pipeline invocation. Report holds the
// run's full JSON report as produced by the scheduler.
type IngestRun struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Success    bool      `json:"success"`
	Report     []byte    `json:"report"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
