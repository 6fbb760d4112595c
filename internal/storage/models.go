package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one ticker job's row in the ledger: a compact summary of the audit
// record, kept across runs so history survives result.json overwrites.
type Run struct {
	ID            string
	Ticker        string
	FilerCode     string
	StartDate     string // date range, "2006-01-02"
	EndDate       string
	Status        string
	AttemptCount  int
	ArtifactCount int
	ErrorSummary  string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// RunAttempt mirrors one attempt entry of a run's audit record.
type RunAttempt struct {
	Step    string
	Number  int
	Outcome string
	Error   string
	At      time.Time
}
