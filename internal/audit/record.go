package audit

import (
	"time"

	"github.com/kalambet/dfpfetch/internal/statement"
)

// Source identifies the filings-portal pipeline in audit records and
// downstream submissions.
const Source = "CVM_RAD_ENET_DFP"

// Status is the final outcome of one ticker job.
type Status string

const (
	StatusSucceeded          Status = "succeeded"
	StatusPartiallySucceeded Status = "partially-succeeded"
	StatusFailed             Status = "failed"
)

// AttemptEntry is one execution of a pipeline step, success or failure.
type AttemptEntry struct {
	Step    string    `json:"step"`
	Number  int       `json:"attempt"`
	Outcome string    `json:"outcome"` // "success" or "failure"
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Artifact describes a downloaded archive as persisted under downloads/.
type Artifact struct {
	SourceName string `json:"source_name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum,omitempty"` // sha256, hex
}

// Document classification for entries unpacked from a filing archive.
const (
	DocStatementPDF      = "statement-pdf"
	DocStatementWorkbook = "statement-workbook"
	DocOther             = "other"
)

// Document describes one entry unpacked from an archive and how it was
// classified. CopiedTo is set for statement PDFs flattened into pdfs/.
type Document struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	CopiedTo string `json:"copied_to,omitempty"`
}

// PublishOutcome captures the downstream delivery result for one ticker.
// Attempted is false when no indicator set existed or publishing was skipped.
type PublishOutcome struct {
	Attempted  bool   `json:"attempted"`
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DateRange is the filing date window of one ticker job.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Record is the durable audit record of one ticker job, rendered to
// result.json. It is complete at any truncation point of the pipeline.
type Record struct {
	RunID       string                  `json:"run_id"`
	Ticker      string                  `json:"ticker"`
	FilerCode   string                  `json:"cvm_code,omitempty"`
	Source      string                  `json:"source"`
	DateRange   DateRange               `json:"date_range"`
	Attempts    []AttemptEntry          `json:"attempts"`
	Artifacts   []Artifact              `json:"artifacts"`
	Documents   []Document              `json:"documents"`
	Indicators  *statement.IndicatorSet `json:"indicators"`
	Ratios      map[string]float64      `json:"ratios"`
	Status      Status                  `json:"status"`
	Publish     PublishOutcome          `json:"publish"`
	GeneratedAt time.Time               `json:"generated_at"`
}
