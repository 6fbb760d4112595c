package audit

import (
	"time"

	"github.com/kalambet/dfpfetch/internal/retry"
	"github.com/kalambet/dfpfetch/internal/statement"
)

// Builder accumulates audit entries as a ticker job progresses and renders
// the final Record once at the end. Every pipeline step records into the
// builder before acting on a failure, so the record is valid at any
// truncation point.
type Builder struct {
	rec Record
}

// NewBuilder starts an audit record for one ticker job.
func NewBuilder(runID, ticker, filerCode string, start, end time.Time) *Builder {
	return &Builder{
		rec: Record{
			RunID:     runID,
			Ticker:    ticker,
			FilerCode: filerCode,
			Source:    Source,
			DateRange: DateRange{
				Start: start.Format("2006-01-02"),
				End:   end.Format("2006-01-02"),
			},
			Attempts:  []AttemptEntry{},
			Artifacts: []Artifact{},
			Documents: []Document{},
		},
	}
}

// RecordAttempt appends one retry attempt. It has the signature expected by
// retry.Runner's OnAttempt hook.
func (b *Builder) RecordAttempt(a retry.Attempt) {
	outcome := "success"
	if !a.OK {
		outcome = "failure"
	}
	b.rec.Attempts = append(b.rec.Attempts, AttemptEntry{
		Step:    a.Step,
		Number:  a.Number,
		Outcome: outcome,
		Error:   a.Err,
		At:      a.At,
	})
}

// AddArtifact appends a persisted download.
func (b *Builder) AddArtifact(a Artifact) {
	b.rec.Artifacts = append(b.rec.Artifacts, a)
}

// AddDocument appends one classified entry from the extracted set.
func (b *Builder) AddDocument(d Document) {
	b.rec.Documents = append(b.rec.Documents, d)
}

// SetIndicators records the parsed indicator set; nil means none was derived.
func (b *Builder) SetIndicators(s *statement.IndicatorSet) {
	b.rec.Indicators = s
}

// SetRatios records the derived ratios; nil means none were computed.
func (b *Builder) SetRatios(r map[string]float64) {
	b.rec.Ratios = r
}

// SetPublish records the downstream delivery outcome.
func (b *Builder) SetPublish(o PublishOutcome) {
	b.rec.Publish = o
}

// Attempts returns the number of attempts recorded so far.
func (b *Builder) Attempts() int {
	return len(b.rec.Attempts)
}

// ArtifactCount returns the number of downloaded artifacts recorded so far.
func (b *Builder) ArtifactCount() int {
	return len(b.rec.Artifacts)
}

// Build computes the final status and returns the rendered record.
//
// Status derivation: failed iff no downloaded artifact exists;
// partially-succeeded iff an artifact exists but no indicator set was derived
// or an attempted publish was not delivered; succeeded otherwise.
func (b *Builder) Build(now time.Time) Record {
	rec := b.rec
	rec.Status = b.status()
	rec.GeneratedAt = now.UTC()
	return rec
}

func (b *Builder) status() Status {
	if len(b.rec.Artifacts) == 0 {
		return StatusFailed
	}
	if b.rec.Indicators == nil {
		return StatusPartiallySucceeded
	}
	if b.rec.Publish.Attempted && !b.rec.Publish.Delivered {
		return StatusPartiallySucceeded
	}
	return StatusSucceeded
}
