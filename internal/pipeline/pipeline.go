package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/dfpfetch/internal/archive"
	"github.com/kalambet/dfpfetch/internal/artifact"
	"github.com/kalambet/dfpfetch/internal/audit"
	"github.com/kalambet/dfpfetch/internal/config"
	"github.com/kalambet/dfpfetch/internal/input"
	"github.com/kalambet/dfpfetch/internal/portal"
	"github.com/kalambet/dfpfetch/internal/publish"
	"github.com/kalambet/dfpfetch/internal/retry"
	"github.com/kalambet/dfpfetch/internal/statement"
	"github.com/kalambet/dfpfetch/internal/storage"
)

// Publisher delivers one ticker's indicators to the downstream ingest
// endpoint. publish.Client implements it; a nil Publisher disables the
// publish stage.
type Publisher interface {
	Publish(ctx context.Context, p publish.Payload) (audit.PublishOutcome, error)
}

// Ledger persists run summaries for `dfpfetch history`. storage.Store
// implements it; a nil Ledger disables the history trail. Ledger failures
// never affect a ticker's outcome.
type Ledger interface {
	SaveRun(run storage.Run, attempts []storage.RunAttempt) error
}

// Job is one ticker's unit of work within a batch.
type Job struct {
	Ticker input.Ticker
	Start  time.Time
	End    time.Time
}

// Runner drives the per-ticker pipeline: retrieve the filing from the
// portal, persist and extract the archive, parse statements, derive ratios,
// publish, and flush the audit record. Each stage records into the audit
// builder before acting on failure, so result.json is complete at whatever
// point the run stops.
type Runner struct {
	cfg       config.Config
	newNav    func() portal.Navigator
	publisher Publisher
	ledger    Ledger
	parser    *statement.Parser

	now      func() time.Time
	newRunID func() string
}

// NewRunner wires a Runner from configuration. newNav is called once per
// ticker; a portal session is never shared across jobs. publisher and ledger
// may be nil.
func NewRunner(cfg config.Config, newNav func() portal.Navigator, pub Publisher, ledger Ledger) *Runner {
	return &Runner{
		cfg:       cfg,
		newNav:    newNav,
		publisher: pub,
		ledger:    ledger,
		parser:    statement.NewParser(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// ProcessTicker runs the full pipeline for one ticker. The returned record
// is always complete and always flushed to result.json, whatever the
// outcome; the error reports what stopped the run early, for logging. The
// record's status is authoritative: a stored artifact keeps the run out of
// the failed state even when a later stage errored.
func (r *Runner) ProcessTicker(ctx context.Context, job Job) (audit.Record, error) {
	runID := r.newRunID()
	started := r.now()
	b := audit.NewBuilder(runID, job.Ticker.Symbol, job.Ticker.FilerCode, job.Start, job.End)
	layout := artifact.NewLayout(r.cfg.Output.Root, job.Ticker.Symbol)

	runErr := r.run(ctx, job, b, layout)

	rec := b.Build(r.now())
	if err := layout.WriteResult(rec); err != nil {
		slog.Error("writing result.json", "run_id", runID, "ticker", job.Ticker.Symbol, "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	r.saveRun(rec, started, runErr)
	return rec, runErr
}

func (r *Runner) run(ctx context.Context, job Job, b *audit.Builder, layout artifact.Layout) error {
	if err := layout.Prepare(); err != nil {
		return fmt.Errorf("preparing output directories: %w", err)
	}

	runner := retry.Runner{
		MaxAttempts: r.cfg.Retry.MaxAttempts,
		BaseDelay:   r.cfg.Retry.BaseDelay(),
		MaxDelay:    r.cfg.Retry.MaxDelay(),
		Timeout:     r.cfg.Retry.Timeout(),
		OnAttempt:   b.RecordAttempt,
	}

	sess := portal.NewSession(r.newNav(), runner)
	res, err := sess.Run(ctx, job.Ticker.Symbol, job.Ticker.FilerCode, job.Start, job.End)
	if err != nil {
		return err
	}

	name := res.Filename
	if name == "" {
		name = fallbackArchiveName(job.Ticker)
	}
	art, err := layout.StoreDownload(res.Path, name)
	if err != nil {
		return fmt.Errorf("storing download: %w", err)
	}
	b.AddArtifact(art)

	docs, err := archive.Extract(art.Path, layout.ExtractedDir(), layout.PDFsDir())
	if err != nil {
		return fmt.Errorf("extracting %s: %w", art.SourceName, err)
	}
	for _, d := range docs {
		b.AddDocument(d)
	}

	set, err := r.parser.Parse(archive.Workbooks(docs), archive.PDFCopies(docs))
	if err != nil {
		var perr *statement.ParseError
		if !errors.As(err, &perr) {
			return fmt.Errorf("parsing statements: %w", err)
		}
		// Vocabulary gaps are recorded, not fatal: the filing stays on
		// disk and the record reports a null indicator set.
		slog.Warn("statement vocabulary incomplete",
			"ticker", job.Ticker.Symbol, "missing", perr.MissingFields)
		return nil
	}
	b.SetIndicators(set)
	ratios := statement.DeriveRatios(set)
	b.SetRatios(ratios)

	if r.publisher != nil {
		payload := publish.Payload{
			Ticker:       job.Ticker.Symbol,
			FilerCode:    job.Ticker.FilerCode,
			AssetClass:   job.Ticker.AssetClass,
			Source:       audit.Source,
			Period:       set.Period,
			CurrencyUnit: set.CurrencyUnit,
			Indicators:   set.Fields,
			Ratios:       ratios,
			GeneratedAt:  r.now().UTC(),
		}
		out, err := r.publisher.Publish(ctx, payload)
		b.SetPublish(out)
		if err != nil {
			slog.Warn("publishing indicators", "ticker", job.Ticker.Symbol, "error", err)
		}
	}

	return nil
}

// fallbackArchiveName names a stored download when the portal response
// carried no filename of its own.
func fallbackArchiveName(t input.Ticker) string {
	return fmt.Sprintf("%s__%s__001.zip", t.Symbol, t.FilerCode)
}

func (r *Runner) saveRun(rec audit.Record, started time.Time, runErr error) {
	if r.ledger == nil {
		return
	}
	run := storage.Run{
		ID:            rec.RunID,
		Ticker:        rec.Ticker,
		FilerCode:     rec.FilerCode,
		StartDate:     rec.DateRange.Start,
		EndDate:       rec.DateRange.End,
		Status:        string(rec.Status),
		AttemptCount:  len(rec.Attempts),
		ArtifactCount: len(rec.Artifacts),
		StartedAt:     started,
		FinishedAt:    rec.GeneratedAt,
	}
	if runErr != nil {
		run.ErrorSummary = runErr.Error()
	}
	attempts := make([]storage.RunAttempt, 0, len(rec.Attempts))
	for _, a := range rec.Attempts {
		attempts = append(attempts, storage.RunAttempt{
			Step:    a.Step,
			Number:  a.Number,
			Outcome: a.Outcome,
			Error:   a.Error,
			At:      a.At,
		})
	}
	if err := r.ledger.SaveRun(run, attempts); err != nil {
		slog.Warn("saving run to ledger", "run_id", rec.RunID, "error", err)
	}
}
