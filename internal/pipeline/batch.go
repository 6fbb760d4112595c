package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/dfpfetch/internal/audit"
	"github.com/kalambet/dfpfetch/internal/input"
)

// Summary counts batch outcomes by final status.
type Summary struct {
	Succeeded int
	Partial   int
	Failed    int
}

func (s Summary) Total() int {
	return s.Succeeded + s.Partial + s.Failed
}

// RunBatch processes every ticker with bounded concurrency. A ticker's
// failure never stops the batch; each job flushes its own audit record and
// the summary tallies final statuses. The error is non-nil only when the
// context was cancelled mid-batch.
func (r *Runner) RunBatch(ctx context.Context, tickers []input.Ticker, start, end time.Time) (Summary, error) {
	records := make([]audit.Record, len(tickers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Batch.Concurrency)

	for i, t := range tickers {
		i, t := i, t
		g.Go(func() error {
			slog.Info("processing ticker", "ticker", t.Symbol, "position", i+1, "total", len(tickers))
			rec, err := r.ProcessTicker(gCtx, Job{Ticker: t, Start: start, End: end})
			if err != nil {
				slog.Error("ticker finished with error", "ticker", t.Symbol, "status", rec.Status, "error", err)
			} else {
				slog.Info("ticker finished", "ticker", t.Symbol, "status", rec.Status)
			}
			records[i] = rec
			return nil
		})
	}

	// Workers never return errors; Wait only collects.
	_ = g.Wait()

	var sum Summary
	for _, rec := range records {
		switch rec.Status {
		case audit.StatusSucceeded:
			sum.Succeeded++
		case audit.StatusPartiallySucceeded:
			sum.Partial++
		default:
			sum.Failed++
		}
	}
	return sum, ctx.Err()
}
