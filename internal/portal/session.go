package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kalambet/dfpfetch/internal/archive"
	"github.com/kalambet/dfpfetch/internal/retry"
)

// State names the retrieval session's position in its flow. The failing
// state is carried into Failure so the audit record shows where a run
// stopped.
type State string

const (
	StateIdle        State = "Idle"
	StateSearching   State = "Searching"
	StateFiltering   State = "Filtering"
	StateSelecting   State = "Selecting"
	StateDownloading State = "Downloading"
	StateDownloaded  State = "Downloaded"
	StateFailed      State = "Failed"
)

// Failure is the terminal error of a retrieval session.
type Failure struct {
	State State // state that produced the failure
	Kind  string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", strings.ToLower(string(f.State)), f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// failureKind classifies an error for the audit record.
func failureKind(state State, err error) string {
	switch {
	case errors.Is(err, ErrTickerNotFound):
		return "NotFound"
	case errors.Is(err, ErrNoFilingsInRange):
		return "NoFilingsInRange"
	case errors.Is(err, ErrDownloadIncomplete):
		return "DownloadIncomplete"
	case errors.Is(err, context.DeadlineExceeded) && state == StateDownloading:
		return "DownloadTimeout"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	default:
		return "Error"
	}
}

// Result is a completed retrieval: the chosen filing and the downloaded
// archive's temporary location, ready to be moved into the artifact store.
type Result struct {
	Filing   Filing
	Path     string
	Filename string
}

// Session drives one ticker's retrieval: search the filer, filter filings by
// date, select one, download its archive. Every navigator interaction runs
// under the retry controller; non-retriable failures stop the session on the
// first attempt.
type Session struct {
	nav    Navigator
	runner retry.Runner
	state  State
}

// NewSession returns an idle session over the navigator. The runner carries
// the caller's retry and timeout configuration and records every attempt.
func NewSession(nav Navigator, runner retry.Runner) *Session {
	return &Session{nav: nav, runner: runner, state: StateIdle}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Run executes the retrieval flow for one ticker. On success the session
// ends in Downloaded; on error it ends in Failed and returns a *Failure
// wrapping the last attempt's error.
func (s *Session) Run(ctx context.Context, ticker, filerCode string, start, end time.Time) (*Result, error) {
	s.state = StateSearching
	if err := s.runner.Do(ctx, "search", func(ctx context.Context) error {
		return s.nav.Search(ctx, ticker, filerCode)
	}); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateFiltering
	var filings []Filing
	if err := s.runner.Do(ctx, "filter", func(ctx context.Context) error {
		fs, err := s.nav.FilterByDate(ctx, start, end)
		if err != nil {
			return err
		}
		if len(fs) == 0 {
			return ErrNoFilingsInRange
		}
		filings = fs
		return nil
	}); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateSelecting
	filing := selectFiling(filings)
	if err := s.runner.Do(ctx, "select", func(ctx context.Context) error {
		return s.nav.Select(ctx, filing)
	}); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateDownloading
	var res Result
	if err := s.runner.Do(ctx, "download", func(ctx context.Context) error {
		path, name, err := s.nav.Download(ctx)
		if err != nil {
			return err
		}
		if err := archive.Validate(path); err != nil {
			os.Remove(path)
			return retry.Transient(fmt.Errorf("%w: %v", ErrDownloadIncomplete, err))
		}
		res = Result{Filing: filing, Path: path, Filename: name}
		return nil
	}); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateDownloaded
	slog.Debug("retrieval complete",
		"ticker", ticker, "filing_id", filing.ID, "archive", res.Filename)
	return &res, nil
}

func (s *Session) fail(err error) error {
	at := s.state
	s.state = StateFailed
	f := &Failure{State: at, Kind: failureKind(at, err), Err: err}
	slog.Warn("retrieval failed", "state", string(at), "kind", f.Kind, "error", err)
	return f
}

// selectFiling picks the filing to download when several match the range:
// the most recent filing date wins, ties broken by identifier descending.
func selectFiling(filings []Filing) Filing {
	best := filings[0]
	for _, f := range filings[1:] {
		if f.Date.After(best.Date) || (f.Date.Equal(best.Date) && f.ID > best.ID) {
			best = f
		}
	}
	return best
}
