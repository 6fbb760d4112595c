package portal

import (
	"context"
	"errors"
	"time"
)

// Sentinel failures of the retrieval flow. ErrTickerNotFound and
// ErrNoFilingsInRange are terminal for the ticker and bypass retry;
// ErrDownloadIncomplete is retried.
var (
	ErrTickerNotFound     = errors.New("ticker has no registered filer page")
	ErrNoFilingsInRange   = errors.New("no filings in date range")
	ErrDownloadIncomplete = errors.New("download incomplete")
)

// Filing is one row of the portal's filing listing.
type Filing struct {
	ID          int64
	Date        time.Time
	Category    string
	DownloadURL string
}

// Navigator is the narrow surface of the page-automation capability the
// retrieval session drives. Implementations own portal specifics; the
// session owns step ordering, retry, and the selection policy.
type Navigator interface {
	// Search locates the filer page for the ticker. filerCode addresses the
	// filer directly when the input file supplies it.
	Search(ctx context.Context, ticker, filerCode string) error

	// FilterByDate restricts the filer's filings to those whose filing date
	// falls within [start, end] inclusive.
	FilterByDate(ctx context.Context, start, end time.Time) ([]Filing, error)

	// Select opens one filing from the filtered listing.
	Select(ctx context.Context, f Filing) error

	// Download retrieves the selected filing's archive to local storage and
	// returns its path along with the source filename, when the portal
	// provided one.
	Download(ctx context.Context) (path, filename string, err error)
}

// Options configures a navigator.
type Options struct {
	// BaseURL of the filings portal.
	BaseURL string

	// Headless is accepted for compatibility with browser-driven navigators.
	// The HTTP navigator has no browser and ignores it.
	Headless bool
}
