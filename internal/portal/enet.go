package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/dfpfetch/internal/retry"
)

// portalDateLayout is the dd/mm/yyyy format the portal renders and accepts.
const portalDateLayout = "02/01/2006"

// categoryDFP restricts the consultation to standardized annual filings.
const categoryDFP = "DFP"

const userAgent = "dfpfetch/1.0"

// ENET navigates the filings portal's external consultation pages over plain
// HTTP. The portal renders the filing grid server side and serves archives
// by protocol number, so no browser is involved and Options.Headless is
// ignored.
type ENET struct {
	opts     Options
	client   *http.Client
	base     string
	filerID  string
	selected *Filing
}

// NewENET returns a navigator for the portal at opts.BaseURL.
func NewENET(opts Options) *ENET {
	return &ENET{
		opts:   opts,
		client: &http.Client{},
		base:   strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Search resolves the filer page. With a filer code the consultation page is
// addressed directly; otherwise the company search resolves the ticker to a
// code first. A missing or empty filer page is ErrTickerNotFound.
func (n *ENET) Search(ctx context.Context, ticker, filerCode string) error {
	n.filerID = ""
	n.selected = nil

	if filerCode == "" {
		code, err := n.lookupFiler(ctx, ticker)
		if err != nil {
			return err
		}
		filerCode = code
	}

	q := url.Values{"tipoconsulta": {"CVM"}, "codigoCVM": {filerCode}}
	doc, err := n.get(ctx, n.base+"/ENET/frmConsultaExternaCVM.aspx?"+q.Encode())
	if err != nil {
		return err
	}
	if doc.Find("#frmConsulta").Length() == 0 {
		return fmt.Errorf("%w: filer %s", ErrTickerNotFound, filerCode)
	}
	n.filerID = filerCode
	return nil
}

// lookupFiler resolves a ticker to its filer code via the company search.
func (n *ENET) lookupFiler(ctx context.Context, ticker string) (string, error) {
	q := url.Values{"chave": {ticker}}
	doc, err := n.get(ctx, n.base+"/ENET/frmBuscaEmpresa.aspx?"+q.Encode())
	if err != nil {
		return "", err
	}
	code := doc.Find("#grdEmpresas tr[data-codigo]").First().AttrOr("data-codigo", "")
	if code == "" {
		return "", fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}
	return code, nil
}

// FilterByDate queries the consultation grid for filings within the
// inclusive range. Rows the grid renders outside the range are dropped.
func (n *ENET) FilterByDate(ctx context.Context, start, end time.Time) ([]Filing, error) {
	if n.filerID == "" {
		return nil, errors.New("filter requested before a successful search")
	}
	q := url.Values{
		"tipoconsulta": {"CVM"},
		"codigoCVM":    {n.filerID},
		"periodo":      {"1"},
		"dataIni":      {start.Format(portalDateLayout)},
		"dataFim":      {end.Format(portalDateLayout)},
		"categoria":    {categoryDFP},
	}
	doc, err := n.get(ctx, n.base+"/ENET/frmConsultaExternaCVM.aspx?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var filings []Filing
	doc.Find("#grdDocumentos tr[data-protocolo]").Each(func(_ int, row *goquery.Selection) {
		f, err := parseFilingRow(row, n.base)
		if err != nil {
			slog.Debug("skipping unparseable filing row", "error", err)
			return
		}
		if f.Date.Before(start) || f.Date.After(end) {
			return
		}
		filings = append(filings, f)
	})
	return filings, nil
}

// parseFilingRow reads one grid row: the protocol number from the row's
// data attribute, the filing date and category from their cells, and the
// download link wrapping the download icon.
func parseFilingRow(row *goquery.Selection, base string) (Filing, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(row.AttrOr("data-protocolo", "")), 10, 64)
	if err != nil {
		return Filing{}, fmt.Errorf("bad protocol number: %w", err)
	}
	date, err := time.Parse(portalDateLayout, strings.TrimSpace(row.Find("td.dataEntrega").First().Text()))
	if err != nil {
		return Filing{}, fmt.Errorf("bad filing date: %w", err)
	}
	href := row.Find("i.fi-download").First().Parent().AttrOr("href", "")
	if href == "" {
		return Filing{}, errors.New("no download link")
	}
	return Filing{
		ID:          id,
		Date:        date,
		Category:    strings.TrimSpace(row.Find("td.categoria").First().Text()),
		DownloadURL: absURL(base, href),
	}, nil
}

// Select records the filing to download. The portal serves archives directly
// by protocol number, so selection needs no further navigation.
func (n *ENET) Select(_ context.Context, f Filing) error {
	if f.DownloadURL == "" {
		return fmt.Errorf("filing %d has no download link", f.ID)
	}
	n.selected = &f
	return nil
}

// Download streams the selected filing's archive to a temporary file and
// returns its path with the filename from Content-Disposition, if any.
func (n *ENET) Download(ctx context.Context) (string, string, error) {
	if n.selected == nil {
		return "", "", errors.New("download requested before a filing was selected")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.selected.DownloadURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", "", retry.Transient(err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return "", "", err
	}

	tmp, err := os.CreateTemp("", "dfpfetch-*.zip")
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", "", retry.Transient(fmt.Errorf("%w: %v", ErrDownloadIncomplete, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", "", err
	}
	return tmp.Name(), downloadFilename(resp), nil
}

func (n *ENET) get(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing portal page: %w", err)
	}
	return doc, nil
}

// statusErr maps response codes: server-side errors are transient, any other
// non-success status is permanent.
func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("portal returned %s", resp.Status))
	case resp.StatusCode >= 400:
		return fmt.Errorf("portal returned %s", resp.Status)
	}
	return nil
}

// downloadFilename extracts the source filename from Content-Disposition.
// The base name guards against path segments smuggled into the header.
func downloadFilename(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return filepath.Base(name)
		}
	}
	return ""
}

func absURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}
