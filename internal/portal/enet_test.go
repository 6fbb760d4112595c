package portal

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/kalambet/dfpfetch/internal/retry"
)

const filingGrid = `<html><body>
<form id="frmConsulta"></form>
<table id="grdDocumentos">
<tr data-protocolo="7"><td class="categoria">DFP - Demonstrações Financeiras Padronizadas</td><td class="dataEntrega">30/06/2024</td>
<td><a href="/ENET/download?protocolo=7"><i class="fi-download" title="Download"></i></a></td></tr>
<tr data-protocolo="9"><td class="categoria">DFP - Demonstrações Financeiras Padronizadas</td><td class="dataEntrega">30/06/2024</td>
<td><a href="/ENET/download?protocolo=9"><i class="fi-download" title="Download"></i></a></td></tr>
<tr data-protocolo="3"><td class="categoria">DFP - Demonstrações Financeiras Padronizadas</td><td class="dataEntrega">15/01/2023</td>
<td><a href="/ENET/download?protocolo=3"><i class="fi-download" title="Download"></i></a></td></tr>
</table></body></html>`

// fakePortal serves the consultation pages for one filer (code 1023,
// ticker BBAS3) and its filing archive.
type fakePortal struct {
	*httptest.Server
	archive   []byte
	lastQuery url.Values
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{archive: []byte("PK\x03\x04filing-bytes")}

	mux := http.NewServeMux()
	mux.HandleFunc("/ENET/frmBuscaEmpresa.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("chave") == "BBAS3" {
			fmt.Fprint(w, `<html><body><table id="grdEmpresas">
<tr data-codigo="1023"><td>BANCO DO BRASIL S.A.</td></tr>
</table></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><table id="grdEmpresas"></table></body></html>`)
	})
	mux.HandleFunc("/ENET/frmConsultaExternaCVM.aspx", func(w http.ResponseWriter, r *http.Request) {
		p.lastQuery = r.URL.Query()
		if p.lastQuery.Get("codigoCVM") != "1023" {
			fmt.Fprint(w, `<html><body>Nenhuma empresa encontrada</body></html>`)
			return
		}
		if p.lastQuery.Get("dataIni") == "" {
			fmt.Fprint(w, `<html><body><form id="frmConsulta"></form></body></html>`)
			return
		}
		fmt.Fprint(w, filingGrid)
	})
	mux.HandleFunc("/ENET/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="dfp_2024.zip"`)
		w.Write(p.archive)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func TestENETSearchByTicker(t *testing.T) {
	p := newFakePortal(t)
	n := NewENET(Options{BaseURL: p.URL})

	if err := n.Search(ctx, "BBAS3", ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n.filerID != "1023" {
		t.Errorf("filer id = %q, want %q", n.filerID, "1023")
	}
}

func TestENETSearchUnknownTicker(t *testing.T) {
	p := newFakePortal(t)
	n := NewENET(Options{BaseURL: p.URL})

	err := n.Search(ctx, "ZZZZ9", "")
	if !errors.Is(err, ErrTickerNotFound) {
		t.Errorf("Search = %v, want ErrTickerNotFound", err)
	}
}

func TestENETSearchUnknownFilerCode(t *testing.T) {
	p := newFakePortal(t)
	n := NewENET(Options{BaseURL: p.URL})

	err := n.Search(ctx, "BBAS3", "9999")
	if !errors.Is(err, ErrTickerNotFound) {
		t.Errorf("Search = %v, want ErrTickerNotFound", err)
	}
}

func TestENETFilterByDate(t *testing.T) {
	p := newFakePortal(t)
	n := NewENET(Options{BaseURL: p.URL})
	if err := n.Search(ctx, "BBAS3", "1023"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	filings, err := n.FilterByDate(ctx, day("2024-01-01"), day("2024-12-31"))
	if err != nil {
		t.Fatalf("FilterByDate: %v", err)
	}

	// The 2023 row the grid still renders must be dropped.
	if len(filings) != 2 {
		t.Fatalf("got %d filings, want 2: %+v", len(filings), filings)
	}
	if filings[0].ID != 7 || filings[1].ID != 9 {
		t.Errorf("filing ids = [%d %d], want [7 9]", filings[0].ID, filings[1].ID)
	}
	if !filings[0].Date.Equal(day("2024-06-30")) {
		t.Errorf("filing date = %v, want 2024-06-30", filings[0].Date)
	}
	if want := p.URL + "/ENET/download?protocolo=7"; filings[0].DownloadURL != want {
		t.Errorf("download url = %q, want %q", filings[0].DownloadURL, want)
	}

	// Dates travel to the portal as dd/mm/yyyy.
	if got := p.lastQuery.Get("dataIni"); got != "01/01/2024" {
		t.Errorf("dataIni = %q, want %q", got, "01/01/2024")
	}
	if got := p.lastQuery.Get("dataFim"); got != "31/12/2024" {
		t.Errorf("dataFim = %q, want %q", got, "31/12/2024")
	}
	if got := p.lastQuery.Get("categoria"); got != "DFP" {
		t.Errorf("categoria = %q, want %q", got, "DFP")
	}
}

func TestENETDownload(t *testing.T) {
	p := newFakePortal(t)
	n := NewENET(Options{BaseURL: p.URL})
	if err := n.Search(ctx, "BBAS3", "1023"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	filings, err := n.FilterByDate(ctx, day("2024-01-01"), day("2024-12-31"))
	if err != nil {
		t.Fatalf("FilterByDate: %v", err)
	}
	if err := n.Select(ctx, filings[1]); err != nil {
		t.Fatalf("Select: %v", err)
	}

	path, filename, err := n.Download(ctx)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })

	if filename != "dfp_2024.zip" {
		t.Errorf("filename = %q, want %q", filename, "dfp_2024.zip")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != string(p.archive) {
		t.Errorf("downloaded %d bytes, want the served archive", len(body))
	}
}

func TestENETServerErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	t.Cleanup(ts.Close)

	n := NewENET(Options{BaseURL: ts.URL})
	err := n.Search(ctx, "BBAS3", "1023")
	if err == nil {
		t.Fatal("Search succeeded, want error")
	}
	if !retry.IsTransient(err) {
		t.Errorf("Search error %v is not transient, want transient for 5xx", err)
	}
}
