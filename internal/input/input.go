package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Ticker is one row of the input file: the symbol to process, the filer code
// when known, and the asset class forwarded to the downstream service.
type Ticker struct {
	Symbol     string
	FilerCode  string
	AssetClass string
}

// requiredColumns must all appear in the input header. Column order and any
// extra columns are irrelevant.
var requiredColumns = []string{"ticker", "cod_cvm", "asset_class"}

// ReadTickers parses the CSV input file. Symbols are uppercased; cod_cvm may
// be empty per row; rows without a ticker are skipped.
func ReadTickers(path string) ([]Ticker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	tickers, err := parseTickers(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tickers, nil
}

func parseTickers(r io.Reader) ([]Ticker, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		// Spreadsheet exports commonly prepend a UTF-8 BOM.
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var tickers []Ticker
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		t := Ticker{
			Symbol:     strings.ToUpper(field(row, cols["ticker"])),
			FilerCode:  field(row, cols["cod_cvm"]),
			AssetClass: field(row, cols["asset_class"]),
		}
		if t.Symbol == "" {
			continue
		}
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, errors.New("no tickers")
	}
	return tickers, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
