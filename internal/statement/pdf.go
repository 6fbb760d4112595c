package statement

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfRowLines extracts text from every page of a PDF, one line per visual
// row with words joined by single spaces.
func pdfRowLines(path string) (lines []string, err error) {
	// The pdf library panics on malformed files; surface that as an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// Pages the extractor cannot decode are skipped, not fatal.
			continue
		}
		for _, row := range rows {
			var sb strings.Builder
			for _, txt := range row.Content {
				s := strings.TrimSpace(txt.S)
				if s == "" {
					continue
				}
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(s)
			}
			if line := sb.String(); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}
