package statement

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// codeRe matches a standardized account-plan code at the start of a line.
var codeRe = regexp.MustCompile(`^(\d(?:\.\d{2})*)\s+(.+)$`)

// yearRe finds fiscal-year-end dates in header text.
var yearRe = regexp.MustCompile(`31/12/(20\d{2})`)

// Statement scope. Consolidated values are preferred over individual ones;
// unscoped lines only count when a document carries no scope markers at all.
const (
	scopeUnknown = iota
	scopeIndividual
	scopeConsolidated
)

// docResult is the raw outcome of scanning one document.
type docResult struct {
	fields map[string]float64
	year   int    // 0 when no fiscal year was detected
	unit   string // UnitBRL or UnitBRLThousands
}

func (d docResult) period() string {
	if d.year == 0 {
		return ""
	}
	return fmt.Sprintf("%d-12-31", d.year)
}

// parseLines scans statement text for vocabulary line items. Account codes
// are matched first; label fallbacks cover layouts that omit codes. Values
// are scaled ×1000 when the header declares amounts in thousands.
func parseLines(lines []string) docResult {
	byScope := map[int]map[string]float64{
		scopeUnknown:      {},
		scopeIndividual:   {},
		scopeConsolidated: {},
	}
	scope := scopeUnknown
	year := 0
	unit := UnitBRL

	for _, raw := range lines {
		line := strings.Join(strings.Fields(raw), " ")
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		for _, m := range yearRe.FindAllStringSubmatch(line, -1) {
			if y := atoi(m[1]); y > year {
				year = y
			}
		}
		if strings.Contains(lower, "reais mil") || strings.Contains(lower, "em milhares") {
			unit = UnitBRLThousands
		}
		switch {
		case strings.Contains(lower, "dfs consolidadas"),
			strings.Contains(lower, "demonstrações consolidadas"):
			scope = scopeConsolidated
		case strings.Contains(lower, "dfs individuais"),
			strings.Contains(lower, "demonstrações individuais"):
			scope = scopeIndividual
		}

		if m := codeRe.FindStringSubmatch(line); m != nil {
			if field, ok := codeFields[m[1]]; ok {
				if v, ok := firstValue(m[2]); ok {
					record(byScope[scope], field, v)
				}
				continue
			}
		}

		for _, df := range descFields {
			idx := strings.Index(lower, df.label)
			if idx < 0 {
				continue
			}
			if v, ok := firstValue(lower[idx+len(df.label):]); ok {
				record(byScope[scope], df.field, v)
			}
			break
		}
	}

	mult := 1.0
	if unit == UnitBRLThousands {
		mult = 1000
	}
	fields := map[string]float64{}
	for _, sc := range []int{scopeConsolidated, scopeIndividual, scopeUnknown} {
		for f, v := range byScope[sc] {
			if _, ok := fields[f]; !ok {
				fields[f] = v * mult
			}
		}
	}
	return docResult{fields: fields, year: year, unit: unit}
}

// record keeps the first occurrence of a field within one scope; repeats in
// notes sections never override the statement table.
func record(m map[string]float64, field string, v float64) {
	if _, ok := m[field]; !ok {
		m[field] = v
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Parser extracts indicator sets from a filing's statement documents.
type Parser struct {
	pdfLines func(path string) ([]string, error)
}

// NewParser returns a Parser reading PDFs with the embedded text extractor.
func NewParser() *Parser {
	return &Parser{pdfLines: pdfRowLines}
}

type candidate struct {
	path string
	res  docResult
}

// Parse processes one filing's statement documents and returns the indicator
// set for the most recent reporting period. When several PDFs are present,
// only the most recent by reporting period is used. Workbook values take
// precedence; PDF values fill fields the workbook left missing (documents
// within a single filing share a reporting period). Returns *ParseError when
// the mandatory fields cannot be located in any document.
func (p *Parser) Parse(workbooks, pdfs []string) (*IndicatorSet, error) {
	var wbBest, pdfBest *candidate

	for _, path := range workbooks {
		res, err := parseWorkbook(path)
		if err != nil {
			slog.Warn("skipping unreadable statement workbook", "path", path, "error", err)
			continue
		}
		wbBest = mostRecent(wbBest, &candidate{path: path, res: res})
	}
	for _, path := range pdfs {
		lines, err := p.pdfLines(path)
		if err != nil {
			slog.Warn("skipping unreadable statement pdf", "path", path, "error", err)
			continue
		}
		pdfBest = mostRecent(pdfBest, &candidate{path: path, res: parseLines(lines)})
	}

	primary, secondary := wbBest, pdfBest
	if primary == nil || len(primary.res.fields) == 0 {
		primary, secondary = pdfBest, nil
	}
	if primary == nil {
		return nil, &ParseError{MissingFields: append([]string(nil), mandatoryFields...)}
	}

	fields := make(map[string]float64, len(primary.res.fields))
	for f, v := range primary.res.fields {
		fields[f] = v
	}
	if secondary != nil {
		for f, v := range secondary.res.fields {
			if _, ok := fields[f]; !ok {
				fields[f] = v
			}
		}
	}

	var missing []string
	for _, f := range mandatoryFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{MissingFields: missing}
	}

	set := &IndicatorSet{
		Fields:       fields,
		Missing:      missingFrom(fields),
		Period:       primary.res.period(),
		CurrencyUnit: primary.res.unit,
		SourceDoc:    primary.path,
	}
	if set.Period == "" && secondary != nil {
		set.Period = secondary.res.period()
	}
	return set, nil
}

// mostRecent keeps the candidate with the later reporting period; a detected
// period beats an undetected one and earlier documents win exact ties.
func mostRecent(a, b *candidate) *candidate {
	if a == nil {
		return b
	}
	if b.res.year > a.res.year {
		return b
	}
	return a
}

func missingFrom(fields map[string]float64) []string {
	var missing []string
	for _, f := range Vocabulary() {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
