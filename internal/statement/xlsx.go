package statement

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet name prefixes of the structured statement workbook shipped inside
// filing archives. Consolidated sheets are scanned before individual ones.
const (
	sheetPrefixConsolidated = "df cons"
	sheetPrefixIndividual   = "df ind"
)

// parseWorkbook scans a statement workbook's statement sheets for the
// indicator vocabulary.
func parseWorkbook(path string) (docResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return docResult{}, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	var cons, ind []string
	for _, name := range f.GetSheetList() {
		switch lower := strings.ToLower(name); {
		case strings.HasPrefix(lower, sheetPrefixConsolidated):
			cons = append(cons, name)
		case strings.HasPrefix(lower, sheetPrefixIndividual):
			ind = append(ind, name)
		}
	}
	if len(cons) == 0 && len(ind) == 0 {
		return docResult{}, fmt.Errorf("workbook %s has no statement sheets", path)
	}

	res := docResult{fields: map[string]float64{}, unit: UnitBRL}
	for _, name := range append(cons, ind...) {
		rows, err := f.GetRows(name)
		if err != nil {
			return docResult{}, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		scanSheet(rows, &res)
	}

	if res.unit == UnitBRLThousands {
		for field, v := range res.fields {
			res.fields[field] = v * 1000
		}
	}
	return res, nil
}

// scanSheet locates the account-code, description, and most-recent-exercise
// columns from the header row, then maps data rows to vocabulary fields.
// Fields already recorded are kept: sheet order encodes scope preference.
func scanSheet(rows [][]string, res *docResult) {
	codeCol, descCol, valCol := -1, -1, -1
	for _, row := range rows {
		for ci, cell := range row {
			lower := strings.ToLower(strings.TrimSpace(cell))
			if lower == "" {
				continue
			}
			for _, m := range yearRe.FindAllStringSubmatch(cell, -1) {
				if y := atoi(m[1]); y > res.year {
					res.year = y
				}
			}
			if lower == "mil" || strings.Contains(lower, "reais mil") || strings.Contains(lower, "em milhares") {
				res.unit = UnitBRLThousands
			}
			switch {
			case lower == "conta" || strings.Contains(lower, "código da conta"):
				codeCol = ci
			case strings.Contains(lower, "descrição"):
				descCol = ci
			case strings.Contains(lower, "último exercício") && !strings.Contains(lower, "penúltimo"):
				valCol = ci
			}
		}

		if codeCol < 0 || valCol < 0 || len(row) <= codeCol || len(row) <= valCol {
			continue
		}
		code := strings.TrimSpace(row[codeCol])
		field, ok := codeFields[code]
		if !ok && descCol >= 0 && len(row) > descCol {
			field, ok = descLookup(strings.ToLower(strings.TrimSpace(row[descCol])))
		}
		if !ok {
			continue
		}
		if v, ok := parseNumber(row[valCol]); ok {
			record(res.fields, field, v)
		}
	}
}

func descLookup(desc string) (string, bool) {
	for _, df := range descFields {
		if strings.HasPrefix(desc, df.label) {
			return df.field, true
		}
	}
	return "", false
}
