package statement

import (
	"regexp"
	"strconv"
	"strings"
)

// tokenRe matches a whole numeric token as printed in Brazilian statements:
// optional parentheses or leading minus, dot-grouped thousands, comma
// decimals. It deliberately rejects 4+ digit runs without grouping so that
// years ("2023") and account codes ("1.01") are never read as values.
var tokenRe = regexp.MustCompile(`^\(?-?\d{1,3}(?:\.\d{3})*(?:,\d+)?\)?$`)

// groupedRe recognizes dot-grouped integers with no decimal part, so that
// "1.234.567" is read as 1234567 rather than a misplaced decimal point.
var groupedRe = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)

// parseNumber converts a numeric token to a float. It accepts pt-BR
// formatting ("1.234,56", "(1.234)") and plain formatting ("1234567",
// "-12.5"). Parenthesized values are negative.
func parseNumber(tok string) (float64, bool) {
	s := strings.TrimSpace(tok)
	if s == "" || s == "-" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case groupedRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// firstValue extracts the first numeric token from a statement line.
// Statement tables print the most recent exercise in the first value column.
func firstValue(s string) (float64, bool) {
	for _, tok := range strings.Fields(s) {
		if !tokenRe.MatchString(tok) {
			continue
		}
		if v, ok := parseNumber(tok); ok {
			return v, true
		}
	}
	return 0, false
}
