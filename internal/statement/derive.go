package statement

import "math"

// DeriveRatios computes financial ratios from an indicator set, rounded to 4
// decimal places. Ratios whose inputs are missing or whose denominator is
// zero are omitted; nil is returned when nothing is computable. Ratios never
// affect pipeline status.
func DeriveRatios(set *IndicatorSet) map[string]float64 {
	if set == nil {
		return nil
	}
	out := map[string]float64{}
	ratio := func(name, num, den string) {
		n, okN := set.Fields[num]
		d, okD := set.Fields[den]
		if !okN || !okD || d == 0 {
			return
		}
		out[name] = round4(n / d)
	}
	ratio("current_ratio", FieldCurrentAssets, FieldCurrentLiabilities)
	ratio("gross_margin", FieldGrossProfit, FieldNetRevenue)
	ratio("ebit_margin", FieldEBIT, FieldNetRevenue)
	ratio("net_margin", FieldNetIncome, FieldNetRevenue)
	ratio("roe", FieldNetIncome, FieldEquity)
	ratio("roa", FieldNetIncome, FieldTotalAssets)

	st, okST := set.Fields[FieldShortTermDebt]
	lt, okLT := set.Fields[FieldLongTermDebt]
	eq, okEq := set.Fields[FieldEquity]
	if (okST || okLT) && okEq && eq != 0 {
		out["debt_to_equity"] = round4((st + lt) / eq)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
