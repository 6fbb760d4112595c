package statement

import (
	"fmt"
	"sort"
	"strings"
)

// Indicator field names, the fixed vocabulary of accounting line items.
const (
	FieldTotalAssets        = "total_assets"
	FieldCurrentAssets      = "current_assets"
	FieldCashAndEquivalents = "cash_and_equivalents"
	FieldInventories        = "inventories"
	FieldTotalLiabilities   = "total_liabilities"
	FieldCurrentLiabilities = "current_liabilities"
	FieldEquity             = "equity"
	FieldShortTermDebt      = "short_term_debt"
	FieldLongTermDebt       = "long_term_debt"
	FieldNetRevenue         = "net_revenue"
	FieldGrossProfit        = "gross_profit"
	FieldEBIT               = "ebit"
	FieldNetIncome          = "net_income"
)

// Currency units as declared by the statement header. Values in the indicator
// set are always scaled to units of one; the unit records the source scale.
const (
	UnitBRL          = "BRL"
	UnitBRLThousands = "BRL_THOUSANDS"
)

// codeFields maps standardized account-plan codes to vocabulary fields.
var codeFields = map[string]string{
	"1":       FieldTotalAssets,
	"1.01":    FieldCurrentAssets,
	"1.01.01": FieldCashAndEquivalents,
	"1.01.04": FieldInventories,
	"2":       FieldTotalLiabilities,
	"2.01":    FieldCurrentLiabilities,
	"2.03":    FieldEquity,
	"2.01.04": FieldShortTermDebt,
	"2.02.01": FieldLongTermDebt,
	"3.01":    FieldNetRevenue,
	"3.03":    FieldGrossProfit,
	"3.05":    FieldEBIT,
	"3.11":    FieldNetIncome,
}

// descFields maps lowercased label strings to vocabulary fields, for layouts
// that print descriptions without account codes. Order matters: longer, more
// specific labels are listed before their prefixes.
var descFields = []struct {
	label string
	field string
}{
	{"ativo circulante", FieldCurrentAssets},
	{"ativo total", FieldTotalAssets},
	{"caixa e equivalentes de caixa", FieldCashAndEquivalents},
	{"estoques", FieldInventories},
	{"passivo circulante", FieldCurrentLiabilities},
	{"passivo total", FieldTotalLiabilities},
	{"patrimônio líquido consolidado", FieldEquity},
	{"patrimônio líquido", FieldEquity},
	{"receita de venda de bens e/ou serviços", FieldNetRevenue},
	{"receita líquida", FieldNetRevenue},
	{"resultado bruto", FieldGrossProfit},
	{"lucro bruto", FieldGrossProfit},
	{"resultado antes do resultado financeiro e dos tributos", FieldEBIT},
	{"lucro/prejuízo consolidado do período", FieldNetIncome},
	{"lucro/prejuízo do período", FieldNetIncome},
	{"lucro líquido do período", FieldNetIncome},
}

// mandatoryFields must all be located for a parse to succeed.
var mandatoryFields = []string{
	FieldTotalAssets,
	FieldEquity,
	FieldNetRevenue,
	FieldNetIncome,
}

// Vocabulary returns all indicator field names in sorted order.
func Vocabulary() []string {
	fields := make([]string, 0, len(codeFields))
	for _, f := range codeFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// IndicatorSet is the structured accounting data extracted from one filing's
// statement documents, for the most recent reporting period found.
type IndicatorSet struct {
	Fields       map[string]float64 `json:"fields"`
	Missing      []string           `json:"missing,omitempty"`
	Period       string             `json:"period"` // reporting date, "2006-01-02"
	CurrencyUnit string             `json:"currency_unit"`
	SourceDoc    string             `json:"source_document"`
}

// ParseError reports that mandatory vocabulary fields could not be located.
// It is non-fatal to the ticker: the pipeline records it and continues to a
// partially-succeeded outcome.
type ParseError struct {
	MissingFields []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("statement parse failed: missing mandatory fields [%s]",
		strings.Join(e.MissingFields, ", "))
}
