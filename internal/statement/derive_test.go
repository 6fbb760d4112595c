package statement

import (
	"reflect"
	"testing"
)

func TestDeriveRatios(t *testing.T) {
	set := &IndicatorSet{Fields: map[string]float64{
		FieldTotalAssets:        1_000_000,
		FieldCurrentAssets:      400_000,
		FieldCurrentLiabilities: 200_000,
		FieldEquity:             500_000,
		FieldShortTermDebt:      80_000,
		FieldLongTermDebt:       120_000,
		FieldNetRevenue:         2_000_000,
		FieldGrossProfit:        800_000,
		FieldEBIT:               300_000,
		FieldNetIncome:          250_000,
	}}

	want := map[string]float64{
		"current_ratio":  2,
		"gross_margin":   0.4,
		"ebit_margin":    0.15,
		"net_margin":     0.125,
		"roe":            0.5,
		"roa":            0.25,
		"debt_to_equity": 0.4,
	}
	if got := DeriveRatios(set); !reflect.DeepEqual(got, want) {
		t.Errorf("DeriveRatios = %v, want %v", got, want)
	}
}

func TestDeriveRatiosRounds(t *testing.T) {
	set := &IndicatorSet{Fields: map[string]float64{
		FieldNetIncome: 1,
		FieldEquity:    3,
	}}
	got := DeriveRatios(set)
	if got["roe"] != 0.3333 {
		t.Errorf("roe = %v, want 0.3333", got["roe"])
	}
}

func TestDeriveRatiosSkipsZeroDenominator(t *testing.T) {
	set := &IndicatorSet{Fields: map[string]float64{
		FieldNetRevenue: 0,
		FieldNetIncome:  100,
	}}
	if got := DeriveRatios(set); got != nil {
		t.Errorf("DeriveRatios = %v, want nil", got)
	}
}

func TestDeriveRatiosPartialDebt(t *testing.T) {
	set := &IndicatorSet{Fields: map[string]float64{
		FieldShortTermDebt: 100,
		FieldEquity:        400,
	}}
	want := map[string]float64{"debt_to_equity": 0.25}
	if got := DeriveRatios(set); !reflect.DeepEqual(got, want) {
		t.Errorf("DeriveRatios = %v, want %v", got, want)
	}
}

func TestDeriveRatiosNilSet(t *testing.T) {
	if got := DeriveRatios(nil); got != nil {
		t.Errorf("DeriveRatios(nil) = %v, want nil", got)
	}
}
