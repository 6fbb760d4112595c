package input

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadTickers(t *testing.T) {
	path := writeInput(t, strings.Join([]string{
		"ticker,cod_cvm,asset_class",
		"bbas3,1023,acao",
		" PETR4 , 9512 ,acao",
		"VALE3,,acao",
	}, "\n"))

	got, err := ReadTickers(path)
	if err != nil {
		t.Fatalf("ReadTickers: %v", err)
	}
	want := []Ticker{
		{Symbol: "BBAS3", FilerCode: "1023", AssetClass: "acao"},
		{Symbol: "PETR4", FilerCode: "9512", AssetClass: "acao"},
		{Symbol: "VALE3", FilerCode: "", AssetClass: "acao"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadTickers = %+v, want %+v", got, want)
	}
}

func TestReadTickersReorderedHeader(t *testing.T) {
	path := writeInput(t, strings.Join([]string{
		"Asset_Class,notes,TICKER,cod_cvm",
		"acao,ignored,bbas3,1023",
	}, "\n"))

	got, err := ReadTickers(path)
	if err != nil {
		t.Fatalf("ReadTickers: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BBAS3" || got[0].FilerCode != "1023" || got[0].AssetClass != "acao" {
		t.Errorf("ReadTickers = %+v, want column lookup by name", got)
	}
}

func TestReadTickersStripsBOM(t *testing.T) {
	path := writeInput(t, "\uFEFFticker,cod_cvm,asset_class\nbbas3,1023,acao\n")

	got, err := ReadTickers(path)
	if err != nil {
		t.Fatalf("ReadTickers: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BBAS3" {
		t.Errorf("ReadTickers = %+v, want the BOM ignored", got)
	}
}

func TestReadTickersSkipsBlankRows(t *testing.T) {
	path := writeInput(t, strings.Join([]string{
		"ticker,cod_cvm,asset_class",
		",1023,acao",
		"bbas3,1023,acao",
	}, "\n"))

	got, err := ReadTickers(path)
	if err != nil {
		t.Fatalf("ReadTickers: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d tickers, want 1", len(got))
	}
}

func TestReadTickersMissingColumns(t *testing.T) {
	path := writeInput(t, "ticker,name\nbbas3,banco do brasil\n")

	_, err := ReadTickers(path)
	if err == nil {
		t.Fatal("ReadTickers succeeded, want error for missing columns")
	}
	if !strings.Contains(err.Error(), "cod_cvm") || !strings.Contains(err.Error(), "asset_class") {
		t.Errorf("error = %v, want it to name the missing columns", err)
	}
}

func TestReadTickersEmptyFile(t *testing.T) {
	path := writeInput(t, "ticker,cod_cvm,asset_class\n")

	if _, err := ReadTickers(path); err == nil {
		t.Fatal("ReadTickers succeeded, want error for a file with no tickers")
	}
}

func TestReadTickersMissingFile(t *testing.T) {
	if _, err := ReadTickers(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("ReadTickers succeeded, want error for a missing file")
	}
}
