package parsers

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestParseCatalogCSVUTF8(t *testing.T) {
	csv := "JANコード,商品名,メーカー,単位,カテゴリ,棚番,単価,GS1コード\n" +
		"4901234567894,テスト茶 500ml,テスト飲料,本,飲料,A-01,128,04901234567894\n" +
		"4909876543210,テスト菓子,,個,菓子,,98,\n"

	records, err := ParseCatalogCSV(strings.NewReader(csv), "")
	if err != nil {
		t.Fatalf("ParseCatalogCSV failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ProductCode != "4901234567894" {
		t.Errorf("Unexpected product code: %s", first.ProductCode)
	}
	if first.ProductName != "テスト茶 500ml" {
		t.Errorf("Unexpected product name: %s", first.ProductName)
	}
	if first.Gs1Code != "04901234567894" {
		t.Errorf("Unexpected GS1 code: %s", first.Gs1Code)
	}
	if first.UnitPrice != 128 {
		t.Errorf("Unexpected unit price: %g", first.UnitPrice)
	}
	if records[1].MakerName != "" {
		t.Errorf("Empty maker column should stay empty, got %q", records[1].MakerName)
	}
}

func TestParseCatalogCSVWithBOM(t *testing.T) {
	csv := "\xEF\xBB\xBFJANコード,商品名\n4901234567894,テスト品\n"

	records, err := ParseCatalogCSV(strings.NewReader(csv), "")
	if err != nil {
		t.Fatalf("ParseCatalogCSV failed: %v", err)
	}
	if len(records) != 1 || records[0].ProductCode != "4901234567894" {
		t.Fatalf("BOM was not skipped correctly: %+v", records)
	}
}

func TestParseCatalogCSVShiftJIS(t *testing.T) {
	utf8CSV := "JANコード,商品名,メーカー\n4901234567894,テスト醤油,テスト食品\n"

	var buf bytes.Buffer
	w := transform.NewWriter(&buf, japanese.ShiftJIS.NewEncoder())
	if _, err := w.Write([]byte(utf8CSV)); err != nil {
		t.Fatalf("failed to encode test fixture: %v", err)
	}
	w.Close()

	records, err := ParseCatalogCSV(&buf, "sjis")
	if err != nil {
		t.Fatalf("ParseCatalogCSV failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ProductName != "テスト醤油" {
		t.Errorf("Shift-JIS decode failed: %q", records[0].ProductName)
	}
}

func TestParseCatalogCSVMissingHeader(t *testing.T) {
	csv := "コード,名称\n123,abc\n"
	if _, err := ParseCatalogCSV(strings.NewReader(csv), ""); err == nil {
		t.Fatal("ParseCatalogCSV should fail when required headers are missing")
	}
}

func TestParseCatalogCSVSkipsIncompleteRows(t *testing.T) {
	csv := "JANコード,商品名\n,名前だけ\n4901234567894,\n4909876543210,正常品\n"

	records, err := ParseCatalogCSV(strings.NewReader(csv), "")
	if err != nil {
		t.Fatalf("ParseCatalogCSV failed: %v", err)
	}
	if len(records) != 1 || records[0].ProductCode != "4909876543210" {
		t.Fatalf("Rows without code or name should be skipped: %+v", records)
	}
}
