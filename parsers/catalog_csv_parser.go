package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

type ParsedCatalogRecord struct {
	ProductCode string
	Gs1Code     string
	ProductName string
	MakerName   string
	UnitName    string
	Category    string
	ShelfNumber string
	UnitPrice   float64
}

// ParseCatalogCSV は商品カタログCSVを読み込みます。
// encoding が "sjis" の場合はShift-JISとしてデコードします (仕入先ポータルの
// ダウンロードCSVがShift-JISのため)。それ以外はUTF-8 (BOM許容) として扱います。
func ParseCatalogCSV(r io.Reader, encoding string) ([]ParsedCatalogRecord, error) {
	var src io.Reader
	if encoding == "sjis" {
		src = transform.NewReader(r, japanese.ShiftJIS.NewDecoder())
	} else {
		src = SkipBOM(r)
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSVファイルが空です")
	}
	if err != nil {
		return nil, fmt.Errorf("CSVヘッダーの読み取りに失敗: %w", err)
	}

	requiredHeaders := []string{"JANコード", "商品名"}
	colIndex, err := getColIndex(header, requiredHeaders)
	if err != nil {
		return nil, err
	}

	idxGs1, hasGs1 := colIndex["GS1コード"]
	idxMaker, hasMaker := colIndex["メーカー"]
	idxUnit, hasUnit := colIndex["単位"]
	idxCategory, hasCategory := colIndex["カテゴリ"]
	idxShelf, hasShelf := colIndex["棚番"]
	idxPrice, hasPrice := colIndex["単価"]

	var records []ParsedCatalogRecord
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("WARN: CSV %d行目の読み取りエラー (スキップ): %v", line, err)
			continue
		}

		get := func(idx int) string {
			if idx < len(rec) {
				return strings.TrimSpace(rec[idx])
			}
			return ""
		}

		code := get(colIndex["JANコード"])
		name := get(colIndex["商品名"])
		if code == "" || name == "" {
			continue
		}

		parsedRec := ParsedCatalogRecord{
			ProductCode: code,
			ProductName: name,
		}

		if hasGs1 {
			parsedRec.Gs1Code = get(idxGs1)
		}
		if hasMaker {
			parsedRec.MakerName = get(idxMaker)
		}
		if hasUnit {
			parsedRec.UnitName = get(idxUnit)
		}
		if hasCategory {
			parsedRec.Category = get(idxCategory)
		}
		if hasShelf {
			parsedRec.ShelfNumber = get(idxShelf)
		}
		if hasPrice {
			parsedRec.UnitPrice, _ = strconv.ParseFloat(get(idxPrice), 64)
		}

		records = append(records, parsedRec)
	}
	return records, nil
}
