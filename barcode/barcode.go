package barcode

import (
	"fmt"
	"strings"
)

// Result はバーコードの解析結果を格納します
type Result struct {
	Gtin14     string // (01) GTIN (14桁)
	ExpiryDate string // (17) 有効期限 (YYYYMM, DB保存形式)
	LotNumber  string // (10) ロット番号
}

// lotMaxLength は可変長AI(10)のデータ最大長です
const lotMaxLength = 20

// Parse はスキャンされた文字列を自動判別して解析します。
// 15桁以上はGS1のAI付き文字列、14桁はGTIN-14、13桁以下はJANとして扱い、
// いずれもGTIN-14に正規化して返します。
func Parse(code string) (*Result, error) {
	length := len(code)

	if length == 0 {
		return nil, fmt.Errorf("バーコードが空です")
	}

	if length >= 15 {
		if strings.HasPrefix(code, "01") {
			return parseAIString(code)
		}
		return nil, fmt.Errorf("15桁以上ですが、AI(01)で始まっていません")
	}

	if length == 14 {
		return &Result{Gtin14: code}, nil
	}

	// JAN-13 / JAN-8 などは先頭0埋めで14桁に揃える
	return &Result{Gtin14: fmt.Sprintf("%014s", code)}, nil
}

// LookupKeys は product_master 照会に使うキー候補を返します。
// スキャン生値と、解析できた場合はGTIN-14の両方で引けるようにします。
func LookupKeys(rawCode string) []string {
	keys := []string{rawCode}
	parsed, err := Parse(rawCode)
	if err != nil || parsed.Gtin14 == "" || parsed.Gtin14 == rawCode {
		return keys
	}
	return append(keys, parsed.Gtin14)
}

// parseAIString は 15桁以上のAI付き文字列を解析する内部関数です。
func parseAIString(code string) (*Result, error) {
	result := &Result{}
	i := 0
	length := len(code)

	for i < length {
		// (01) GTIN (14桁固定)
		if strings.HasPrefix(code[i:], "01") {
			if i+16 > length { // AI(2) + Data(14)
				return nil, fmt.Errorf("AI(01)のデータが不足しています")
			}
			result.Gtin14 = code[i+2 : i+16]
			i += 16
			continue
		}

		// (17) 有効期限 (6桁固定)
		if strings.HasPrefix(code[i:], "17") {
			if i+8 > length { // AI(2) + Data(6)
				return nil, fmt.Errorf("AI(17)のデータが不足しています")
			}

			expiryYYMMDD := code[i+2 : i+8]
			if len(expiryYYMMDD) == 6 {
				yy := expiryYYMMDD[0:2]
				mm := expiryYYMMDD[2:4]
				// DB保存形式 (YYYYMM) に変換
				result.ExpiryDate = "20" + yy + mm
			} else {
				result.ExpiryDate = expiryYYMMDD
			}

			i += 8
			continue
		}

		// (10) ロット番号 (可変長)
		if strings.HasPrefix(code[i:], "10") {
			if i+2 > length { // AI(2)
				return nil, fmt.Errorf("AI(10)のデータが不足しています")
			}

			dataStart := i + 2
			dataEnd := dataStart

			for dataEnd < length {
				if (dataEnd - dataStart) >= lotMaxLength {
					break
				}

				remaining := code[dataEnd:]

				// 次のAIが「完全な形」で存在する場合のみ区切る
				if len(remaining) >= 2 {
					nextAI := remaining[:2]

					if nextAI == "01" && len(remaining) >= 16 {
						break
					}
					if nextAI == "17" && len(remaining) >= 8 {
						break
					}
				}
				dataEnd++
			}

			result.LotNumber = code[dataStart:dataEnd]
			i = dataEnd
			continue
		}

		// 不明なAIまたはデータ部分
		i++
	}

	if result.Gtin14 == "" {
		return nil, fmt.Errorf("バーコードからAI(01)GTINが見つかりませんでした")
	}

	return result, nil
}
