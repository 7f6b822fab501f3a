package barcode

import "testing"

func TestParseJAN13(t *testing.T) {
	result, err := Parse("4901234567894")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Gtin14 != "04901234567894" {
		t.Errorf("Expected GTIN-14 04901234567894, got %s", result.Gtin14)
	}
	if result.LotNumber != "" || result.ExpiryDate != "" {
		t.Errorf("JAN-13 should not carry lot/expiry, got lot=%q expiry=%q", result.LotNumber, result.ExpiryDate)
	}
}

func TestParseGTIN14(t *testing.T) {
	result, err := Parse("14901234567891")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Gtin14 != "14901234567891" {
		t.Errorf("Expected GTIN-14 unchanged, got %s", result.Gtin14)
	}
}

func TestParseShortCodePadding(t *testing.T) {
	result, err := Parse("49123456")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Gtin14 != "00000049123456" {
		t.Errorf("Expected zero-padded GTIN-14, got %s", result.Gtin14)
	}
}

func TestParseAIString(t *testing.T) {
	// (01) GTIN + (17) 期限 + (10) ロット
	result, err := Parse("011490123456789117280101101OTA123")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Gtin14 != "14901234567891" {
		t.Errorf("Expected GTIN 14901234567891, got %s", result.Gtin14)
	}
	if result.ExpiryDate != "202801" {
		t.Errorf("Expected expiry 202801 (YYYYMM), got %s", result.ExpiryDate)
	}
	if result.LotNumber != "1OTA123" {
		t.Errorf("Expected lot 1OTA123, got %s", result.LotNumber)
	}
}

func TestParseAIStringLotBeforeExpiry(t *testing.T) {
	// ロット(10)が期限(17)より先に並ぶパターン。可変長ロットは
	// 次の完全なAIが現れたところで区切られる
	result, err := Parse("011490123456789110ABC17280101")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Gtin14 != "14901234567891" {
		t.Errorf("Expected GTIN 14901234567891, got %s", result.Gtin14)
	}
	if result.LotNumber != "ABC" {
		t.Errorf("Expected lot ABC, got %q", result.LotNumber)
	}
	if result.ExpiryDate != "202801" {
		t.Errorf("Expected expiry 202801, got %q", result.ExpiryDate)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"long without AI01", "991490123456789"},
		{"AI01 truncated", "0114901234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.code); err == nil {
				t.Errorf("Parse(%q) should fail", tt.code)
			}
		})
	}
}

func TestLookupKeys(t *testing.T) {
	keys := LookupKeys("4901234567894")
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys (raw + GTIN-14), got %v", keys)
	}
	if keys[0] != "4901234567894" || keys[1] != "04901234567894" {
		t.Errorf("Unexpected keys: %v", keys)
	}

	keys = LookupKeys("14901234567891")
	if len(keys) != 1 {
		t.Errorf("GTIN-14 input should yield a single key, got %v", keys)
	}
}
