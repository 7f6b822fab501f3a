package model

import "fmt"

// 棚卸APIの構造化エラーコード。コードは安定したASCII、メッセージは表示用です。
const (
	ErrCodeAlreadyCounted  = "PRODUCT_ALREADY_COUNTED"
	ErrCodeBarcodeNotFound = "BARCODE_NOT_FOUND"
	ErrCodeCountNotActive  = "COUNT_NOT_IN_PROGRESS"
	ErrCodeCountNotFound   = "COUNT_NOT_FOUND"
	ErrCodeItemNotFound    = "ITEM_NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// APIError は棚卸APIのエラーエンベロープ本体です
type APIError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails は PRODUCT_ALREADY_COUNTED の詳細です
type ErrorDetails struct {
	PreviousCount float64 `json:"previous_count"`
	CountedAt     string  `json:"counted_at"`
	CountedBy     string  `json:"counted_by"`
	ItemID        int64   `json:"item_id"`
}

// APIErrorResponse はエラーレスポンスの外側 {"error": {...}} です
type APIErrorResponse struct {
	Error APIError `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
