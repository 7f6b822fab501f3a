package model

import "database/sql"

// CountStatus は棚卸セッションの状態を表します
type CountStatus string

const (
	CountStatusDraft      CountStatus = "DRAFT"
	CountStatusInProgress CountStatus = "IN_PROGRESS"
	CountStatusCompleted  CountStatus = "COMPLETED"
	CountStatusCancelled  CountStatus = "CANCELLED"
)

// CanTransitionTo は現在の状態から指定の状態へ遷移できるかを判定します。
func (s CountStatus) CanTransitionTo(next CountStatus) bool {
	switch s {
	case CountStatusDraft:
		return next == CountStatusInProgress || next == CountStatusCancelled
	case CountStatusInProgress:
		return next == CountStatusCompleted || next == CountStatusCancelled
	}
	return false
}

type CountSession struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Location    string         `db:"location" json:"location"`
	Status      CountStatus    `db:"status" json:"status"`
	CreatedAt   string         `db:"created_at" json:"created_at"`
	StartedAt   sql.NullString `db:"started_at" json:"started_at,omitempty"`
	CompletedAt sql.NullString `db:"completed_at" json:"completed_at,omitempty"`
}

type CountItem struct {
	ID          int64           `db:"id" json:"id"`
	CountID     int64           `db:"count_id" json:"count_id"`
	ProductCode string          `db:"product_code" json:"product_id"`
	LotID       sql.NullString  `db:"lot_id" json:"lot_id,omitempty"`
	ExpectedQty float64         `db:"expected_qty" json:"expected_qty"`
	CountedQty  sql.NullFloat64 `db:"counted_qty" json:"counted_qty"`
	Counted     bool            `db:"counted" json:"counted"`
	CountedAt   sql.NullString  `db:"counted_at" json:"counted_at,omitempty"`
	CountedBy   sql.NullString  `db:"counted_by" json:"counted_by,omitempty"`
	Notes       sql.NullString  `db:"notes" json:"notes,omitempty"`
}

// CountSummary は棚卸の進捗と差異の集計です (サーバー側で算出)
type CountSummary struct {
	CountID       int64              `json:"count_id"`
	Status        CountStatus        `json:"status"`
	TotalItems    int                `json:"total_items"`
	CountedItems  int                `json:"counted_items"`
	Discrepancies []CountDiscrepancy `json:"discrepancies"`
	TotalShortage float64            `json:"total_shortage"`
	TotalOverage  float64            `json:"total_overage"`
}

type CountDiscrepancy struct {
	ItemID      int64   `db:"id" json:"item_id"`
	ProductCode string  `db:"product_code" json:"product_id"`
	ProductName string  `db:"product_name" json:"product_name"`
	ExpectedQty float64 `db:"expected_qty" json:"expected_qty"`
	CountedQty  float64 `db:"counted_qty" json:"counted_qty"`
	Difference  float64 `db:"difference" json:"difference"`
}

// ScanResponse は POST /api/counts/{id}/scan の成功レスポンスです
type ScanResponse struct {
	Item           CountItem     `json:"item"`
	Product        ProductMaster `json:"product"`
	AlreadyCounted bool          `json:"already_counted"`
}
