package model

import "database/sql"

type ProductMaster struct {
	ProductCode string  `db:"product_code" json:"product_id"`
	Gs1Code     string  `db:"gs1_code" json:"gs1_code"`
	ProductName string  `db:"product_name" json:"name"`
	MakerName   string  `db:"maker_name" json:"maker_name"`
	UnitName    string  `db:"unit_name" json:"unit_name"`
	Category    string  `db:"category" json:"category"`
	ShelfNumber string  `db:"shelf_number" json:"shelf_number"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	// Origin はマスタの出自 ("local" | "external")。外部カタログ採用品は "external"
	Origin    string `db:"origin" json:"origin"`
	UserNotes string `db:"user_notes" json:"user_notes"`
}

type Lot struct {
	LotID       string `db:"lot_id" json:"lot_id"`
	ProductCode string `db:"product_code" json:"product_id"`
	LotNumber   string `db:"lot_number" json:"lot_number"`
	// ExpiryDate はDB保存形式 (YYYYMM)
	ExpiryDate string `db:"expiry_date" json:"expiry_date"`
}

// ProductSuggestion は外部カタログから得た未採用品の候補です。
// ユーザーが採用を確定するまでの一時データで、DBには保存されません。
type ProductSuggestion struct {
	Barcode     string `json:"barcode"`
	ProductName string `json:"name"`
	MakerName   string `json:"maker_name"`
	Category    string `json:"category"`
	UnitName    string `json:"unit_name"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ResolveSource はバーコード解決の出どころです
type ResolveSource string

const (
	ResolveSourceLocal         ResolveSource = "local"
	ResolveSourceOpenFoodFacts ResolveSource = "open_food_facts"
)

// ResolveResult は /api/products/resolve のレスポンスです。
// source に応じて Product か Suggestion のどちらか一方が入ります。
type ResolveResult struct {
	Success bool          `json:"success"`
	Source  ResolveSource `json:"source,omitempty"`
	Data    ResolveData   `json:"data"`
}

type ResolveData struct {
	Product    *ProductMaster     `json:"product,omitempty"`
	Suggestion *ProductSuggestion `json:"suggestion,omitempty"`
}

// AdoptPayload は /api/products/adopt のリクエストです
type AdoptPayload struct {
	Barcode     string `json:"barcode"`
	ProductName string `json:"name"`
	MakerName   string `json:"maker_name"`
	Category    string `json:"category"`
	UnitName    string `json:"unit_name"`
}

// NullableString は sql.NullString から JSON用の *string を作ります
func NullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
