package count

import (
	"fmt"
	"log"

	"tanaoroshi/database"
	"tanaoroshi/model"

	"github.com/jmoiron/sqlx"
)

// registerItem は1件の計上を行います。スキャン経由・手動登録経由の両方から呼ばれます。
// すでに計上済みの場合は PRODUCT_ALREADY_COUNTED のAPIエラーを返し、数量は変更しません。
func registerItem(tx *sqlx.Tx, countID int64, productCode, lotID string, qty float64, notes, countedBy string) (*model.CountItem, *model.APIError, error) {
	existing, err := database.FindCountItem(tx, countID, productCode, lotID)
	if err != nil {
		return nil, nil, err
	}

	if existing != nil && existing.Counted {
		apiErr := &model.APIError{
			Code:    model.ErrCodeAlreadyCounted,
			Message: "この製品はこの棚卸で既に計上されています",
			Details: &model.ErrorDetails{
				PreviousCount: existing.CountedQty.Float64,
				CountedAt:     existing.CountedAt.String,
				CountedBy:     existing.CountedBy.String,
				ItemID:        existing.ID,
			},
		}
		return nil, apiErr, nil
	}

	var itemID int64
	if existing != nil {
		if err := database.MarkItemCounted(tx, existing.ID, qty, notes, countedBy); err != nil {
			return nil, nil, err
		}
		itemID = existing.ID
	} else {
		// 期待明細に無い品目 (帳簿外品) も計上は受け付ける
		itemID, err = database.InsertCountedItem(tx, countID, productCode, lotID, qty, notes, countedBy)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("INFO: [Count %d] Unexpected product %s counted (not in expected items).", countID, productCode)
	}

	item, err := database.GetCountItemByID(tx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, fmt.Errorf("count_item %d disappeared after registration", itemID)
	}
	return item, nil, nil
}

// checkSessionActive は計上系操作の前提条件を検証します。
func checkSessionActive(dbtx database.DBTX, countID int64) (*model.CountSession, *model.APIError, error) {
	session, err := database.GetCountSession(dbtx, countID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, &model.APIError{
			Code:    model.ErrCodeCountNotFound,
			Message: "指定された棚卸セッションが見つかりません",
		}, nil
	}
	if session.Status != model.CountStatusInProgress {
		return nil, &model.APIError{
			Code:    model.ErrCodeCountNotActive,
			Message: fmt.Sprintf("この棚卸は実施中ではありません (現在の状態: %s)", session.Status),
		}, nil
	}
	return session, nil, nil
}
