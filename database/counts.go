package database

import (
	"database/sql"
	"fmt"
	"time"

	"tanaoroshi/model"

	"github.com/jmoiron/sqlx"
)

func CreateCountSession(tx *sqlx.Tx, name, location string) (*model.CountSession, error) {
	now := time.Now().Format(time.RFC3339)
	res, err := tx.Exec(`
		INSERT INTO count_sessions (name, location, status, created_at)
		VALUES (?, ?, ?, ?)`, name, location, model.CountStatusDraft, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert count_session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get new count_session id: %w", err)
	}
	return &model.CountSession{
		ID:        id,
		Name:      name,
		Location:  location,
		Status:    model.CountStatusDraft,
		CreatedAt: now,
	}, nil
}

func GetCountSession(dbtx DBTX, countID int64) (*model.CountSession, error) {
	var session model.CountSession
	err := dbtx.Get(&session, "SELECT * FROM count_sessions WHERE id = ?", countID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get count_session %d: %w", countID, err)
	}
	return &session, nil
}

// UpdateCountStatus はセッションの状態を更新し、開始/完了時刻を記録します。
// 遷移の妥当性チェックは呼び出し側 (count パッケージ) が行います。
func UpdateCountStatus(tx *sqlx.Tx, countID int64, status model.CountStatus) error {
	now := time.Now().Format(time.RFC3339)

	var query string
	switch status {
	case model.CountStatusInProgress:
		query = "UPDATE count_sessions SET status = ?, started_at = ? WHERE id = ?"
	case model.CountStatusCompleted, model.CountStatusCancelled:
		query = "UPDATE count_sessions SET status = ?, completed_at = ? WHERE id = ?"
	default:
		return fmt.Errorf("unsupported status transition target: %s", status)
	}

	if _, err := tx.Exec(query, status, now, countID); err != nil {
		return fmt.Errorf("failed to update count_session %d status to %s: %w", countID, status, err)
	}
	return nil
}

func GetCountItems(dbtx DBTX, countID int64) ([]model.CountItem, error) {
	items := []model.CountItem{}
	err := dbtx.Select(&items, `
		SELECT * FROM count_items WHERE count_id = ? ORDER BY id`, countID)
	if err != nil {
		return nil, fmt.Errorf("failed to select count_items for count %d: %w", countID, err)
	}
	return items, nil
}

func GetCountItemByID(dbtx DBTX, itemID int64) (*model.CountItem, error) {
	var item model.CountItem
	err := dbtx.Get(&item, "SELECT * FROM count_items WHERE id = ?", itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get count_item %d: %w", itemID, err)
	}
	return &item, nil
}

// FindCountItem は (セッション, 製品, ロット) のキーで既存の明細行を探します。
// 「計上済み」判定はこの行の counted フラグで行います。
func FindCountItem(dbtx DBTX, countID int64, productCode, lotID string) (*model.CountItem, error) {
	var item model.CountItem
	err := dbtx.Get(&item, `
		SELECT * FROM count_items
		WHERE count_id = ? AND product_code = ? AND IFNULL(lot_id, '') = ?`,
		countID, productCode, lotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find count_item (count %d, product %s): %w", countID, productCode, err)
	}
	return &item, nil
}

// InsertExpectedItem は棚卸開始前に期待明細行を登録します (未計上状態)。
func InsertExpectedItem(tx *sqlx.Tx, countID int64, productCode, lotID string, expectedQty float64) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO count_items (count_id, product_code, lot_id, expected_qty, counted)
		VALUES (?, ?, NULLIF(?, ''), ?, 0)`,
		countID, productCode, lotID, expectedQty)
	if err != nil {
		return 0, fmt.Errorf("failed to insert expected item (count %d, product %s): %w", countID, productCode, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new count_item id: %w", err)
	}
	return id, nil
}

// MarkItemCounted は既存の期待明細行を計上済みにします。
func MarkItemCounted(tx *sqlx.Tx, itemID int64, qty float64, notes, countedBy string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := tx.Exec(`
		UPDATE count_items
		SET counted = 1, counted_qty = ?, counted_at = ?, counted_by = ?, notes = NULLIF(?, '')
		WHERE id = ?`, qty, now, countedBy, notes, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark count_item %d counted: %w", itemID, err)
	}
	return nil
}

// InsertCountedItem は期待明細に無い品目を計上済みとして追加します (帳簿外品)。
func InsertCountedItem(tx *sqlx.Tx, countID int64, productCode, lotID string, qty float64, notes, countedBy string) (int64, error) {
	now := time.Now().Format(time.RFC3339)
	res, err := tx.Exec(`
		INSERT INTO count_items (count_id, product_code, lot_id, expected_qty, counted, counted_qty, counted_at, counted_by, notes)
		VALUES (?, ?, NULLIF(?, ''), 0, 1, ?, ?, ?, NULLIF(?, ''))`,
		countID, productCode, lotID, qty, now, countedBy, notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert counted item (count %d, product %s): %w", countID, productCode, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new count_item id: %w", err)
	}
	return id, nil
}

// UpdateItemQuantity は計上済み明細の数量を訂正します。
func UpdateItemQuantity(tx *sqlx.Tx, itemID int64, qty float64, notes string) error {
	_, err := tx.Exec(`
		UPDATE count_items SET counted_qty = ?, notes = COALESCE(NULLIF(?, ''), notes)
		WHERE id = ?`, qty, notes, itemID)
	if err != nil {
		return fmt.Errorf("failed to update quantity for count_item %d: %w", itemID, err)
	}
	return nil
}
