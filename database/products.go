package database

import (
	"database/sql"
	"fmt"
	"tanaoroshi/model"

	"github.com/jmoiron/sqlx"
)

// DBTX は *sqlx.DB と *sqlx.Tx の両方を受けるためのインターフェースです
type DBTX interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Rebind(query string) string
	Exec(query string, args ...interface{}) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
}

func GetProductMasterByCode(dbtx DBTX, productCode string) (*model.ProductMaster, error) {
	var master model.ProductMaster
	err := dbtx.Get(&master, "SELECT * FROM product_master WHERE product_code = ?", productCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product_master for %s: %w", productCode, err)
	}
	return &master, nil
}

// GetProductMasterByBarcode はスキャン値をキー候補に展開して product_master を照会します。
// product_code と gs1_code のどちらでもヒットします。
func GetProductMasterByBarcode(dbtx DBTX, keys []string) (*model.ProductMaster, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM product_master
WHERE product_code IN (?) OR gs1_code IN (?) LIMIT 1`, keys, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to build IN query for barcode lookup: %w", err)
	}
	query = dbtx.Rebind(query)

	var master model.ProductMaster
	err = dbtx.Get(&master, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product_master by barcode keys %v: %w", keys, err)
	}
	return &master, nil
}

func UpsertProductMaster(tx *sqlx.Tx, m *model.ProductMaster) error {
	_, err := tx.NamedExec(`
		INSERT INTO product_master (
			product_code, gs1_code, product_name, maker_name, unit_name,
			category, shelf_number, unit_price, origin, user_notes
		) VALUES (
			:product_code, :gs1_code, :product_name, :maker_name, :unit_name,
			:category, :shelf_number, :unit_price, :origin, :user_notes
		)
		ON CONFLICT(product_code) DO UPDATE SET
			gs1_code = excluded.gs1_code,
			product_name = excluded.product_name,
			maker_name = excluded.maker_name,
			unit_name = excluded.unit_name,
			category = excluded.category,
			shelf_number = excluded.shelf_number,
			unit_price = excluded.unit_price,
			origin = excluded.origin`, m)
	if err != nil {
		return fmt.Errorf("failed to upsert product_master for %s: %w", m.ProductCode, err)
	}
	return nil
}

func GetLotByID(dbtx DBTX, lotID string) (*model.Lot, error) {
	var lot model.Lot
	err := dbtx.Get(&lot, "SELECT * FROM lots WHERE lot_id = ?", lotID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lot %s: %w", lotID, err)
	}
	return &lot, nil
}

func UpsertLot(tx *sqlx.Tx, lot *model.Lot) error {
	_, err := tx.NamedExec(`
		INSERT INTO lots (lot_id, product_code, lot_number, expiry_date)
		VALUES (:lot_id, :product_code, :lot_number, :expiry_date)
		ON CONFLICT(lot_id) DO UPDATE SET
			lot_number = excluded.lot_number,
			expiry_date = excluded.expiry_date`, lot)
	if err != nil {
		return fmt.Errorf("failed to upsert lot %s: %w", lot.LotID, err)
	}
	return nil
}
