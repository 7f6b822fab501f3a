package loader

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"tanaoroshi/database"
	"tanaoroshi/model"
	"tanaoroshi/parsers"

	"github.com/jmoiron/sqlx"
)

// InitDatabase はデータベーススキーマを適用し、カタログCSVがあればロードします。
func InitDatabase(db *sqlx.DB, catalogFolder string) error {
	log.Println("Applying database schema...")
	if err := applySchema(db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("Schema applied successfully.")

	// カタログCSV (仕入先ポータルからのダウンロード物。Shift-JIS)
	catalogPath := filepath.Join(catalogFolder, "CATALOG.CSV")
	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		log.Printf("WARN: %s not found, skipping catalog load.", catalogPath)
		return nil
	}

	log.Printf("Loading %s...", catalogPath)
	f, err := os.Open(catalogPath)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", catalogPath, err)
	}
	defer f.Close()

	count, err := ImportCatalog(db, f, "sjis")
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", catalogPath, err)
	}
	log.Printf("Loaded %s successfully (%d products).", catalogPath, count)

	return nil
}

func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// ImportCatalog はカタログCSVを読み込み、product_master にUPSERTします。
// 取り込んだ件数を返します。
func ImportCatalog(db *sqlx.DB, r io.Reader, encoding string) (int, error) {
	records, err := parsers.ParseCatalogCSV(r, encoding)
	if err != nil {
		return 0, err
	}

	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for catalog import: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		master := &model.ProductMaster{
			ProductCode: rec.ProductCode,
			Gs1Code:     rec.Gs1Code,
			ProductName: rec.ProductName,
			MakerName:   rec.MakerName,
			UnitName:    rec.UnitName,
			Category:    rec.Category,
			ShelfNumber: rec.ShelfNumber,
			UnitPrice:   rec.UnitPrice,
			Origin:      "local",
		}
		if err := database.UpsertProductMaster(tx, master); err != nil {
			return 0, fmt.Errorf("failed to upsert catalog product %s: %w", rec.ProductCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit catalog import: %w", err)
	}
	return len(records), nil
}
