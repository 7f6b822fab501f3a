package loader

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
)

// ImportCatalogHandler はアップロードされたカタログCSVを取り込みます。
// フォームの encoding に "sjis" を指定するとShift-JISとして読み込みます。
func ImportCatalogHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "CSVファイルの読み取りに失敗: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		encoding := r.FormValue("encoding")

		count, err := ImportCatalog(db, file, encoding)
		if err != nil {
			msg := fmt.Sprintf("カタログの取り込みに失敗しました: %v", err)
			log.Println(msg)
			http.Error(w, msg, http.StatusInternalServerError)
			return
		}

		log.Printf("Catalog import complete (%d products).", count)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": fmt.Sprintf("カタログの取り込みが完了しました (%d件)。", count),
			"count":   count,
		})
	}
}
