package resolver

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"tanaoroshi/barcode"
	"tanaoroshi/database"
	"tanaoroshi/model"

	"github.com/jmoiron/sqlx"
)

// ResolveHandler はバーコードをローカルマスタ → 外部カタログの順で解決します。
// GET /api/products/resolve/{barcode}
func ResolveHandler(db *sqlx.DB, external *ExternalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawBarcode := strings.TrimPrefix(r.URL.Path, "/api/products/resolve/")
		if rawBarcode == "" {
			http.Error(w, "barcode is required", http.StatusBadRequest)
			return
		}

		log.Printf("Resolve request for barcode: %s", rawBarcode)

		master, err := database.GetProductMasterByBarcode(db, barcode.LookupKeys(rawBarcode))
		if err != nil {
			log.Printf("Error searching product_master by barcode %s: %v", rawBarcode, err)
			http.Error(w, "データベースエラーが発生しました", http.StatusInternalServerError)
			return
		}

		if master != nil {
			log.Printf("Resolved %s locally: %s", rawBarcode, master.ProductName)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(model.ResolveResult{
				Success: true,
				Source:  model.ResolveSourceLocal,
				Data:    model.ResolveData{Product: master},
			})
			return
		}

		log.Printf("Barcode %s not in product_master, querying external catalog...", rawBarcode)

		suggestion, err := external.FetchProduct(r.Context(), rawBarcode)
		if err != nil {
			log.Printf("External catalog lookup failed for %s: %v", rawBarcode, err)
			http.Error(w, "外部カタログの検索中にエラーが発生しました", http.StatusBadGateway)
			return
		}

		if suggestion == nil {
			log.Printf("Barcode %s not found anywhere.", rawBarcode)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(model.ResolveResult{Success: false})
			return
		}

		log.Printf("External catalog hit for %s: %s", rawBarcode, suggestion.ProductName)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.ResolveResult{
			Success: true,
			Source:  model.ResolveSourceOpenFoodFacts,
			Data:    model.ResolveData{Suggestion: suggestion},
		})
	}
}

// AdoptProductHandler は外部カタログの候補からローカルマスタを新規作成します。
// POST /api/products/adopt
func AdoptProductHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload model.AdoptPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if payload.Barcode == "" || payload.ProductName == "" {
			http.Error(w, "barcode と name は必須です", http.StatusBadRequest)
			return
		}

		master := &model.ProductMaster{
			ProductCode: payload.Barcode,
			ProductName: payload.ProductName,
			MakerName:   payload.MakerName,
			Category:    payload.Category,
			UnitName:    payload.UnitName,
			Origin:      "external",
		}
		if parsed, err := barcode.Parse(payload.Barcode); err == nil && parsed.Gtin14 != payload.Barcode {
			master.Gs1Code = parsed.Gtin14
		}

		tx, err := db.Beginx()
		if err != nil {
			http.Error(w, "トランザクションの開始に失敗しました", http.StatusInternalServerError)
			return
		}
		defer tx.Rollback()

		if err := database.UpsertProductMaster(tx, master); err != nil {
			log.Printf("Failed to adopt external product %s: %v", payload.Barcode, err)
			http.Error(w, "マスターの新規作成に失敗しました", http.StatusInternalServerError)
			return
		}

		if err := tx.Commit(); err != nil {
			http.Error(w, "トランザクションのコミットに失敗しました", http.StatusInternalServerError)
			return
		}

		log.Printf("Successfully adopted external product %s (%s).", master.ProductName, master.ProductCode)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(master)
	}
}
