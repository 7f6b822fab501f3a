package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"tanaoroshi/automation"
	"tanaoroshi/barcode"
	"tanaoroshi/config"
	"tanaoroshi/count"
	"tanaoroshi/database"
	"tanaoroshi/loader"
	"tanaoroshi/resolver"

	"github.com/jmoiron/sqlx"
)

func SetupRoutes(mux *http.ServeMux, dbConn *sqlx.DB) {

	external := resolver.NewExternalClient(config.GetConfig().ResolverBaseURL)

	// 棚卸セッション (作成・状態遷移・スキャン計上・明細・サマリ)
	mux.HandleFunc("/api/counts/", count.Router(dbConn))

	// バーコード解決 (ローカルマスタ → 外部カタログ)
	mux.HandleFunc("/api/products/resolve/", resolver.ResolveHandler(dbConn, external))
	mux.HandleFunc("/api/products/adopt", resolver.AdoptProductHandler(dbConn))

	mux.HandleFunc("/api/products/by_code/", func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/api/products/by_code/")
		if code == "" {
			http.Error(w, "product code is required", http.StatusBadRequest)
			return
		}
		master, err := database.GetProductMasterByBarcode(dbConn, barcode.LookupKeys(code))
		if err != nil {
			log.Printf("Error retrieving product by code %s: %v", code, err)
			http.Error(w, "データベースエラーが発生しました", http.StatusInternalServerError)
			return
		}
		if master == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(master)
	})

	// カタログ取込 (CSVアップロード / ポータル自動受信)
	mux.HandleFunc("/api/catalog/import", loader.ImportCatalogHandler(dbConn))
	mux.HandleFunc("/api/automation/catalog/download", automation.DownloadCatalogHandler(dbConn))

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			GetConfigHandler()(w, r)
		case http.MethodPost:
			SaveConfigHandler()(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}
