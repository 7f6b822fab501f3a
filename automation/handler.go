package automation

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"tanaoroshi/config"
	"tanaoroshi/loader"

	"github.com/jmoiron/sqlx"
)

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// DownloadCatalogHandler は仕入先ポータルからカタログCSVを自動受信し、
// そのまま product_master に取り込みます。
func DownloadCatalogHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			writeJSONError(w, "設定の読み込みに失敗しました: "+err.Error(), http.StatusInternalServerError)
			return
		}

		if cfg.PortalUserID == "" || cfg.PortalPassword == "" {
			writeJSONError(w, "ポータルのIDまたはパスワードが設定されていません。設定画面で入力してください。", http.StatusBadRequest)
			return
		}

		saveDir := cfg.CatalogFolderPath
		if saveDir == "" {
			saveDir = os.TempDir()
			log.Printf("カタログ保存先設定がないため、一時フォルダを使用します: %s", saveDir)
		}

		log.Println("Starting supplier portal automation...")
		filePath, err := DownloadCatalog(cfg.PortalUserID, cfg.PortalPassword, saveDir)

		if err != nil {
			log.Printf("Automation Error: %v", err)
			writeJSONError(w, "自動受信エラー: "+err.Error(), http.StatusInternalServerError)
			return
		}

		if filePath == "NO_DATA" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "no_data",
				"message": "カタログの更新はありませんでした。",
			})
			return
		}

		log.Printf("Importing downloaded catalog: %s", filePath)
		file, err := os.Open(filePath)
		if err != nil {
			writeJSONError(w, "ダウンロードファイルのオープンに失敗: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer file.Close()

		count, err := loader.ImportCatalog(db, file, "sjis")
		if err != nil {
			writeJSONError(w, "カタログ取込処理でエラー: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "success",
			"message":  fmt.Sprintf("ダウンロード＆取込完了: %d件", count),
			"filePath": filePath,
			"count":    count,
		})
	}
}
