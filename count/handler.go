package count

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"tanaoroshi/barcode"
	"tanaoroshi/config"
	"tanaoroshi/database"
	"tanaoroshi/model"

	"github.com/jmoiron/sqlx"
)

// ScanPayload は POST /api/counts/{id}/scan のリクエストです
type ScanPayload struct {
	Barcode   string  `json:"barcode"`
	LotID     string  `json:"lot_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
	CountedBy string  `json:"counted_by,omitempty"`
}

// RegisterPayload は POST /api/counts/{id}/items のリクエストです
type RegisterPayload struct {
	ProductID string  `json:"product_id"`
	LotID     string  `json:"lot_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
	CountedBy string  `json:"counted_by,omitempty"`
}

// UpdatePayload は PUT /api/counts/{id}/items/{itemId} のリクエストです
type UpdatePayload struct {
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

// CreatePayload は POST /api/counts/create のリクエストです
type CreatePayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Items    []struct {
		ProductID   string  `json:"product_id"`
		LotID       string  `json:"lot_id,omitempty"`
		ExpectedQty float64 `json:"expected_qty"`
	} `json:"items,omitempty"`
}

func writeAPIError(w http.ResponseWriter, status int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.APIErrorResponse{Error: *apiErr})
}

func writeInternalError(w http.ResponseWriter, context string, err error) {
	log.Printf("ERROR: %s: %v", context, err)
	writeAPIError(w, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrCodeInternal,
		Message: "サーバー内部でエラーが発生しました",
	})
}

// statusForCode はエラーコードからHTTPステータスを決めます。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeAlreadyCounted, model.ErrCodeCountNotActive:
		return http.StatusConflict
	case model.ErrCodeBarcodeNotFound, model.ErrCodeCountNotFound, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Router は /api/counts/ 配下のパスを解決します。
//
//	POST /api/counts/create
//	GET  /api/counts/{id}
//	POST /api/counts/{id}/start | complete | cancel
//	POST /api/counts/{id}/scan
//	GET  /api/counts/{id}/items
//	POST /api/counts/{id}/items
//	PUT  /api/counts/{id}/items/{itemId}
//	GET  /api/counts/{id}/summary
func Router(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/counts/"), "/")
		parts := strings.Split(rest, "/")

		if rest == "create" {
			CreateCountHandler(db)(w, r)
			return
		}

		countID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "棚卸セッションIDが不正です",
			})
			return
		}

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			getSessionHandler(db, countID)(w, r)
		case len(parts) == 2 && r.Method == http.MethodPost &&
			(parts[1] == "start" || parts[1] == "complete" || parts[1] == "cancel"):
			transitionHandler(db, countID, parts[1])(w, r)
		case len(parts) == 2 && parts[1] == "scan" && r.Method == http.MethodPost:
			scanHandler(db, countID)(w, r)
		case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodGet:
			listItemsHandler(db, countID)(w, r)
		case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodPost:
			registerManualHandler(db, countID)(w, r)
		case len(parts) == 3 && parts[1] == "items" && r.Method == http.MethodPut:
			itemID, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				writeAPIError(w, http.StatusBadRequest, &model.APIError{
					Code:    model.ErrCodeValidation,
					Message: "明細IDが不正です",
				})
				return
			}
			updateItemHandler(db, countID, itemID)(w, r)
		case len(parts) == 2 && parts[1] == "summary" && r.Method == http.MethodGet:
			summaryHandler(db, countID)(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

func CreateCountHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payload CreatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "リクエストボディが不正です: " + err.Error(),
			})
			return
		}

		tx, err := db.Beginx()
		if err != nil {
			writeInternalError(w, "failed to begin transaction for count creation", err)
			return
		}
		defer tx.Rollback()

		session, err := database.CreateCountSession(tx, payload.Name, payload.Location)
		if err != nil {
			writeInternalError(w, "failed to create count session", err)
			return
		}

		for _, it := range payload.Items {
			if it.ProductID == "" {
				continue
			}
			if _, err := database.InsertExpectedItem(tx, session.ID, it.ProductID, it.LotID, it.ExpectedQty); err != nil {
				writeInternalError(w, "failed to insert expected item", err)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			writeInternalError(w, "failed to commit count creation", err)
			return
		}

		log.Printf("Count session %d created (%s / %s, %d expected items).",
			session.ID, session.Name, session.Location, len(payload.Items))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	}
}

func getSessionHandler(db *sqlx.DB, countID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := database.GetCountSession(db, countID)
		if err != nil {
			writeInternalError(w, "failed to get count session", err)
			return
		}
		if session == nil {
			writeAPIError(w, http.StatusNotFound, &model.APIError{
				Code:    model.ErrCodeCountNotFound,
				Message: "指定された棚卸セッションが見つかりません",
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	}
}

func transitionHandler(db *sqlx.DB, countID int64, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var target model.CountStatus
		switch action {
		case "start":
			target = model.CountStatusInProgress
		case "complete":
			target = model.CountStatusCompleted
		case "cancel":
			target = model.CountStatusCancelled
		}

		tx, err := db.Beginx()
		if err != nil {
			writeInternalError(w, "failed to begin transaction for status transition", err)
			return
		}
		defer tx.Rollback()

		session, err := database.GetCountSession(tx, countID)
		if err != nil {
			writeInternalError(w, "failed to get count session for transition", err)
			return
		}
		if session == nil {
			writeAPIError(w, http.StatusNotFound, &model.APIError{
				Code:    model.ErrCodeCountNotFound,
				Message: "指定された棚卸セッションが見つかりません",
			})
			return
		}

		if !session.Status.CanTransitionTo(target) {
			writeAPIError(w, http.StatusConflict, &model.APIError{
				Code:    model.ErrCodeCountNotActive,
				Message: "この状態からは遷移できません (" + string(session.Status) + " → " + string(target) + ")",
			})
			return
		}

		if err := database.UpdateCountStatus(tx, countID, target); err != nil {
			writeInternalError(w, "failed to update count status", err)
			return
		}
		if err := tx.Commit(); err != nil {
			writeInternalError(w, "failed to commit status transition", err)
			return
		}

		log.Printf("Count session %d: %s → %s", countID, session.Status, target)
		session.Status = target
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	}
}

func scanHandler(db *sqlx.DB, countID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ScanPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "リクエストボディが不正です: " + err.Error(),
			})
			return
		}
		if payload.Barcode == "" {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "バーコードが空です",
			})
			return
		}
		if payload.Quantity <= 0 {
			payload.Quantity = defaultQuantity()
		}

		tx, err := db.Beginx()
		if err != nil {
			writeInternalError(w, "failed to begin transaction for scan", err)
			return
		}
		defer tx.Rollback()

		_, apiErr, err := checkSessionActive(tx, countID)
		if err != nil {
			writeInternalError(w, "failed to check session state for scan", err)
			return
		}
		if apiErr != nil {
			writeAPIError(w, statusForCode(apiErr.Code), apiErr)
			return
		}

		master, err := database.GetProductMasterByBarcode(tx, barcode.LookupKeys(payload.Barcode))
		if err != nil {
			writeInternalError(w, "failed to look up product by barcode", err)
			return
		}
		if master == nil {
			log.Printf("Scan for count %d: barcode %s not in product_master.", countID, payload.Barcode)
			writeAPIError(w, http.StatusNotFound, &model.APIError{
				Code:    model.ErrCodeBarcodeNotFound,
				Message: "このバーコードに一致する製品がカタログにありません",
			})
			return
		}

		// GS1バーコードにロット(10)が含まれていて lot_id 未指定なら、ロットを自動登録する
		lotID := payload.LotID
		if lotID == "" {
			if parsed, perr := barcode.Parse(payload.Barcode); perr == nil && parsed.LotNumber != "" {
				lot := &model.Lot{
					LotID:       master.ProductCode + "-" + parsed.LotNumber,
					ProductCode: master.ProductCode,
					LotNumber:   parsed.LotNumber,
					ExpiryDate:  parsed.ExpiryDate,
				}
				if err := database.UpsertLot(tx, lot); err != nil {
					writeInternalError(w, "failed to upsert lot from GS1 barcode", err)
					return
				}
				lotID = lot.LotID
			}
		}

		item, apiErr, err := registerItem(tx, countID, master.ProductCode, lotID, payload.Quantity, payload.Notes, payload.CountedBy)
		if err != nil {
			writeInternalError(w, "failed to register scanned item", err)
			return
		}
		if apiErr != nil {
			writeAPIError(w, statusForCode(apiErr.Code), apiErr)
			return
		}

		if err := tx.Commit(); err != nil {
			writeInternalError(w, "failed to commit scan registration", err)
			return
		}

		log.Printf("Scan for count %d: %s (%s) counted qty %g.", countID, master.ProductName, master.ProductCode, payload.Quantity)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.ScanResponse{
			Item:           *item,
			Product:        *master,
			AlreadyCounted: false,
		})
	}
}

func registerManualHandler(db *sqlx.DB, countID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload RegisterPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "リクエストボディが不正です: " + err.Error(),
			})
			return
		}
		if payload.ProductID == "" {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "product_id は必須です",
			})
			return
		}
		if payload.Quantity <= 0 {
			payload.Quantity = defaultQuantity()
		}

		tx, err := db.Beginx()
		if err != nil {
			writeInternalError(w, "failed to begin transaction for manual registration", err)
			return
		}
		defer tx.Rollback()

		_, apiErr, err := checkSessionActive(tx, countID)
		if err != nil {
			writeInternalError(w, "failed to check session state for manual registration", err)
			return
		}
		if apiErr != nil {
			writeAPIError(w, statusForCode(apiErr.Code), apiErr)
			return
		}

		master, err := database.GetProductMasterByCode(tx, payload.ProductID)
		if err != nil {
			writeInternalError(w, "failed to get product for manual registration", err)
			return
		}
		if master == nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "指定された製品がカタログにありません: " + payload.ProductID,
			})
			return
		}

		item, apiErr, err := registerItem(tx, countID, master.ProductCode, payload.LotID, payload.Quantity, payload.Notes, payload.CountedBy)
		if err != nil {
			writeInternalError(w, "failed to register manual item", err)
			return
		}
		if apiErr != nil {
			writeAPIError(w, statusForCode(apiErr.Code), apiErr)
			return
		}

		if err := tx.Commit(); err != nil {
			writeInternalError(w, "failed to commit manual registration", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(item)
	}
}

func updateItemHandler(db *sqlx.DB, countID, itemID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload UpdatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "リクエストボディが不正です: " + err.Error(),
			})
			return
		}
		if payload.Quantity < 0 {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "数量は0以上で指定してください",
			})
			return
		}

		tx, err := db.Beginx()
		if err != nil {
			writeInternalError(w, "failed to begin transaction for item update", err)
			return
		}
		defer tx.Rollback()

		_, apiErr, err := checkSessionActive(tx, countID)
		if err != nil {
			writeInternalError(w, "failed to check session state for item update", err)
			return
		}
		if apiErr != nil {
			writeAPIError(w, statusForCode(apiErr.Code), apiErr)
			return
		}

		item, err := database.GetCountItemByID(tx, itemID)
		if err != nil {
			writeInternalError(w, "failed to get item for update", err)
			return
		}
		if item == nil || item.CountID != countID {
			writeAPIError(w, http.StatusNotFound, &model.APIError{
				Code:    model.ErrCodeItemNotFound,
				Message: "指定された棚卸明細が見つかりません",
			})
			return
		}
		if !item.Counted {
			writeAPIError(w, http.StatusBadRequest, &model.APIError{
				Code:    model.ErrCodeValidation,
				Message: "未計上の明細は数量訂正できません",
			})
			return
		}

		if err := database.UpdateItemQuantity(tx, itemID, payload.Quantity, payload.Notes); err != nil {
			writeInternalError(w, "failed to update item quantity", err)
			return
		}

		updated, err := database.GetCountItemByID(tx, itemID)
		if err != nil {
			writeInternalError(w, "failed to reload updated item", err)
			return
		}

		if err := tx.Commit(); err != nil {
			writeInternalError(w, "failed to commit item update", err)
			return
		}

		log.Printf("Count %d: item %d quantity corrected to %g.", countID, itemID, payload.Quantity)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}
}

func listItemsHandler(db *sqlx.DB, countID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := database.GetCountItems(db, countID)
		if err != nil {
			writeInternalError(w, "failed to list count items", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func summaryHandler(db *sqlx.DB, countID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := database.GetCountSession(db, countID)
		if err != nil {
			writeInternalError(w, "failed to get session for summary", err)
			return
		}
		if session == nil {
			writeAPIError(w, http.StatusNotFound, &model.APIError{
				Code:    model.ErrCodeCountNotFound,
				Message: "指定された棚卸セッションが見つかりません",
			})
			return
		}

		summary, err := database.GetCountSummary(db, session)
		if err != nil {
			writeInternalError(w, "failed to build count summary", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}

func defaultQuantity() float64 {
	if qty := config.GetConfig().DefaultScanQty; qty > 0 {
		return qty
	}
	return 1
}
