package scanner

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"tanaoroshi/model"
)

// fakeCountServer は棚卸サーバーAPIの最小実装です。
// セッション1件 (ID=1) を保持し、同一製品の二重計上をサーバー側で拒否します。
type fakeCountServer struct {
	mu           sync.Mutex
	status       model.CountStatus
	products     map[string]string // バーコード -> 製品名
	counted      map[string]fakeCounted
	nextItemID   int64
	resolve      *model.ResolveResult
	resolveCalls int
	sessionGets  int
	scanCalls    int
}

type fakeCounted struct {
	itemID int64
	qty    float64
	by     string
	at     string
}

func newFakeCountServer(status model.CountStatus) *fakeCountServer {
	return &fakeCountServer{
		status:   status,
		products: map[string]string{},
		counted:  map[string]fakeCounted{},
	}
}

func (f *fakeCountServer) countedQty(code string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counted[code]
	return c.qty, ok
}

func (f *fakeCountServer) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls
}

func (f *fakeCountServer) sessionGetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionGets
}

func (f *fakeCountServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/products/resolve/"):
		f.resolveCalls++
		res := f.resolve
		if res == nil {
			res = &model.ResolveResult{Success: false}
		}
		w.Header().Set("Content-Type", "application/json")
		if !res.Success {
			w.WriteHeader(http.StatusNotFound)
		}
		json.NewEncoder(w).Encode(res)

	case path == "/api/counts/1" && r.Method == http.MethodGet:
		f.sessionGets++
		json.NewEncoder(w).Encode(model.CountSession{ID: 1, Name: "テスト棚卸", Status: f.status})

	case path == "/api/counts/1/scan" && r.Method == http.MethodPost:
		f.scanCalls++
		f.handleScan(w, r)

	case path == "/api/counts/1/items" && r.Method == http.MethodPost:
		f.handleRegister(w, r)

	case path == "/api/counts/1/items" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode([]model.CountItem{})

	case strings.HasPrefix(path, "/api/counts/1/items/") && r.Method == http.MethodPut:
		f.handleUpdate(w, r, strings.TrimPrefix(path, "/api/counts/1/items/"))

	case path == "/api/counts/1/summary" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(model.CountSummary{CountID: 1, Status: f.status})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCountServer) writeError(w http.ResponseWriter, status int, apiErr model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.APIErrorResponse{Error: apiErr})
}

func (f *fakeCountServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	json.NewDecoder(r.Body).Decode(&req)

	if f.status != model.CountStatusInProgress {
		f.writeError(w, http.StatusConflict, model.APIError{
			Code:    model.ErrCodeCountNotActive,
			Message: "この棚卸は実施中ではありません",
		})
		return
	}

	name, ok := f.products[req.Barcode]
	if !ok {
		f.writeError(w, http.StatusNotFound, model.APIError{
			Code:    model.ErrCodeBarcodeNotFound,
			Message: "バーコードに一致する製品が見つかりません",
		})
		return
	}

	if prev, dup := f.counted[req.Barcode]; dup {
		f.writeError(w, http.StatusConflict, model.APIError{
			Code:    model.ErrCodeAlreadyCounted,
			Message: "この製品は計上済みです",
			Details: &model.ErrorDetails{
				PreviousCount: prev.qty,
				CountedAt:     prev.at,
				CountedBy:     prev.by,
				ItemID:        prev.itemID,
			},
		})
		return
	}

	f.nextItemID++
	f.counted[req.Barcode] = fakeCounted{
		itemID: f.nextItemID,
		qty:    req.Quantity,
		by:     req.CountedBy,
		at:     "2026-08-29T10:00:00Z",
	}

	json.NewEncoder(w).Encode(model.ScanResponse{
		Item: model.CountItem{
			ID:          f.nextItemID,
			CountID:     1,
			ProductCode: req.Barcode,
			CountedQty:  sql.NullFloat64{Float64: req.Quantity, Valid: true},
			Counted:     true,
		},
		Product: model.ProductMaster{ProductCode: req.Barcode, ProductName: name},
	})
}

func (f *fakeCountServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	json.NewDecoder(r.Body).Decode(&req)

	if f.status != model.CountStatusInProgress {
		f.writeError(w, http.StatusConflict, model.APIError{
			Code:    model.ErrCodeCountNotActive,
			Message: "この棚卸は実施中ではありません",
		})
		return
	}

	if prev, dup := f.counted[req.ProductID]; dup {
		f.writeError(w, http.StatusConflict, model.APIError{
			Code:    model.ErrCodeAlreadyCounted,
			Message: "この製品は計上済みです",
			Details: &model.ErrorDetails{
				PreviousCount: prev.qty,
				CountedAt:     prev.at,
				CountedBy:     prev.by,
				ItemID:        prev.itemID,
			},
		})
		return
	}

	f.nextItemID++
	f.counted[req.ProductID] = fakeCounted{itemID: f.nextItemID, qty: req.Quantity, by: req.CountedBy, at: "2026-08-29T10:00:00Z"}

	json.NewEncoder(w).Encode(model.CountItem{
		ID:          f.nextItemID,
		CountID:     1,
		ProductCode: req.ProductID,
		CountedQty:  sql.NullFloat64{Float64: req.Quantity, Valid: true},
		Counted:     true,
	})
}

func (f *fakeCountServer) handleUpdate(w http.ResponseWriter, r *http.Request, rawID string) {
	var req UpdateRequest
	json.NewDecoder(r.Body).Decode(&req)

	if f.status != model.CountStatusInProgress {
		f.writeError(w, http.StatusConflict, model.APIError{
			Code:    model.ErrCodeCountNotActive,
			Message: "この棚卸は実施中ではありません",
		})
		return
	}

	itemID, _ := strconv.ParseInt(rawID, 10, 64)
	for code, c := range f.counted {
		if c.itemID == itemID {
			c.qty = req.Quantity
			f.counted[code] = c
			json.NewEncoder(w).Encode(model.CountItem{
				ID:          itemID,
				CountID:     1,
				ProductCode: code,
				CountedQty:  sql.NullFloat64{Float64: req.Quantity, Valid: true},
				Counted:     true,
			})
			return
		}
	}
	f.writeError(w, http.StatusNotFound, model.APIError{
		Code:    model.ErrCodeItemNotFound,
		Message: "明細が見つかりません",
	})
}

func newTestScanner(t *testing.T, f *fakeCountServer, hooks Hooks) *Scanner {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return New(NewClient(ts.URL), 1, hooks)
}

func TestScanBarcodeSuccess(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"

	var onSuccess *ScanResult
	s := newTestScanner(t, srv, Hooks{OnSuccess: func(r *ScanResult) { onSuccess = r }})

	result := s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 5})
	if result == nil {
		t.Fatalf("Scan failed: %s", s.ErrorMessage())
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Expected success outcome, got %s", result.Outcome)
	}
	if !result.Item.Counted || result.Item.CountedQty.Float64 != 5 {
		t.Errorf("Unexpected item state: %+v", result.Item)
	}
	if result.Product.ProductName != "コーラ 500ml" {
		t.Errorf("Unexpected product: %+v", result.Product)
	}
	if onSuccess != result {
		t.Error("OnSuccess hook should receive the same result")
	}
	if s.ErrorMessage() != "" {
		t.Errorf("Error should be clear after success, got %q", s.ErrorMessage())
	}
	if s.LastScan() != result {
		t.Error("LastScan should hold the latest result")
	}

	history := s.History()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if !history[0].Success || history[0].Quantity != 5 || history[0].ProductName != "コーラ 500ml" {
		t.Errorf("Unexpected history entry: %+v", history[0])
	}
}

func TestScanBarcodeAlreadyCounted(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"

	var onAlready *ScanResult
	s := newTestScanner(t, srv, Hooks{OnAlreadyCounted: func(r *ScanResult) { onAlready = r }})

	if s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 5}) == nil {
		t.Fatalf("First scan failed: %s", s.ErrorMessage())
	}

	result := s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 3})
	if result == nil {
		t.Fatalf("Duplicate scan should still return a result: %s", s.ErrorMessage())
	}
	if result.Outcome != OutcomeAlreadyCounted || !result.AlreadyCounted {
		t.Fatalf("Expected already_counted outcome, got %+v", result)
	}
	if result.Previous == nil || result.Previous.PreviousCount != 5 {
		t.Fatalf("Expected previous count 5 in details, got %+v", result.Previous)
	}
	if onAlready != result {
		t.Error("OnAlreadyCounted hook should receive the result")
	}
	if s.ErrorMessage() != "" {
		t.Errorf("Duplicate scan is a conflict, not an error, got %q", s.ErrorMessage())
	}

	// 2回目のスキャンでサーバー側の数量は変わらない
	if qty, _ := srv.countedQty("7801234567890"); qty != 5 {
		t.Errorf("Server quantity changed on duplicate scan: %g", qty)
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if !history[0].AlreadyCounted || history[0].Success {
		t.Errorf("Newest entry should be the duplicate attempt: %+v", history[0])
	}
}

func TestScanBarcodeNotFoundFallsBack(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.resolve = &model.ResolveResult{
		Success: true,
		Source:  model.ResolveSourceOpenFoodFacts,
		Data: model.ResolveData{
			Suggestion: &model.ProductSuggestion{Barcode: "4999999999993", ProductName: "未登録のお茶"},
		},
	}

	var gotSuggestion *model.ProductSuggestion
	var gotBarcode string
	s := newTestScanner(t, srv, Hooks{
		OnSuggestion: func(sg *model.ProductSuggestion, code string) {
			gotSuggestion = sg
			gotBarcode = code
		},
	})

	result := s.ScanBarcode(context.Background(), "4999999999993", ScanOptions{})
	if result == nil || result.Outcome != OutcomeNotFound {
		t.Fatalf("Expected not_found outcome, got %+v (%s)", result, s.ErrorMessage())
	}
	if gotSuggestion == nil || gotSuggestion.ProductName != "未登録のお茶" {
		t.Fatalf("OnSuggestion should fire with the external candidate, got %+v", gotSuggestion)
	}
	if gotBarcode != "4999999999993" {
		t.Errorf("OnSuggestion should carry the scanned barcode, got %q", gotBarcode)
	}
	if srv.resolveCount() != 1 {
		t.Errorf("Fallback lookup should run exactly once, got %d", srv.resolveCount())
	}
	if len(s.History()) != 0 {
		t.Error("Unresolved scans must not enter the history")
	}
	if s.ErrorMessage() != "" {
		t.Errorf("Suggestion path should not set an error, got %q", s.ErrorMessage())
	}
	if s.IsLookingUp() {
		t.Error("IsLookingUp should be clear after the lookup finishes")
	}
}

func TestScanBarcodeFallbackMiss(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)

	var suggested bool
	s := newTestScanner(t, srv, Hooks{
		OnSuggestion: func(*model.ProductSuggestion, string) { suggested = true },
	})

	result := s.ScanBarcode(context.Background(), "4999999999993", ScanOptions{})
	if result == nil || result.Outcome != OutcomeNotFound {
		t.Fatalf("Expected not_found outcome, got %+v", result)
	}
	if suggested {
		t.Error("OnSuggestion must not fire when the fallback also misses")
	}
	if s.ErrorMessage() == "" {
		t.Error("A full miss should leave an error message")
	}
	// フォールバックは1回で打ち切り (ループしない)
	if srv.resolveCount() != 1 {
		t.Errorf("Expected exactly 1 resolve call, got %d", srv.resolveCount())
	}
	if len(s.History()) != 0 {
		t.Error("Missed scans must not enter the history")
	}
}

func TestScanBarcodeLocalHitDuringFallback(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.resolve = &model.ResolveResult{
		Success: true,
		Source:  model.ResolveSourceLocal,
		Data: model.ResolveData{
			Product: &model.ProductMaster{ProductCode: "4999999999993", ProductName: "採用直後の品"},
		},
	}

	var suggested bool
	s := newTestScanner(t, srv, Hooks{
		OnSuggestion: func(*model.ProductSuggestion, string) { suggested = true },
	})

	result := s.ScanBarcode(context.Background(), "4999999999993", ScanOptions{})
	if result == nil || result.Outcome != OutcomeNotFound {
		t.Fatalf("Expected not_found outcome, got %+v", result)
	}
	if suggested {
		t.Error("A local resolve hit is not a suggestion")
	}
	if s.ErrorMessage() != "" {
		t.Errorf("A local resolve hit is informational, got error %q", s.ErrorMessage())
	}
}

func TestScanBarcodeSessionNotActive(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusCompleted)
	srv.products["7801234567890"] = "コーラ 500ml"

	var onError string
	s := newTestScanner(t, srv, Hooks{OnError: func(msg string) { onError = msg }})

	result := s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 1})
	if result != nil {
		t.Fatalf("Scan against a completed session should fail, got %+v", result)
	}
	if s.ErrorMessage() == "" || onError == "" {
		t.Error("Expected an error message for an inactive session")
	}
	if srv.resolveCount() != 0 {
		t.Error("Inactive session must not trigger a fallback lookup")
	}
	if len(s.History()) != 0 {
		t.Error("Failed scans must not enter the history")
	}
}

func TestScanBarcodeEmpty(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	s := newTestScanner(t, srv, Hooks{})

	if result := s.ScanBarcode(context.Background(), "", ScanOptions{}); result != nil {
		t.Fatalf("Empty barcode should fail, got %+v", result)
	}
	if s.ErrorMessage() == "" {
		t.Error("Expected an error message for an empty barcode")
	}
	srv.mu.Lock()
	calls := srv.scanCalls
	srv.mu.Unlock()
	if calls != 0 {
		t.Errorf("Empty barcode must not reach the server, got %d calls", calls)
	}
}

func TestScanBarcodeTransportError(t *testing.T) {
	ts := httptest.NewServer(newFakeCountServer(model.CountStatusInProgress))
	url := ts.URL
	ts.Close()

	s := New(NewClient(url), 1, Hooks{})
	if result := s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{}); result != nil {
		t.Fatalf("Transport failure should return nil, got %+v", result)
	}
	if s.ErrorMessage() == "" {
		t.Error("Expected an error message after a transport failure")
	}
}

func TestClearsAreIndependent(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"
	s := newTestScanner(t, srv, Hooks{})

	if s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 1}) == nil {
		t.Fatalf("Scan failed: %s", s.ErrorMessage())
	}
	s.ScanBarcode(context.Background(), "", ScanOptions{})

	if s.ErrorMessage() == "" || s.LastScan() == nil || len(s.History()) != 1 {
		t.Fatal("Test setup did not produce error + lastScan + history")
	}

	s.ClearError()
	if s.ErrorMessage() != "" {
		t.Error("ClearError should clear the error")
	}
	if s.LastScan() == nil || len(s.History()) != 1 {
		t.Error("ClearError must not touch lastScan or history")
	}

	s.ClearLastScan()
	if s.LastScan() != nil {
		t.Error("ClearLastScan should clear the last result")
	}
	if len(s.History()) != 1 {
		t.Error("ClearLastScan must not touch the history")
	}

	s.ClearHistory()
	if len(s.History()) != 0 {
		t.Error("ClearHistory should clear the history")
	}
}

func TestRegisterManual(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)

	var onAlready bool
	s := newTestScanner(t, srv, Hooks{OnAlreadyCounted: func(*ScanResult) { onAlready = true }})

	item := s.RegisterManual(context.Background(), "4901234567894", ScanOptions{Quantity: 2})
	if item == nil {
		t.Fatalf("Manual registration failed: %s", s.ErrorMessage())
	}
	if item.ProductCode != "4901234567894" || item.CountedQty.Float64 != 2 {
		t.Errorf("Unexpected item: %+v", item)
	}
	if len(s.History()) != 0 {
		t.Error("Manual registration must not enter the scan history")
	}

	if dup := s.RegisterManual(context.Background(), "4901234567894", ScanOptions{Quantity: 1}); dup != nil {
		t.Fatalf("Duplicate manual registration should return nil, got %+v", dup)
	}
	if !onAlready {
		t.Error("OnAlreadyCounted should fire for a duplicate manual registration")
	}
	if qty, _ := srv.countedQty("4901234567894"); qty != 2 {
		t.Errorf("Server quantity changed on duplicate registration: %g", qty)
	}
}

func TestUpdateItemCount(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"
	s := newTestScanner(t, srv, Hooks{})

	result := s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 5})
	if result == nil {
		t.Fatalf("Scan failed: %s", s.ErrorMessage())
	}

	item := s.UpdateItemCount(context.Background(), result.Item.ID, 8, "数え直し")
	if item == nil {
		t.Fatalf("Update failed: %s", s.ErrorMessage())
	}
	if item.CountedQty.Float64 != 8 {
		t.Errorf("Expected quantity 8 after update, got %g", item.CountedQty.Float64)
	}
	if qty, _ := srv.countedQty("7801234567890"); qty != 8 {
		t.Errorf("Server quantity should be 8, got %g", qty)
	}
	if len(s.History()) != 1 {
		t.Error("Quantity updates must not enter the history")
	}

	srv.mu.Lock()
	srv.status = model.CountStatusCompleted
	srv.mu.Unlock()

	if got := s.UpdateItemCount(context.Background(), result.Item.ID, 9, ""); got != nil {
		t.Fatalf("Update against a completed session should fail, got %+v", got)
	}
	if s.ErrorMessage() == "" {
		t.Error("Expected an error message for an update on an inactive session")
	}
}

func TestSessionCacheInvalidatedByScan(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"
	s := newTestScanner(t, srv, Hooks{})
	ctx := context.Background()

	if _, err := s.Session(ctx); err != nil {
		t.Fatalf("Session fetch failed: %v", err)
	}
	if _, err := s.Session(ctx); err != nil {
		t.Fatalf("Session fetch failed: %v", err)
	}
	if srv.sessionGetCount() != 1 {
		t.Fatalf("Second read should hit the cache, got %d server calls", srv.sessionGetCount())
	}

	if s.ScanBarcode(ctx, "7801234567890", ScanOptions{Quantity: 1}) == nil {
		t.Fatalf("Scan failed: %s", s.ErrorMessage())
	}

	if _, err := s.Session(ctx); err != nil {
		t.Fatalf("Session fetch failed: %v", err)
	}
	if srv.sessionGetCount() != 2 {
		t.Errorf("Scan should invalidate the cache, got %d server calls", srv.sessionGetCount())
	}
}

func TestConcurrentScansSameBarcode(t *testing.T) {
	srv := newFakeCountServer(model.CountStatusInProgress)
	srv.products["7801234567890"] = "コーラ 500ml"
	s := newTestScanner(t, srv, Hooks{})

	results := make([]*ScanResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.ScanBarcode(context.Background(), "7801234567890", ScanOptions{Quantity: 2})
		}(i)
	}
	wg.Wait()

	var success, already int
	for _, r := range results {
		if r == nil {
			t.Fatalf("Concurrent scan returned nil: %s", s.ErrorMessage())
		}
		switch r.Outcome {
		case OutcomeSuccess:
			success++
		case OutcomeAlreadyCounted:
			already++
		}
	}
	if success != 1 || already != 1 {
		t.Fatalf("Expected exactly one success and one conflict, got %d/%d", success, already)
	}
	if qty, _ := srv.countedQty("7801234567890"); qty != 2 {
		t.Errorf("Item must be counted at most once, server quantity %g", qty)
	}
	if len(s.History()) != 2 {
		t.Errorf("Both attempts should be in the history, got %d", len(s.History()))
	}
	if s.IsScanning() {
		t.Error("IsScanning should be clear after both scans finish")
	}
}
