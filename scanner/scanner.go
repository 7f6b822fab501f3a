package scanner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tanaoroshi/model"
)

// Outcome は1回のスキャン試行の分類結果です
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeAlreadyCounted  Outcome = "already_counted"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeSessionInactive Outcome = "session_inactive"
	OutcomeFailed          Outcome = "failed"
)

// ScanResult は1回のスキャン試行の結果です。Outcome で分岐できるタグ付きの値で、
// AlreadyCounted の場合は Previous に前回計上の詳細が入ります。
type ScanResult struct {
	Outcome        Outcome
	Barcode        string
	Item           *model.CountItem
	Product        *model.ProductMaster
	AlreadyCounted bool
	Previous       *model.ErrorDetails
}

// Hooks は画面側への通知フックです。すべて省略可能で、結果は戻り値でも判定できます。
type Hooks struct {
	OnSuccess        func(*ScanResult)
	OnAlreadyCounted func(*ScanResult)
	OnSuggestion     func(*model.ProductSuggestion, string)
	OnError          func(string)
}

// ScanOptions はスキャン・手動登録の追加入力です
type ScanOptions struct {
	Quantity  float64
	LotID     string
	Notes     string
	CountedBy string
}

// Scanner は1つの棚卸セッションに対するスキャン実行機です。
// 状態 (直近結果・履歴・エラー・ビジーフラグ) はインスタンス内に閉じていて、
// セッションをまたいで共有されることはありません。
type Scanner struct {
	client     *Client
	countID    int64
	hooks      Hooks
	defaultQty float64
	cache      *sessionCache

	mu       sync.Mutex
	lastScan *ScanResult
	history  scanHistory
	errMsg   string

	// busy は scan / 手動登録 / 数量訂正 をまとめたカウンタ、
	// lookingUp はフォールバック検索専用のフラグです。
	busy      int
	lookingUp bool
}

func New(client *Client, countID int64, hooks Hooks) *Scanner {
	return &Scanner{
		client:     client,
		countID:    countID,
		hooks:      hooks,
		defaultQty: 1,
		cache:      newSessionCache(client, countID),
	}
}

// NewWithDefaultQty は数量省略時の既定値を指定して生成します。
func NewWithDefaultQty(client *Client, countID int64, hooks Hooks, defaultQty float64) *Scanner {
	s := New(client, countID, hooks)
	if defaultQty > 0 {
		s.defaultQty = defaultQty
	}
	return s
}

// Session / Items / Summary はセッション情報をキャッシュ経由で読みます。
// 計上が成功するたびにキャッシュは無効化され、次の読み取りで取り直します。
func (s *Scanner) Session(ctx context.Context) (*model.CountSession, error) {
	return s.cache.getSession(ctx)
}

func (s *Scanner) Items(ctx context.Context) ([]model.CountItem, error) {
	return s.cache.getItems(ctx)
}

func (s *Scanner) Summary(ctx context.Context) (*model.CountSummary, error) {
	return s.cache.getSummary(ctx)
}

// InvalidateCache は読み取りキャッシュを明示的に捨てます。
func (s *Scanner) InvalidateCache() {
	s.cache.invalidate()
}

// ScanBarcode は1回のスキャン計上を実行し、結果を分類して返します。
// 戻り値が nil の場合は失敗で、詳細は ErrorMessage() で取得できます。
// BARCODE_NOT_FOUND の場合は自動で外部カタログ検索 (LookupBarcode) を1回だけ
// 行います。これは独立した2回目の呼び出しで、スキャン自体の再試行はしません。
func (s *Scanner) ScanBarcode(ctx context.Context, code string, opts ScanOptions) *ScanResult {
	if code == "" {
		s.failWith("バーコードが空です")
		return nil
	}

	qty := opts.Quantity
	if qty <= 0 {
		qty = s.defaultQty
	}

	s.beginBusy()
	defer s.endBusy()

	resp, err := s.client.Scan(ctx, s.countID, ScanRequest{
		Barcode:   code,
		LotID:     opts.LotID,
		Quantity:  qty,
		Notes:     opts.Notes,
		CountedBy: opts.CountedBy,
	})

	if err == nil {
		result := &ScanResult{
			Outcome: OutcomeSuccess,
			Barcode: code,
			Item:    &resp.Item,
			Product: &resp.Product,
		}

		s.mu.Lock()
		s.errMsg = ""
		s.lastScan = result
		s.history.push(HistoryEntry{
			Barcode:     code,
			ProductName: resp.Product.ProductName,
			Quantity:    qty,
			Success:     true,
			ScannedAt:   time.Now(),
		})
		s.mu.Unlock()

		s.cache.invalidate()
		if s.hooks.OnSuccess != nil {
			s.hooks.OnSuccess(result)
		}
		return result
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeAlreadyCounted:
			// サーバー到達には成功している。計上済みはエラーではなく競合として扱う
			result := &ScanResult{
				Outcome:        OutcomeAlreadyCounted,
				Barcode:        code,
				AlreadyCounted: true,
				Previous:       apiErr.Details,
			}

			s.mu.Lock()
			s.lastScan = result
			s.history.push(HistoryEntry{
				Barcode:        code,
				Quantity:       qty,
				AlreadyCounted: true,
				ScannedAt:      time.Now(),
			})
			s.mu.Unlock()

			if s.hooks.OnAlreadyCounted != nil {
				s.hooks.OnAlreadyCounted(result)
			}
			return result

		case model.ErrCodeBarcodeNotFound:
			// 履歴には残さず、外部カタログへフォールバック (1回のみ・再試行なし)
			log.Printf("Scanner: barcode %s not in local catalog, falling back to external lookup.", code)
			s.LookupBarcode(ctx, code)
			return &ScanResult{Outcome: OutcomeNotFound, Barcode: code}

		case model.ErrCodeCountNotActive:
			s.failWith(apiErr.Message)
			return nil
		}

		s.failWith(apiErr.Message)
		return nil
	}

	s.failWith("スキャンの送信に失敗しました: " + err.Error())
	return nil
}

// LookupBarcode は外部カタログでバーコードを検索します。
// ScanBarcode の BARCODE_NOT_FOUND からも自動で呼ばれます。
// ヒットした候補は OnSuggestion で通知され、採用と再スキャンは呼び出し側の操作です。
func (s *Scanner) LookupBarcode(ctx context.Context, code string) {
	s.mu.Lock()
	s.lookingUp = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.lookingUp = false
		s.mu.Unlock()
	}()

	result, err := s.client.Resolve(ctx, code)
	if err != nil {
		s.failWith("外部カタログの検索に失敗しました: " + err.Error())
		return
	}

	if !result.Success {
		// フォールバックも外れたらこの試行は打ち切り (ループしない)
		s.failWith("バーコード " + code + " に一致する製品が見つかりませんでした")
		return
	}

	if result.Source == model.ResolveSourceLocal {
		// 通常ここには来ない (スキャンが先にローカルを引くため)。
		// 採用直後などで解決側のほうが先に追いついた場合に備えて残してある。
		if result.Data.Product != nil {
			log.Printf("Scanner: barcode %s resolved locally during fallback (%s).", code, result.Data.Product.ProductName)
		}
		return
	}

	if result.Data.Suggestion != nil && s.hooks.OnSuggestion != nil {
		s.hooks.OnSuggestion(result.Data.Suggestion, code)
	}
}

// RegisterManual は製品を直接指定して計上します (一覧からの選択など)。
// バーコード解決を伴わないため not-found もフォールバックもありません。
func (s *Scanner) RegisterManual(ctx context.Context, productID string, opts ScanOptions) *model.CountItem {
	if productID == "" {
		s.failWith("製品IDが空です")
		return nil
	}

	qty := opts.Quantity
	if qty <= 0 {
		qty = s.defaultQty
	}

	s.beginBusy()
	defer s.endBusy()

	item, err := s.client.RegisterItem(ctx, s.countID, RegisterRequest{
		ProductID: productID,
		LotID:     opts.LotID,
		Quantity:  qty,
		Notes:     opts.Notes,
		CountedBy: opts.CountedBy,
	})

	if err == nil {
		s.mu.Lock()
		s.errMsg = ""
		s.mu.Unlock()
		s.cache.invalidate()
		return item
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == model.ErrCodeAlreadyCounted {
			result := &ScanResult{
				Outcome:        OutcomeAlreadyCounted,
				AlreadyCounted: true,
				Previous:       apiErr.Details,
			}
			if s.hooks.OnAlreadyCounted != nil {
				s.hooks.OnAlreadyCounted(result)
			}
			return nil
		}
		s.failWith(apiErr.Message)
		return nil
	}

	s.failWith("手動登録の送信に失敗しました: " + err.Error())
	return nil
}

// UpdateItemCount は計上済み明細の数量を訂正します。履歴には残しません。
func (s *Scanner) UpdateItemCount(ctx context.Context, itemID int64, qty float64, notes string) *model.CountItem {
	s.beginBusy()
	defer s.endBusy()

	item, err := s.client.UpdateItem(ctx, s.countID, itemID, UpdateRequest{
		Quantity: qty,
		Notes:    notes,
	})

	if err == nil {
		s.mu.Lock()
		s.errMsg = ""
		s.mu.Unlock()
		s.cache.invalidate()
		return item
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.failWith(apiErr.Message)
		return nil
	}

	s.failWith("数量訂正の送信に失敗しました: " + err.Error())
	return nil
}

// --- 状態の読み取り・クリア ---

// LastScan は直近のスキャン結果を返します (未スキャンなら nil)。
func (s *Scanner) LastScan() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// History は新しい順のスキャン履歴のコピーを返します。
func (s *Scanner) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// ErrorMessage は直近のエラーメッセージを返します (なければ空文字)。
func (s *Scanner) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// IsScanning はスキャン・手動登録・数量訂正のいずれかが実行中かを返します。
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy > 0
}

// IsLookingUp はフォールバック検索が実行中かを返します。IsScanning とは独立です。
func (s *Scanner) IsLookingUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookingUp
}

// ClearError はエラーだけをクリアします。lastScan と履歴には触れません。
func (s *Scanner) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// ClearLastScan は直近結果だけをクリアします。エラーと履歴には触れません。
func (s *Scanner) ClearLastScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = nil
}

// ClearHistory は履歴だけをクリアします。エラーと直近結果には触れません。
func (s *Scanner) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.clear()
}

// --- 内部ヘルパー ---

func (s *Scanner) beginBusy() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
}

func (s *Scanner) endBusy() {
	s.mu.Lock()
	s.busy--
	s.mu.Unlock()
}

func (s *Scanner) failWith(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	if s.hooks.OnError != nil {
		s.hooks.OnError(msg)
	}
}
