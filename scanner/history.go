package scanner

import "time"

// historyLimit はスキャン履歴の最大保持件数です。超過分は古いものから捨てます。
const historyLimit = 50

// HistoryEntry は1回のスキャン試行の記録です。画面表示用の揮発データで、
// 永続化は一切しません。
type HistoryEntry struct {
	Barcode        string    `json:"barcode"`
	ProductName    string    `json:"product_name"`
	Quantity       float64   `json:"quantity"`
	Success        bool      `json:"success"`
	AlreadyCounted bool      `json:"already_counted"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// scanHistory は新しい順の固定上限リストです。呼び出し側 (Scanner) がロックを持ちます。
type scanHistory struct {
	entries []HistoryEntry
}

// push は先頭に追加し、上限を超えた分を末尾から捨てます。
func (h *scanHistory) push(entry HistoryEntry) {
	h.entries = append([]HistoryEntry{entry}, h.entries...)
	if len(h.entries) > historyLimit {
		h.entries = h.entries[:historyLimit]
	}
}

// snapshot は外部に渡しても安全なコピーを返します。
func (h *scanHistory) snapshot() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *scanHistory) clear() {
	h.entries = nil
}

func (h *scanHistory) len() int {
	return len(h.entries)
}
