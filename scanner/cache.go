package scanner

import (
	"context"
	"sync"

	"tanaoroshi/model"
)

// sessionCache はセッション・明細・サマリの読み取りキャッシュです。
// 計上が成功するたびに Scanner が明示的に invalidate します。
// グローバルなクエリキャッシュは持たず、1セッション分だけを保持します。
// 無効化は「次の読み取りで取り直す」方式なので、成功直後の読み取りが
// サーバー反映と競合しうる点は呼び出し側が許容する前提です (結果整合)。
type sessionCache struct {
	client  *Client
	countID int64

	mu      sync.Mutex
	session *model.CountSession
	items   []model.CountItem
	summary *model.CountSummary
}

func newSessionCache(client *Client, countID int64) *sessionCache {
	return &sessionCache{client: client, countID: countID}
}

func (c *sessionCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.items = nil
	c.summary = nil
}

func (c *sessionCache) getSession(ctx context.Context) (*model.CountSession, error) {
	c.mu.Lock()
	if c.session != nil {
		cached := *c.session
		c.mu.Unlock()
		return &cached, nil
	}
	c.mu.Unlock()

	session, err := c.client.GetSession(ctx, c.countID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return session, nil
}

func (c *sessionCache) getItems(ctx context.Context) ([]model.CountItem, error) {
	c.mu.Lock()
	if c.items != nil {
		cached := make([]model.CountItem, len(c.items))
		copy(cached, c.items)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	items, err := c.client.GetItems(ctx, c.countID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return items, nil
}

func (c *sessionCache) getSummary(ctx context.Context) (*model.CountSummary, error) {
	c.mu.Lock()
	if c.summary != nil {
		cached := *c.summary
		c.mu.Unlock()
		return &cached, nil
	}
	c.mu.Unlock()

	summary, err := c.client.GetSummary(ctx, c.countID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.summary = summary
	c.mu.Unlock()
	return summary, nil
}
