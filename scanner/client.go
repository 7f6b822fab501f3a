package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tanaoroshi/model"
)

// Client は棚卸サーバーAPIのHTTPクライアントです。
// エラーレスポンスは構造化コード付きの *model.APIError として返します。
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ScanRequest は POST /api/counts/{id}/scan のボディです
type ScanRequest struct {
	Barcode   string  `json:"barcode"`
	LotID     string  `json:"lot_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
	CountedBy string  `json:"counted_by,omitempty"`
}

// RegisterRequest は POST /api/counts/{id}/items のボディです
type RegisterRequest struct {
	ProductID string  `json:"product_id"`
	LotID     string  `json:"lot_id,omitempty"`
	Quantity  float64 `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
	CountedBy string  `json:"counted_by,omitempty"`
}

// UpdateRequest は PUT /api/counts/{id}/items/{itemId} のボディです
type UpdateRequest struct {
	Quantity float64 `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

func (c *Client) Scan(ctx context.Context, countID int64, req ScanRequest) (*model.ScanResponse, error) {
	var resp model.ScanResponse
	url := fmt.Sprintf("%s/api/counts/%d/scan", c.BaseURL, countID)
	if err := c.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RegisterItem(ctx context.Context, countID int64, req RegisterRequest) (*model.CountItem, error) {
	var item model.CountItem
	url := fmt.Sprintf("%s/api/counts/%d/items", c.BaseURL, countID)
	if err := c.doJSON(ctx, http.MethodPost, url, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UpdateItem(ctx context.Context, countID, itemID int64, req UpdateRequest) (*model.CountItem, error) {
	var item model.CountItem
	url := fmt.Sprintf("%s/api/counts/%d/items/%d", c.BaseURL, countID, itemID)
	if err := c.doJSON(ctx, http.MethodPut, url, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) GetSession(ctx context.Context, countID int64) (*model.CountSession, error) {
	var session model.CountSession
	url := fmt.Sprintf("%s/api/counts/%d", c.BaseURL, countID)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetItems(ctx context.Context, countID int64) ([]model.CountItem, error) {
	items := []model.CountItem{}
	url := fmt.Sprintf("%s/api/counts/%d/items", c.BaseURL, countID)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) GetSummary(ctx context.Context, countID int64) (*model.CountSummary, error) {
	var summary model.CountSummary
	url := fmt.Sprintf("%s/api/counts/%d/summary", c.BaseURL, countID)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Resolve はバーコード解決APIを呼びます。どこにも無い場合は Success=false の結果を返します
// (HTTP 404でもエラーにはしません)。
func (c *Client) Resolve(ctx context.Context, code string) (*model.ResolveResult, error) {
	url := fmt.Sprintf("%s/api/products/resolve/%s", c.BaseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolve request: %w", err)
	}

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("resolve returned status %d", httpResp.StatusCode)
	}

	var result model.ResolveResult
	if err := json.NewDecoder(httpResp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode resolve response: %w", err)
	}
	return &result, nil
}

// doJSON はJSONリクエストを投げ、2xx以外は構造化エラーとして分類します。
func (c *Client) doJSON(ctx context.Context, method, url string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

		var envelope model.APIErrorResponse
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
			e := envelope.Error
			return &e
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
