package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tanaoroshi/model"
)

// ExternalClient はオープンカタログ (Open Food Facts互換API) への問い合わせクライアントです。
type ExternalClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewExternalClient(baseURL string) *ExternalClient {
	return &ExternalClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// offProductResponse は /api/v0/product/{barcode}.json のレスポンスです
type offProductResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Categories  string `json:"categories"`
		Quantity    string `json:"quantity"`
		ImageURL    string `json:"image_url"`
	} `json:"product"`
}

// FetchProduct はバーコードで外部カタログを検索します。
// 見つからない場合は (nil, nil) を返します。
func (c *ExternalClient) FetchProduct(ctx context.Context, code string) (*model.ProductSuggestion, error) {
	url := fmt.Sprintf("%s/api/v0/product/%s.json", c.BaseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build external catalog request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("external catalog request failed for %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("external catalog returned status %d for %s", resp.StatusCode, code)
	}

	var body offProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode external catalog response for %s: %w", code, err)
	}

	// status 0 は「コードは妥当だが未登録」
	if body.Status != 1 || body.Product.ProductName == "" {
		return nil, nil
	}

	return &model.ProductSuggestion{
		Barcode:     code,
		ProductName: body.Product.ProductName,
		MakerName:   body.Product.Brands,
		Category:    firstSegment(body.Product.Categories),
		UnitName:    body.Product.Quantity,
		ImageURL:    body.Product.ImageURL,
	}, nil
}

// firstSegment はカンマ区切りのカテゴリ一覧から先頭だけを取り出します。
func firstSegment(s string) string {
	if idx := strings.Index(s, ","); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
