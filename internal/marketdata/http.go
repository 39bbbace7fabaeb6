package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProvider fetches quotes and history from the quote API over plain
// JSON/REST. It is intentionally thin; swapping in another vendor means
// implementing Provider, not touching the engine.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the given quote API base URL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetQuote fetches the current quote for a symbol.
func (p *HTTPProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/v1/quote?symbol=%s", p.baseURL, url.QueryEscape(strings.ToUpper(symbol)))

	var quote Quote
	if err := p.getJSON(ctx, endpoint, &quote); err != nil {
		return nil, err
	}
	if quote.Symbol == "" {
		quote.Symbol = strings.ToUpper(symbol)
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}
	return &quote, nil
}

// GetHistory fetches OHLCV bars for a symbol over a period/interval pair
// (e.g. "6mo"/"1d"). Bars are returned oldest first.
func (p *HTTPProvider) GetHistory(ctx context.Context, symbol, period, interval string) ([]Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/history?symbol=%s&period=%s&interval=%s",
		p.baseURL, url.QueryEscape(strings.ToUpper(symbol)), url.QueryEscape(period), url.QueryEscape(interval))

	var bars []Bar
	if err := p.getJSON(ctx, endpoint, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call quote api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quote api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode quote api response: %w", err)
	}
	return nil
}
