package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Compile-time interface checks.
var (
	_ Provider = (*HTTPProvider)(nil)
	_ Provider = (*CachedProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)

// StaticProvider serves quotes and history from in-memory maps. It backs
// unit tests and offline simulation runs.
type StaticProvider struct {
	mu      sync.Mutex
	quotes  map[string]Quote
	history map[string][]Bar

	// QuoteCalls counts GetQuote invocations per symbol, for tests that
	// assert caching/memoization behavior.
	QuoteCalls   map[string]int
	HistoryCalls map[string]int
}

// NewStaticProvider creates an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		quotes:       make(map[string]Quote),
		history:      make(map[string][]Bar),
		QuoteCalls:   make(map[string]int),
		HistoryCalls: make(map[string]int),
	}
}

// SetQuote installs the quote returned for a symbol.
func (p *StaticProvider) SetQuote(symbol string, quote Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	quote.Symbol = strings.ToUpper(symbol)
	p.quotes[quote.Symbol] = quote
}

// SetHistory installs the bars returned for a symbol.
func (p *StaticProvider) SetHistory(symbol string, bars []Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[strings.ToUpper(symbol)] = bars
}

// GetQuote returns the installed quote or an error when none exists.
func (p *StaticProvider) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToUpper(symbol)
	p.QuoteCalls[key]++
	quote, ok := p.quotes[key]
	if !ok {
		return nil, fmt.Errorf("no quote data for %s", key)
	}
	q := quote
	return &q, nil
}

// GetHistory returns the installed bars or an error when none exist.
func (p *StaticProvider) GetHistory(_ context.Context, symbol, _, _ string) ([]Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToUpper(symbol)
	p.HistoryCalls[key]++
	bars, ok := p.history[key]
	if !ok {
		return nil, fmt.Errorf("no history data for %s", key)
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}
