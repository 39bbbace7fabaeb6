package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProvider is a read-through Redis cache in front of another Provider.
// Quotes are cached with a short TTL so a single scheduler pass over many
// orders on the same symbol hits the upstream API once. History is not
// cached here; the indicator service memoizes it per pass.
type CachedProvider struct {
	upstream Provider
	client   *redis.Client
	ttl      time.Duration
}

// NewCachedProvider wraps upstream with a Redis quote cache.
func NewCachedProvider(upstream Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		client:   client,
		ttl:      ttl,
	}
}

// GetQuote returns a cached quote when fresh, otherwise fetches from the
// upstream provider and caches the result. Cache errors are logged and
// treated as misses; they never fail the fetch.
func (p *CachedProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	key := quoteKey(symbol)

	if data, err := p.client.Get(ctx, key).Bytes(); err == nil {
		var quote Quote
		if err := json.Unmarshal(data, &quote); err == nil {
			return &quote, nil
		}
	} else if err != redis.Nil {
		log.Printf("quote cache read failed for %s: %v", symbol, err)
	}

	quote, err := p.upstream.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(quote); err == nil {
		if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
			log.Printf("quote cache write failed for %s: %v", symbol, err)
		}
	}
	return quote, nil
}

// GetHistory delegates to the upstream provider.
func (p *CachedProvider) GetHistory(ctx context.Context, symbol, period, interval string) ([]Bar, error) {
	return p.upstream.GetHistory(ctx, symbol, period, interval)
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("quote:%s", strings.ToUpper(symbol))
}
