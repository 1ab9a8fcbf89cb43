package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"
)

// CacheConfig sizes the extraction cache.
type CacheConfig struct {
	MaxCost int64
	TTL     time.Duration
}

const (
	defaultCacheMaxCost = 16 << 20
	defaultCacheTTL     = time.Hour
)

// CachedExtractor memoises extractions of identical emails.
type CachedExtractor struct {
	next  Extractor
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// WithCache wraps next with an in-memory cache. A nil next is returned unchanged.
func WithCache(next Extractor, cfg CacheConfig) (Extractor, error) {
	if next == nil {
		return nil, nil
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultCacheMaxCost
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	numCounters := cfg.MaxCost / 100 * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create extraction cache: %w", err)
	}
	return &CachedExtractor{next: next, cache: cache, ttl: cfg.TTL}, nil
}

func (c *CachedExtractor) Enabled() bool {
	return c != nil && c.next != nil && c.next.Enabled()
}

func (c *CachedExtractor) Extract(ctx context.Context, req Request) (Extraction, error) {
	key := cacheKey(req)
	if raw, ok := c.cache.Get(key); ok {
		var extraction Extraction
		if err := json.Unmarshal(raw, &extraction); err == nil {
			extraction.Cached = true
			return extraction, nil
		}
		c.cache.Del(key)
	}

	extraction, err := c.next.Extract(ctx, req)
	if err != nil {
		return Extraction{}, err
	}
	raw, err := json.Marshal(extraction)
	if err != nil {
		logrus.WithError(err).Warn("extraction not cacheable")
		return extraction, nil
	}
	c.cache.SetWithTTL(key, raw, int64(len(raw)), c.ttl)
	c.cache.Wait()
	return extraction, nil
}

// Close releases the cache's background goroutines.
func (c *CachedExtractor) Close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}

func cacheKey(req Request) string {
	sum := sha256.New()
	sum.Write([]byte(strings.TrimSpace(req.Sender)))
	sum.Write([]byte{0})
	sum.Write([]byte(strings.TrimSpace(req.Email)))
	return hex.EncodeToString(sum.Sum(nil))
}
