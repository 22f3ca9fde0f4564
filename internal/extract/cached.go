package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/Veraticus/billfinder/internal/cache"
	"github.com/Veraticus/billfinder/internal/service"
)

// cachedResult distinguishes "not a bill" from a cache miss.
type cachedResult struct {
	Extraction *service.Extraction `json:"extraction,omitempty"`
	Found      bool                `json:"found"`
}

// CachedStrategy memoizes another strategy's results. Cache failures are
// logged and fall through to the wrapped strategy; strategy errors are never
// cached.
type CachedStrategy struct {
	next   service.BillExtractor
	store  cache.Store
	logger *slog.Logger
}

var _ service.BillExtractor = (*CachedStrategy)(nil)

// NewCachedStrategy wraps next with store.
func NewCachedStrategy(next service.BillExtractor, store cache.Store) *CachedStrategy {
	return &CachedStrategy{
		next:   next,
		store:  store,
		logger: slog.Default().With("component", "extract_cache"),
	}
}

// Extract implements service.BillExtractor.
func (c *CachedStrategy) Extract(ctx context.Context, subject, sender, body string) (*service.Extraction, error) {
	key := CacheKey(subject, sender, body)

	data, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("cache lookup failed", "error", err)
	case ok:
		var cached cachedResult
		if err := json.Unmarshal(data, &cached); err == nil {
			if !cached.Found {
				return nil, nil //nolint:nilnil // Cached "not a bill"
			}
			return cached.Extraction, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	}

	ext, err := c.next.Extract(ctx, subject, sender, body)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(cachedResult{Extraction: ext, Found: ext != nil})
	if err == nil {
		if err := c.store.Set(ctx, key, encoded); err != nil {
			c.logger.Warn("cache store failed", "error", err)
		}
	}
	return ext, nil
}

// CacheKey hashes the inputs of one extraction.
func CacheKey(subject, sender, body string) string {
	h := sha256.New()
	for _, part := range []string{subject, sender, body} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "extract:" + hex.EncodeToString(h.Sum(nil))
}
