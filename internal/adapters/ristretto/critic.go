// Package ristretto memoises roasts in an in-process dgraph-io/ristretto cache.
package ristretto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"roastbot/internal/core/domain"
	"roastbot/internal/core/ports"
)

// CachingCritic wraps a ports.Critic so identical page summaries rendered in
// the same style are only sent to the model once per TTL.
type CachingCritic struct {
	next ports.Critic
	c    *ristretto.Cache[string, string]
	ttl  time.Duration
}

// NewCachingCritic creates a cache holding at most maxCostBytes of roast text.
func NewCachingCritic(next ports.Critic, maxCostBytes int64, ttl time.Duration) (*CachingCritic, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachingCritic{next: next, c: c, ttl: ttl}, nil
}

// Critique returns a cached roast when one exists, otherwise delegates.
// Errors are never cached.
func (cc *CachingCritic) Critique(ctx context.Context, summary domain.PageSummary, style domain.Style, maxSteps int) (string, error) {
	key, err := cacheKey(summary, style)
	if err != nil {
		return cc.next.Critique(ctx, summary, style, maxSteps)
	}
	if roast, ok := cc.c.Get(key); ok {
		return roast, nil
	}
	roast, err := cc.next.Critique(ctx, summary, style, maxSteps)
	if err != nil {
		return "", err
	}
	cc.c.SetWithTTL(key, roast, int64(len(roast)), cc.ttl)
	cc.c.Wait()
	return roast, nil
}

// Close shuts down the cache and releases resources.
func (cc *CachingCritic) Close() {
	cc.c.Close()
}

func cacheKey(summary domain.PageSummary, style domain.Style) (string, error) {
	b, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return string(style) + ":" + hex.EncodeToString(sum[:]), nil
}
