package similarity

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/erazemk/najdeno/internal/match"
	"github.com/erazemk/najdeno/internal/model"
)

// Cached memoizes successful scores per unordered item pair. Failures are
// not cached.
type Cached struct {
	next  match.Provider
	cache *gocache.Cache
}

func NewCached(next match.Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Score(ctx context.Context, a, b model.Item) (float64, error) {
	key := pairKey(a, b)
	if v, ok := c.cache.Get(key); ok {
		return v.(float64), nil
	}

	score, err := c.next.Score(ctx, a, b)
	if err != nil {
		return 0, err
	}
	c.cache.SetDefault(key, score)
	return score, nil
}

// pairKey is the same for (a, b) and (b, a). Image counts are part of the
// key so a new upload invalidates earlier scores.
func pairKey(a, b model.Item) string {
	if a.ID > b.ID {
		a, b = b, a
	}
	return fmt.Sprintf("%d/%d:%d/%d", a.ID, a.ImageCount, b.ID, b.ImageCount)
}

// Limited throttles calls to a provider with a token bucket. A non-positive
// rate disables throttling.
type Limited struct {
	next    match.Provider
	limiter *rate.Limiter
}

func NewLimited(next match.Provider, perSecond float64, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Score(ctx context.Context, a, b model.Item) (float64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("waiting for rate limit: %w", err)
	}
	return l.next.Score(ctx, a, b)
}
