package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"archwatch/internal/domain"
	"archwatch/internal/ports"
)

// Cached decorates a SeenStore with an LRU of identifiers already known
// to be seen. Only positive answers are cached: a "seen" row never goes
// back to "new", so the cache cannot serve a stale answer, while "new"
// must always hit the store.
type Cached struct {
	inner ports.SeenStore
	seen  *lru.Cache[string, struct{}]
}

var _ ports.SeenStore = (*Cached)(nil)

// NewCached wraps inner with a cache of the given size.
func NewCached(inner ports.SeenStore, size int) (*Cached, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, seen: cache}, nil
}

func cacheKey(sourceID, identifier string) string {
	return sourceID + "\x00" + identifier
}

// IsNew answers from cache when the identifier is known seen.
func (c *Cached) IsNew(ctx context.Context, sourceID, identifier string) (bool, error) {
	if _, ok := c.seen.Get(cacheKey(sourceID, identifier)); ok {
		return false, nil
	}
	isNew, err := c.inner.IsNew(ctx, sourceID, identifier)
	if err == nil && !isNew {
		c.seen.Add(cacheKey(sourceID, identifier), struct{}{})
	}
	return isNew, err
}

// FilterNew short-circuits cached identifiers before one batched lookup.
func (c *Cached) FilterNew(ctx context.Context, sourceID string, identifiers []string) ([]string, error) {
	unknown := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if _, ok := c.seen.Get(cacheKey(sourceID, id)); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		return nil, nil
	}

	fresh, err := c.inner.FilterNew(ctx, sourceID, unknown)
	if err != nil {
		return nil, err
	}

	freshSet := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		freshSet[id] = struct{}{}
	}
	for _, id := range unknown {
		if _, ok := freshSet[id]; !ok {
			c.seen.Add(cacheKey(sourceID, id), struct{}{})
		}
	}
	return fresh, nil
}

// MarkSeen records identifiers in the cache after the store accepts them.
func (c *Cached) MarkSeen(ctx context.Context, sourceID string, records []domain.SeenRecord) (int, error) {
	marked, err := c.inner.MarkSeen(ctx, sourceID, records)
	if err == nil {
		for _, rec := range records {
			if rec.Identifier != "" {
				c.seen.Add(cacheKey(sourceID, rec.Identifier), struct{}{})
			}
		}
	}
	return marked, err
}

// RewriteIdentifier keeps both keys marked seen.
func (c *Cached) RewriteIdentifier(ctx context.Context, sourceID, oldID, newID string) error {
	err := c.inner.RewriteIdentifier(ctx, sourceID, oldID, newID)
	if err == nil {
		c.seen.Add(cacheKey(sourceID, oldID), struct{}{})
		c.seen.Add(cacheKey(sourceID, newID), struct{}{})
	}
	return err
}

// Stats passes through.
func (c *Cached) Stats(ctx context.Context, sourceID string) (domain.SeenStats, error) {
	return c.inner.Stats(ctx, sourceID)
}

// Clear purges the cache along with the store.
func (c *Cached) Clear(ctx context.Context, sourceID string) (int64, error) {
	n, err := c.inner.Clear(ctx, sourceID)
	c.seen.Purge()
	return n, err
}

// Close closes the wrapped store.
func (c *Cached) Close() {
	c.inner.Close()
}
