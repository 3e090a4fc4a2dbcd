package ontology

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedLabeler memoizes labels, including misses, in an LRU.
type CachedLabeler struct {
	next  Labeler
	cache *lru.Cache[string, string]
}

// NewCachedLabeler wraps next with an LRU of the given size.
func NewCachedLabeler(next Labeler, size int) (*CachedLabeler, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create label cache: %w", err)
	}
	return &CachedLabeler{next: next, cache: c}, nil
}

// Label implements Labeler.
func (c *CachedLabeler) Label(ctx context.Context, id string) (string, error) {
	if label, ok := c.cache.Get(id); ok {
		if label == "" {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return label, nil
	}

	label, err := c.next.Label(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.cache.Add(id, "")
		}
		return "", err
	}
	c.cache.Add(id, label)
	return label, nil
}

// Len returns the number of cached ids.
func (c *CachedLabeler) Len() int {
	return c.cache.Len()
}
