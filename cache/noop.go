package cache

import (
	"context"
	"fmt"
	"time"
)

var ErrCacheMiss = fmt.Errorf("cache miss")

// NoopCache is the fallback when no cache backend is configured.
// Writes are dropped, reads always miss.
type NoopCache struct{}

func NewNoopCache() NoopCache { return NoopCache{} }

func (NoopCache) Get(_ context.Context, _ string) (string, error) {
	return "", ErrCacheMiss
}

func (NoopCache) SetWithTTL(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopCache) Delete(_ context.Context, _ string) error {
	return nil
}
