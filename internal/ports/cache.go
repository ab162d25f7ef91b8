package ports

import (
	"context"
	"time"
)

// Cache is a best-effort key-value store for read-side status lookups. It is
// never the source of truth for workflow state.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ListPrefix(ctx context.Context, prefix string, limit int) (map[string]string, error)
}
