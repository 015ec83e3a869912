package respcache

import "context"

// Cache stores the last successful GET response body per request key so that a
// later HTTP 304 for the same key can be resolved locally. The key is the
// request path plus its deterministically encoded query string.
//
// This is not a general invalidation-aware cache: entries are only ever
// replaced by a newer success for the same key, or evicted by the backend's
// own policy (LRU for in-memory, TTL for memcached).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
}
