package ratelimit

import "context"

// RateLimiter controls webhook delivery throughput per store.
type RateLimiter interface {
	Allow(ctx context.Context, storeID string) (bool, error)
	Wait(ctx context.Context, storeID string) error
}
