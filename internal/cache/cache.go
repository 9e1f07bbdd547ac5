// Package cache holds computed revenue and dashboard statistics between
// writes. Any committed change to sales or returns invalidates it.
package cache

import (
	"context"
	"time"
)

type StatsCache interface {
	// Get decodes the cached value for key into dst and reports whether it
	// was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate drops every cached statistic.
	Invalidate(ctx context.Context) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context, string, any) (bool, error) {
	return false, nil
}

func (NoopStatsCache) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(context.Context) error {
	return nil
}
