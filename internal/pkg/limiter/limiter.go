// Package limiter applies fixed-window rate limits through redis_rate.
package limiter

import (
	"context"
	"errors"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limited")

type Limiter struct {
	limiter *redis_rate.Limiter
}

func NewLimiter(client redis.UniversalClient) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("limiter: nil redis client")
	}
	return &Limiter{limiter: redis_rate.NewLimiter(client)}, nil
}

func (l *Limiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	res, err := l.limiter.Allow(ctx, key, limit)
	if err != nil {
		return err
	}
	if res.Allowed == 0 {
		return ErrRateLimited
	}
	return nil
}

// Unlimited admits everything. Used when no Redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, redis_rate.Limit) error {
	return nil
}
