package cache

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Generation is a counter folded into response cache keys.  Bumping it
// makes every previously cached response unreachable at once, which is
// how writes invalidate cached reads.
type Generation struct {
	rdb *redis.Client
	key string
}

// NewGeneration returns a counter stored under key.
func NewGeneration(rdb *redis.Client, key string) *Generation {
	return &Generation{rdb: rdb, key: key}
}

// Current returns the counter value, "0" when unset.
func (g *Generation) Current(ctx context.Context) (string, error) {
	if g == nil || g.rdb == nil {
		return "0", nil
	}
	v, err := g.rdb.Get(ctx, g.key).Int64()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Bump advances the counter.
func (g *Generation) Bump(ctx context.Context) error {
	if g == nil || g.rdb == nil {
		return nil
	}
	return g.rdb.Incr(ctx, g.key).Err()
}
