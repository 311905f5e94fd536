// README: Redis cache in front of a Calculator, keyed by rounded coordinates.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"twende/internal/types"
)

const distanceKeyPrefix = "geo:distance:"

type CachedCalculator struct {
	next  Calculator
	redis redis.Cmdable
	ttl   time.Duration
}

func NewCachedCalculator(next Calculator, rdb redis.Cmdable, ttl time.Duration) *CachedCalculator {
	return &CachedCalculator{next: next, redis: rdb, ttl: ttl}
}

// Distance serves from cache when possible. Redis failures degrade to a direct call.
func (c *CachedCalculator) Distance(ctx context.Context, origin, destination types.Point) (Distance, error) {
	key := distanceKey(origin, destination)
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var d Distance
		if json.Unmarshal(raw, &d) == nil {
			return d, nil
		}
	}

	d, err := c.next.Distance(ctx, origin, destination)
	if err != nil {
		return Distance{}, err
	}
	if raw, err := json.Marshal(d); err == nil {
		_ = c.redis.Set(ctx, key, raw, c.ttl).Err()
	}
	return d, nil
}

// distanceKey rounds to ~11m so jittery GPS samples share entries.
func distanceKey(a, b types.Point) string {
	return fmt.Sprintf("%s%.4f,%.4f:%.4f,%.4f", distanceKeyPrefix, a.Lat, a.Lng, b.Lat, b.Lng)
}
