package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// EntityReader is the read side of the places and events tables.
type EntityReader interface {
	GetEventByID(ctx context.Context, id uint64) (*model.Event, error)
	GetPlaceByID(ctx context.Context, id uint64) (*model.Place, error)
}

// CachedEntities is a Redis read-through cache in front of an
// EntityReader.  Concurrent misses for the same key share one database
// read.  With a nil client, or when Redis fails, reads go straight to the
// underlying reader.  Missing entities are not cached.
//
// Only pricing and capacity inputs pass through here; availability is
// always counted from the reservations table.
type CachedEntities struct {
	next   EntityReader
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// NewCachedEntities wraps next.  A non-positive ttl defaults to one minute.
func NewCachedEntities(next EntityReader, rdb *redis.Client, ttl time.Duration) *CachedEntities {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedEntities{next: next, rdb: rdb, ttl: ttl, prefix: "entity"}
}

// GetEventByID implements EntityReader.
func (c *CachedEntities) GetEventByID(ctx context.Context, id uint64) (*model.Event, error) {
	var ev model.Event
	err := c.load(ctx, c.key(model.KindEvent, id), &ev, func() (any, error) {
		return c.next.GetEventByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetPlaceByID implements EntityReader.
func (c *CachedEntities) GetPlaceByID(ctx context.Context, id uint64) (*model.Place, error) {
	var p model.Place
	err := c.load(ctx, c.key(model.KindPlace, id), &p, func() (any, error) {
		return c.next.GetPlaceByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Invalidate drops the cached copy of an entity.
func (c *CachedEntities) Invalidate(ctx context.Context, t model.BookingTarget) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(t.Kind, t.ID)).Err()
}

func (c *CachedEntities) key(kind model.TargetKind, id uint64) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, kind, id)
}

// load fills dst from Redis, or from fetch on a miss, storing the fetched
// value for the next reader.
func (c *CachedEntities) load(ctx context.Context, key string, dst any, fetch func() (any, error)) error {
	if c.rdb != nil {
		if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			if json.Unmarshal(b, dst) == nil {
				return nil
			}
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if c.rdb != nil {
			_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
		}
		return b, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dst)
}
