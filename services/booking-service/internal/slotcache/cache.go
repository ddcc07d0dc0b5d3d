// Package slotcache keeps computed slot lists in Redis for a bounded TTL.
//
// Entries are keyed by a per-resource generation counter. Any mutation of the
// resource's commitments bumps the generation, which orphans older entries
// instead of deleting them; they age out through their TTL.
package slotcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// New returns a cache. A nil client or a non-positive ttl yields a cache that
// always computes.
func New(rdb *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *Cache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "slots"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

type entry struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	TZ    string    `json:"tz"`
}

// Slots returns the cached slots of q, or runs compute and stores its result.
// Redis failures fall through to compute. Slots starting before q.Now are
// dropped from cached results.
func (c *Cache) Slots(ctx context.Context, q availability.Query, compute func(context.Context) ([]interval.Interval, error)) ([]interval.Interval, error) {
	if !c.enabled() {
		return compute(ctx)
	}

	gen, err := c.rdb.Get(ctx, c.generationKey(q.TenantID, q.ResourceID)).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Warn("slot cache generation read failed", "err", err)
		return compute(ctx)
	}
	key := c.key(q, gen)

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		if slots, err := decode(raw); err == nil {
			return dropPast(slots, q.Now), nil
		}
		c.logger.Warn("slot cache entry unreadable", "key", key)
	} else if err != redis.Nil {
		c.logger.Warn("slot cache read failed", "err", err)
		return compute(ctx)
	}

	slots, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := encode(slots); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("slot cache write failed", "err", err)
		}
	}
	return slots, nil
}

// Invalidate orphans every cached entry of the resource.
func (c *Cache) Invalidate(ctx context.Context, tenantID, resourceID string) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Incr(ctx, c.generationKey(tenantID, resourceID)).Err(); err != nil {
		c.logger.Warn("slot cache invalidate failed", "err", err, "resource_id", resourceID)
	}
}

func (c *Cache) generationKey(tenantID, resourceID string) string {
	return c.prefix + ":gen:" + tenantID + ":" + resourceID
}

func (c *Cache) key(q availability.Query, gen int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%s:%s:%d:%d:%d:%d",
		c.prefix, q.TenantID, q.ResourceID, gen,
		q.From.Format("2006-01-02"), q.To.Format("2006-01-02"),
		int64(q.Service.Duration/time.Second),
		int64(q.Service.BufferBefore/time.Second),
		int64(q.Service.BufferAfter/time.Second),
		int64(q.Step/time.Second),
	)
}

func encode(slots []interval.Interval) ([]byte, error) {
	entries := make([]entry, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, entry{Start: s.Start, End: s.End, TZ: s.TZ()})
	}
	return json.Marshal(entries)
}

func decode(raw []byte) ([]interval.Interval, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make([]interval.Interval, 0, len(entries))
	for _, e := range entries {
		iv := interval.Interval{Start: e.Start, End: e.End}
		if loc, err := time.LoadLocation(e.TZ); err == nil {
			iv = iv.In(loc)
		}
		out = append(out, iv)
	}
	return out, nil
}

func dropPast(slots []interval.Interval, now time.Time) []interval.Interval {
	out := slots[:0]
	for _, s := range slots {
		if !s.Start.Before(now) {
			out = append(out, s)
		}
	}
	return out
}
