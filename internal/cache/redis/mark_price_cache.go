package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// MarkPriceCache implements domain.MarkPriceCache using Redis hashes.
// Each pair's price lives at key "mark_price:{market}:{pair}" with fields
// "price" and "ts" (Unix nanosecond timestamp).
type MarkPriceCache struct {
	rdb *Client
	ttl time.Duration
}

// NewMarkPriceCache creates a MarkPriceCache with the given staleness TTL.
func NewMarkPriceCache(c *Client, ttl time.Duration) *MarkPriceCache {
	return &MarkPriceCache{rdb: c, ttl: ttl}
}

func markKey(pair domain.ConnectorPair) string {
	return "mark_price:" + pair.Market + ":" + pair.Pair
}

// SetPrice stores the latest mark price for a pair.
func (mc *MarkPriceCache) SetPrice(ctx context.Context, pair domain.ConnectorPair, price decimal.Decimal, ts time.Time) error {
	key := markKey(pair)
	rdb := mc.rdb.Underlying()
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set mark price %s: %w", pair, err)
	}
	if mc.ttl > 0 {
		if err := rdb.Expire(ctx, key, mc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire mark price %s: %w", pair, err)
		}
	}
	return nil
}

// Price retrieves the latest mark price and its timestamp for a pair.
// It returns domain.ErrNotFound when no price has been published.
func (mc *MarkPriceCache) Price(ctx context.Context, pair domain.ConnectorPair) (decimal.Decimal, time.Time, error) {
	vals, err := mc.rdb.Underlying().HGetAll(ctx, markKey(pair)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get mark price %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse mark price %s: %w", pair, err)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse mark price ts %s: %w", pair, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.MarkPriceCache = (*MarkPriceCache)(nil)
