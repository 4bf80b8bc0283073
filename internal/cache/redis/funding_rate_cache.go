package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// FundingRateCache implements domain.FundingRateCache using Redis hashes.
// Each pair's rate lives at key "funding_rate:{market}:{pair}" with fields
// "rate" and "ts" (Unix nanosecond timestamp).
type FundingRateCache struct {
	rdb *Client
	ttl time.Duration
}

// NewFundingRateCache creates a FundingRateCache. A positive ttl expires
// stale rates so the controller never ranks candidates on dead data.
func NewFundingRateCache(c *Client, ttl time.Duration) *FundingRateCache {
	return &FundingRateCache{rdb: c, ttl: ttl}
}

func rateKey(pair domain.ConnectorPair) string {
	return "funding_rate:" + pair.Market + ":" + pair.Pair
}

// SetRate stores the latest per-interval funding rate for a pair.
func (fc *FundingRateCache) SetRate(ctx context.Context, pair domain.ConnectorPair, rate decimal.Decimal, ts time.Time) error {
	key := rateKey(pair)
	rdb := fc.rdb.Underlying()
	fields := map[string]interface{}{
		"rate": rate.String(),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set funding rate %s: %w", pair, err)
	}
	if fc.ttl > 0 {
		if err := rdb.Expire(ctx, key, fc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire funding rate %s: %w", pair, err)
		}
	}
	return nil
}

// Rate retrieves the latest funding rate and its timestamp for a pair.
// It returns domain.ErrNotFound when no rate has been published.
func (fc *FundingRateCache) Rate(ctx context.Context, pair domain.ConnectorPair) (decimal.Decimal, time.Time, error) {
	vals, err := fc.rdb.Underlying().HGetAll(ctx, rateKey(pair)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get funding rate %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse funding rate %s: %w", pair, err)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse funding rate ts %s: %w", pair, err)
	}
	return rate, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.FundingRateCache = (*FundingRateCache)(nil)
