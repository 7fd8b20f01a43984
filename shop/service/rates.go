package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"

	"log/slog"
)

// RateSource supplies the current BTC exchange rate from an external oracle.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// RateCache keeps one process-wide (rate, timestamp) pair and refreshes it
// through the oracle when the freshness window expires. Concurrent callers
// hitting an expired cache collapse into a single refresh; stale-but-not-
// expired reads never block.
type RateCache struct {
	src RateSource
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time

	flight singleflight.Group
}

// DefaultRateTTL is the freshness window used when config leaves it unset.
const DefaultRateTTL = 5 * time.Minute

// NewRateCache builds a cache over src with the given freshness window.
func NewRateCache(src RateSource, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &RateCache{src: src, ttl: ttl, now: time.Now}
}

// Rate returns the cached exchange rate, refreshing it when expired. On
// oracle failure the "rate unavailable" condition propagates; the cache never
// guesses a value.
func (c *RateCache) Rate(ctx context.Context) (decimal.Decimal, error) {
	if rate, ok := c.cached(); ok {
		return rate, nil
	}

	v, err, _ := c.flight.Do("rate", func() (interface{}, error) {
		// A concurrent caller may have refreshed while this one queued.
		if rate, ok := c.cached(); ok {
			return rate, nil
		}
		start := c.now()
		rate, err := c.src.Rate(ctx)
		if err != nil {
			logger.Warn(ctx, "service.rates", "rate.refresh",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return decimal.Decimal{}, domain.ErrRateUnavailable
		}
		if !rate.IsPositive() {
			return decimal.Decimal{}, domain.ErrRateUnavailable
		}
		c.mu.Lock()
		c.rate = rate
		c.fetchedAt = c.now()
		c.mu.Unlock()
		logger.Debug(ctx, "service.rates", "rate.refresh",
			slog.String("status", "ok"),
			slog.String("cache", "refresh"),
			slog.String("rate", rate.String()),
			slog.Duration("duration", logger.Took(start)),
		)
		return rate, nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.(decimal.Decimal), nil
}

// QuoteBTC converts a fiat amount to BTC at the cached rate.
func (c *RateCache) QuoteBTC(ctx context.Context, rub decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rub.Div(rate).Round(8), nil
}

// ToRUB converts a BTC amount to fiat at the cached rate.
func (c *RateCache) ToRUB(ctx context.Context, btc decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return btc.Mul(rate).Round(2), nil
}

func (c *RateCache) cached() (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) >= c.ttl {
		return decimal.Decimal{}, false
	}
	return c.rate, true
}
