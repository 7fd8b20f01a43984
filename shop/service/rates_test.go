package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

type stubRateSource struct {
	calls int32
	rate  decimal.Decimal
	err   error
	delay time.Duration
}

func (s *stubRateSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.rate, s.err
}

func TestRateCacheServesFreshValueWithoutRefetch(t *testing.T) {
	src := &stubRateSource{rate: decimal.RequireFromString("4200000")}
	cache := NewRateCache(src, time.Minute)

	first, err := cache.Rate(context.Background())
	require.NoError(t, err)
	second, err := cache.Rate(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestRateCacheRefreshesAfterTTL(t *testing.T) {
	src := &stubRateSource{rate: decimal.RequireFromString("4200000")}
	cache := NewRateCache(src, time.Minute)

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.Rate(context.Background())
	require.NoError(t, err)

	src.rate = decimal.RequireFromString("4300000")
	now = now.Add(2 * time.Minute)

	rate, err := cache.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4300000", rate.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestRateCacheNeverGuessesOnOracleFailure(t *testing.T) {
	src := &stubRateSource{err: errors.New("oracle down")}
	cache := NewRateCache(src, time.Minute)

	_, err := cache.Rate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateUnavailable))
	assert.True(t, errors.Is(err, domain.ErrTransient))

	_, err = cache.QuoteBTC(context.Background(), decimal.RequireFromString("1000"))
	assert.True(t, errors.Is(err, domain.ErrRateUnavailable))
}

func TestRateCacheRejectsNonPositiveRate(t *testing.T) {
	src := &stubRateSource{rate: decimal.Zero}
	cache := NewRateCache(src, time.Minute)

	_, err := cache.Rate(context.Background())
	assert.True(t, errors.Is(err, domain.ErrRateUnavailable))
}

func TestRateCacheCollapsesConcurrentRefreshes(t *testing.T) {
	src := &stubRateSource{
		rate:  decimal.RequireFromString("4200000"),
		delay: 20 * time.Millisecond,
	}
	cache := NewRateCache(src, time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Rate(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestRateCacheQuotes(t *testing.T) {
	src := &stubRateSource{rate: decimal.RequireFromString("5000000")}
	cache := NewRateCache(src, time.Minute)

	btc, err := cache.QuoteBTC(context.Background(), decimal.RequireFromString("2500"))
	require.NoError(t, err)
	assert.Equal(t, "0.0005", btc.String())

	rub, err := cache.ToRUB(context.Background(), decimal.RequireFromString("0.002"))
	require.NoError(t, err)
	assert.Equal(t, "10000", rub.String())
}
