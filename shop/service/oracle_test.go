package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

func TestOracleRateParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ticker", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"USD": {"last": 60000.12},
			"RUB": {"last": 5421034.55}
		}`))
	}))
	defer srv.Close()

	oracle := NewBlockchainOracle(srv.Client(), srv.URL)
	rate, err := oracle.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5421034.55", rate.String())
}

func TestOracleRateMissingCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"USD": {"last": 60000}}`))
	}))
	defer srv.Close()

	oracle := NewBlockchainOracle(srv.Client(), srv.URL)
	_, err := oracle.Rate(context.Background())
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestOracleRecentInboundConvertsSatoshi(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rawaddr/1ShopAddr", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"txs": [
				{
					"time": 1700000000,
					"out": [
						{"addr": "1ShopAddr", "value": 200000},
						{"addr": "1ChangeAddr", "value": 999999}
					]
				},
				{
					"time": 1700000100,
					"out": [
						{"addr": "1ShopAddr", "value": 50000}
					]
				}
			]
		}`))
	}))
	defer srv.Close()

	oracle := NewBlockchainOracle(srv.Client(), srv.URL)
	txs, err := oracle.RecentInbound(context.Background(), "1ShopAddr")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "0.002", txs[0].Amount.String())
	assert.Equal(t, time.Unix(1700000000, 0), txs[0].Time)
	assert.Equal(t, "0.0005", txs[1].Amount.String())
}

func TestOracleHTTPErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	oracle := NewBlockchainOracle(srv.Client(), srv.URL)
	_, err := oracle.Rate(context.Background())
	assert.True(t, errors.Is(err, domain.ErrTransient))

	_, err = oracle.RecentInbound(context.Background(), "addr")
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestOracleRespectsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	oracle := NewBlockchainOracle(srv.Client(), srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := oracle.Rate(ctx)
	assert.True(t, errors.Is(err, domain.ErrTransient))
}
