package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

type stubTxSource struct {
	txs []InboundTx
	err error
}

func (s *stubTxSource) RecentInbound(ctx context.Context, address string) ([]InboundTx, error) {
	return s.txs, s.err
}

func TestPaymentGateMatchesSingleSufficientTransfer(t *testing.T) {
	now := time.Now()
	gate := NewPaymentGate(&stubTxSource{txs: []InboundTx{
		{Amount: decimal.RequireFromString("0.0005"), Time: now.Add(-10 * time.Minute)},
		{Amount: decimal.RequireFromString("0.002"), Time: now.Add(-5 * time.Minute)},
	}}, 2*time.Hour)

	paid, err := gate.Verify(context.Background(), "addr",
		decimal.RequireFromString("0.002"), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestPaymentGateIgnoresSumOfSmallTransfers(t *testing.T) {
	// Two partial payments never satisfy the invoice; a single output must
	// cover the full amount.
	now := time.Now()
	gate := NewPaymentGate(&stubTxSource{txs: []InboundTx{
		{Amount: decimal.RequireFromString("0.001"), Time: now.Add(-5 * time.Minute)},
		{Amount: decimal.RequireFromString("0.0015"), Time: now.Add(-4 * time.Minute)},
	}}, 2*time.Hour)

	paid, err := gate.Verify(context.Background(), "addr",
		decimal.RequireFromString("0.002"), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestPaymentGateRejectsTransfersOlderThanWindow(t *testing.T) {
	now := time.Now()
	gate := NewPaymentGate(&stubTxSource{txs: []InboundTx{
		{Amount: decimal.RequireFromString("0.01"), Time: now.Add(-3 * time.Hour)},
	}}, 2*time.Hour)

	paid, err := gate.Verify(context.Background(), "addr",
		decimal.RequireFromString("0.002"), now.Add(-4*time.Hour))
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestPaymentGateRejectsTransfersBeforeInvoice(t *testing.T) {
	// A payment that predates the checkout cannot satisfy it, even inside the
	// recency window.
	now := time.Now()
	gate := NewPaymentGate(&stubTxSource{txs: []InboundTx{
		{Amount: decimal.RequireFromString("0.01"), Time: now.Add(-30 * time.Minute)},
	}}, 2*time.Hour)

	paid, err := gate.Verify(context.Background(), "addr",
		decimal.RequireFromString("0.002"), now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestPaymentGatePropagatesSourceErrors(t *testing.T) {
	gate := NewPaymentGate(&stubTxSource{
		err: domain.Transient("oracle call", errors.New("timeout")),
	}, 2*time.Hour)

	_, err := gate.Verify(context.Background(), "addr",
		decimal.RequireFromString("0.002"), time.Now().Add(-time.Hour))
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestPaymentGateVerifyIsRepeatable(t *testing.T) {
	now := time.Now()
	src := &stubTxSource{txs: []InboundTx{
		{Amount: decimal.RequireFromString("0.002"), Time: now.Add(-5 * time.Minute)},
	}}
	gate := NewPaymentGate(src, 2*time.Hour)

	for i := 0; i < 3; i++ {
		paid, err := gate.Verify(context.Background(), "addr",
			decimal.RequireFromString("0.002"), now.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, paid)
	}
}
