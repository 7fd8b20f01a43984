package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"

	"log/slog"
)

// PaymentGate verifies an out-of-band crypto payment against the ledger
// oracle. Verify is side-effect free and safely re-callable: the buyer polls
// it until the transfer appears or the purchase is abandoned.
type PaymentGate struct {
	src    TxSource
	window time.Duration
	now    func() time.Time
}

// DefaultPaymentWindow bounds how old a qualifying transaction may be.
const DefaultPaymentWindow = 2 * time.Hour

// NewPaymentGate builds the gate over a transaction source.
func NewPaymentGate(src TxSource, window time.Duration) *PaymentGate {
	if window <= 0 {
		window = DefaultPaymentWindow
	}
	return &PaymentGate{src: src, window: window, now: time.Now}
}

// Verify reports whether address received at least expected BTC in a single
// output after since and within the recency window. Transactions older than
// the window never count, regardless of since.
func (g *PaymentGate) Verify(ctx context.Context, address string, expected decimal.Decimal, since time.Time) (bool, error) {
	txs, err := g.src.RecentInbound(ctx, address)
	if err != nil {
		return false, err
	}

	cutoff := g.now().Add(-g.window)
	if since.After(cutoff) {
		cutoff = since
	}

	for _, tx := range txs {
		if tx.Time.Before(cutoff) {
			continue
		}
		if tx.Amount.GreaterThanOrEqual(expected) {
			logger.Info(ctx, "service.payment", "payment.matched",
				slog.String("status", "ok"),
				slog.String("amount_btc", tx.Amount.String()),
				slog.String("expected_btc", expected.String()),
			)
			return true, nil
		}
	}

	logger.Debug(ctx, "service.payment", "payment.pending",
		slog.String("status", "skip"),
		slog.String("expected_btc", expected.String()),
		slog.Int("count", len(txs)),
	)
	return false, nil
}
