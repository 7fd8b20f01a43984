package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/service"
)

// PaymentVerifier checks whether the expected transfer reached the address.
type PaymentVerifier interface {
	Verify(ctx context.Context, address string, expected decimal.Decimal, since time.Time) (bool, error)
}

// Settler commits the claimed units into an order.
type Settler interface {
	Settle(ctx context.Context, req service.SettleRequest) (*domain.Order, error)
}

// Checkout holds the buyer at awaiting-payment: each "I paid" poll re-checks
// the ledger and, once the transfer shows up, runs the settlement. Polling is
// side-effect free until the payment verifies, so the buyer may mash the
// button without risk of duplicate orders.
type Checkout struct {
	gate    PaymentVerifier
	settler Settler
	now     func() time.Time
}

// NewCheckout builds the checkout machine.
func NewCheckout(gate PaymentVerifier, settler Settler) *Checkout {
	return &Checkout{gate: gate, settler: settler, now: time.Now}
}

const StepAwaitPayment Step = "await_payment"

func (m *Checkout) Name() string { return "checkout" }

// Begin seeds the invoice: the unit IDs quoted, the expected BTC amount, the
// exchange rate captured at quote time, and the payment address. The started
// timestamp bounds which ledger transactions may satisfy the invoice.
func (m *Checkout) Begin(ctx context.Context, seed Fields) (Result, error) {
	f := seed.Clone()
	if _, ok := f.Decimal("expected_btc"); !ok {
		return Result{}, &domain.FatalStateError{Step: "begin", Missing: "expected_btc"}
	}
	if f["address"] == "" {
		return Result{}, &domain.FatalStateError{Step: "begin", Missing: "address"}
	}
	if _, ok := f.Int64("started_at"); !ok {
		f.SetInt64("started_at", m.now().Unix())
	}
	expected, _ := f.Decimal("expected_btc")
	return Result{
		Next:   StepAwaitPayment,
		Fields: f,
		Output: Output{Text: fmt.Sprintf(
			"Send %s BTC to:\n\n%s\n\nThen tap ✅ I paid. The transfer must be a single payment of at least that amount.",
			expected.String(), f["address"])},
	}, nil
}

func (m *Checkout) Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error) {
	if step != StepAwaitPayment {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "known step"}
	}

	expected, ok := fields.Decimal("expected_btc")
	if !ok {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "expected_btc"}
	}
	address := fields["address"]
	if address == "" {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "address"}
	}
	startedAt, ok := fields.Int64("started_at")
	if !ok {
		return Result{}, &domain.FatalStateError{Step: string(step), Missing: "started_at"}
	}

	paid, err := m.gate.Verify(ctx, address, expected, time.Unix(startedAt, 0))
	if err != nil {
		return Result{}, err
	}
	if !paid {
		return Result{
			Next:   StepAwaitPayment,
			Fields: fields.Clone(),
			Output: Output{Text: "Payment not found yet. Give the network a minute and tap ✅ I paid again."},
		}, nil
	}

	req := service.SettleRequest{
		BuyerID:        in.UserID,
		Currency:       domain.CurrencyBTC,
		PaymentAddress: address,
	}
	if ids, ok := fields.Int64List("unit_ids"); ok {
		req.UnitIDs = ids
	}
	if rate, ok := fields.Decimal("rate"); ok {
		req.ExchangeRate = rate
	}

	order, err := m.settler.Settle(ctx, req)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return Result{
				Next:   StepDone,
				Fields: fields.Clone(),
				Output: Output{
					Text:          "❌ Some items were bought by someone else while you were paying. Nothing was charged against your cart; please review it and check out again.",
					ConflictCodes: conflict.UnitCodes,
				},
			}, nil
		}
		return Result{}, err
	}
	if order == nil {
		// Duplicate confirm against an already-settled cart.
		return Result{
			Next:   StepDone,
			Fields: fields.Clone(),
			Output: Output{Text: "This order was already completed."},
		}, nil
	}

	return Result{
		Next:   StepDone,
		Fields: fields.Clone(),
		Output: Output{Text: renderReceipt(order), Order: order},
	}, nil
}

func renderReceipt(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Payment received. Order %s\n", o.Reference)
	for _, line := range o.Lines {
		fmt.Fprintf(&b, "\n%s — %s BTC\n%s\n", line.UnitCode, line.PriceBTC.String(), line.Content)
	}
	fmt.Fprintf(&b, "\nTotal: %s BTC", o.TotalBTC.String())
	return b.String()
}
