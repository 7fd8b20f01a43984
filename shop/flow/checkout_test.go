package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/service"
)

type stubGate struct {
	paid  bool
	err   error
	calls int
}

func (s *stubGate) Verify(ctx context.Context, address string, expected decimal.Decimal, since time.Time) (bool, error) {
	s.calls++
	return s.paid, s.err
}

type stubSettler struct {
	order *domain.Order
	err   error
	reqs  []service.SettleRequest
}

func (s *stubSettler) Settle(ctx context.Context, req service.SettleRequest) (*domain.Order, error) {
	s.reqs = append(s.reqs, req)
	return s.order, s.err
}

func checkoutSeed() Fields {
	f := Fields{"address": "1ShopAddr"}
	f.SetInt64List("unit_ids", []int64{1, 2})
	f.SetDecimal("expected_btc", decimal.RequireFromString("0.003"))
	f.SetDecimal("rate", decimal.RequireFromString("5000000"))
	return f
}

func TestCheckoutBeginRendersInvoice(t *testing.T) {
	m := NewCheckout(&stubGate{}, &stubSettler{})

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)
	assert.Equal(t, StepAwaitPayment, res.Next)
	assert.Contains(t, res.Output.Text, "0.003")
	assert.Contains(t, res.Output.Text, "1ShopAddr")

	_, ok := res.Fields.Int64("started_at")
	assert.True(t, ok)
}

func TestCheckoutBeginRequiresInvoiceFields(t *testing.T) {
	m := NewCheckout(&stubGate{}, &stubSettler{})

	var ferr *domain.FatalStateError
	_, err := m.Begin(context.Background(), Fields{"address": "x"})
	require.ErrorAs(t, err, &ferr)

	f := Fields{}
	f.SetDecimal("expected_btc", decimal.RequireFromString("0.003"))
	_, err = m.Begin(context.Background(), f)
	require.ErrorAs(t, err, &ferr)
}

func TestCheckoutPollingStaysAtAwaitPayment(t *testing.T) {
	gate := &stubGate{paid: false}
	settler := &stubSettler{}
	m := NewCheckout(gate, settler)

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 7, Text: "✅ I paid"})
		require.NoError(t, err)
		assert.Equal(t, StepAwaitPayment, res.Next)
	}
	assert.Equal(t, 3, gate.calls)
	assert.Empty(t, settler.reqs, "settlement must not run before payment verifies")
}

func TestCheckoutSettlesOncePaid(t *testing.T) {
	order := &domain.Order{
		BuyerID:  7,
		TotalBTC: decimal.RequireFromString("0.003"),
		Lines: []domain.OrderLine{
			{UnitCode: "U-A", PriceBTC: decimal.RequireFromString("0.001"), Content: "secret-a"},
			{UnitCode: "U-B", PriceBTC: decimal.RequireFromString("0.002"), Content: "secret-b"},
		},
	}
	settler := &stubSettler{order: order}
	m := NewCheckout(&stubGate{paid: true}, settler)

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)
	res, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 7, Text: "✅ I paid"})
	require.NoError(t, err)

	assert.Equal(t, StepDone, res.Next)
	assert.Same(t, order, res.Output.Order)
	assert.Contains(t, res.Output.Text, "secret-a")
	assert.Contains(t, res.Output.Text, "secret-b")

	require.Len(t, settler.reqs, 1)
	req := settler.reqs[0]
	assert.Equal(t, int64(7), req.BuyerID)
	assert.Equal(t, []int64{1, 2}, req.UnitIDs)
	assert.Equal(t, domain.CurrencyBTC, req.Currency)
	assert.Equal(t, "1ShopAddr", req.PaymentAddress)
	assert.Equal(t, "5000000", req.ExchangeRate.String())
}

func TestCheckoutConflictEndsFlowWithCodes(t *testing.T) {
	settler := &stubSettler{err: &domain.ConflictError{UnitCodes: []string{"U-B"}}}
	m := NewCheckout(&stubGate{paid: true}, settler)

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)
	res, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 7, Text: "✅ I paid"})
	require.NoError(t, err)

	assert.Equal(t, StepDone, res.Next)
	assert.Equal(t, []string{"U-B"}, res.Output.ConflictCodes)
	assert.Nil(t, res.Output.Order)
}

func TestCheckoutDuplicateConfirmIsNoop(t *testing.T) {
	// Settler returns (nil, nil) for an already-cleared cart.
	m := NewCheckout(&stubGate{paid: true}, &stubSettler{})

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)
	res, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 7, Text: "✅ I paid"})
	require.NoError(t, err)

	assert.Equal(t, StepDone, res.Next)
	assert.Nil(t, res.Output.Order)
	assert.Contains(t, res.Output.Text, "already")
}

func TestCheckoutGateFailurePropagates(t *testing.T) {
	m := NewCheckout(&stubGate{err: domain.Transient("oracle call", errors.New("timeout"))}, &stubSettler{})

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), res.Next, res.Fields, Input{UserID: 7, Text: "✅ I paid"})
	assert.True(t, errors.Is(err, domain.ErrTransient))
}

func TestCheckoutResumesAfterFieldsRestore(t *testing.T) {
	// Fields survive as plain strings, so a restarted process can resume the
	// awaiting-payment step from persisted session data.
	m := NewCheckout(&stubGate{paid: false}, &stubSettler{})

	res, err := m.Begin(context.Background(), checkoutSeed())
	require.NoError(t, err)

	restored := Fields{}
	for k, v := range res.Fields {
		restored[k] = v
	}

	next, err := m.Transition(context.Background(), StepAwaitPayment, restored, Input{UserID: 7, Text: "✅ I paid"})
	require.NoError(t, err)
	assert.Equal(t, StepAwaitPayment, next.Next)
}
