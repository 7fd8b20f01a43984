package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

type stubProducts struct {
	products  map[int64]domain.Product
	available map[int64]int
}

func (s *stubProducts) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "product", Ref: strconv.FormatInt(id, 10)}
	}
	return &p, nil
}

func (s *stubProducts) AvailableCount(ctx context.Context, productID int64) (int, error) {
	return s.available[productID], nil
}

func newStubProducts() *stubProducts {
	return &stubProducts{
		products: map[int64]domain.Product{
			1: {ID: 1, Name: "alpha", PriceBTC: decimal.RequireFromString("0.001")},
			2: {ID: 2, Name: "beta", PriceBTC: decimal.RequireFromString("0.005")},
		},
		available: map[int64]int{1: 2, 2: 1},
	}
}

func TestMemoryCartAddRespectsAvailability(t *testing.T) {
	cart := NewMemoryCart(newStubProducts())
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Add(ctx, 7, 1))

	err := cart.Add(ctx, 7, 1)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	assert.Equal(t, map[int64]int{1: 2}, cart.Quantities(7))
}

func TestMemoryCartIsolatesUsers(t *testing.T) {
	cart := NewMemoryCart(newStubProducts())
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Add(ctx, 8, 1))

	assert.Equal(t, map[int64]int{1: 1}, cart.Quantities(7))
	assert.Equal(t, map[int64]int{1: 1}, cart.Quantities(8))
}

func TestMemoryCartRemoveDropsAtZero(t *testing.T) {
	cart := NewMemoryCart(newStubProducts())
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Remove(ctx, 7, 1))
	require.NoError(t, cart.Remove(ctx, 7, 1)) // extra remove is harmless

	assert.Empty(t, cart.Quantities(7))
}

func TestMemoryCartContentsDerivesTotals(t *testing.T) {
	cart := NewMemoryCart(newStubProducts())
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Add(ctx, 7, 2))

	view, stale, err := cart.Contents(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Len(t, view.Lines, 3)
	assert.Equal(t, "0.007", view.TotalBTC.String())
}

func TestMemoryCartContentsClampsToLiveStock(t *testing.T) {
	src := newStubProducts()
	cart := NewMemoryCart(src)
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Add(ctx, 7, 1))

	// Someone else bought one in the meantime.
	src.available[1] = 1

	view, stale, err := cart.Contents(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, stale)
	assert.Len(t, view.Lines, 1)
}

func TestMemoryCartClear(t *testing.T) {
	cart := NewMemoryCart(newStubProducts())
	ctx := context.Background()

	require.NoError(t, cart.Add(ctx, 7, 1))
	require.NoError(t, cart.Clear(ctx, 7))
	assert.Empty(t, cart.Quantities(7))
}
