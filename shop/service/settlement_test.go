package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"
)

// memStore implements SettlementStore over in-memory stock, serializing
// transactions the way row locks would and applying writes only on commit.
type memStore struct {
	mu    sync.Mutex
	units map[int64]*storage.LockedUnit

	orders      []*domain.Order
	lines       map[int64][]domain.OrderLine
	carts       map[int64]map[int64]bool
	nextOrderID int64

	failLines bool
}

func newMemStore(units ...storage.LockedUnit) *memStore {
	s := &memStore{
		units: make(map[int64]*storage.LockedUnit),
		lines: make(map[int64][]domain.OrderLine),
		carts: make(map[int64]map[int64]bool),
	}
	for i := range units {
		u := units[i]
		s.units[u.ID] = &u
	}
	return s
}

func (s *memStore) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	s *memStore

	sold    []int64
	buyerID int64
	soldAt  time.Time
	order   *domain.Order
	orderID int64
	lines   []domain.OrderLine
	cleared []int64
	userID  int64
}

func (t *memTx) LockUnits(ctx context.Context, unitIDs []int64) ([]storage.LockedUnit, error) {
	var out []storage.LockedUnit
	for _, id := range unitIDs {
		if u, ok := t.s.units[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (t *memTx) LockAvailable(ctx context.Context, productID int64, qty int) ([]storage.LockedUnit, error) {
	ids := make([]int64, 0, len(t.s.units))
	for id := range t.s.units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []storage.LockedUnit
	for _, id := range ids {
		u := t.s.units[id]
		if u.Sold || productFor(u) != productID {
			continue
		}
		out = append(out, *u)
		if len(out) == qty {
			break
		}
	}
	return out, nil
}

// productFor derives a product ID from the unit name for test fixtures.
func productFor(u *storage.LockedUnit) int64 {
	switch u.Name {
	case "alpha":
		return 1
	case "beta":
		return 2
	}
	return 0
}

func (t *memTx) MarkSold(ctx context.Context, buyerID int64, unitIDs []int64, at time.Time) error {
	for _, id := range unitIDs {
		u, ok := t.s.units[id]
		if !ok || u.Sold {
			return &domain.ConflictError{UnitCodes: []string{"unknown"}}
		}
	}
	t.sold = append(t.sold, unitIDs...)
	t.buyerID = buyerID
	t.soldAt = at
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	t.s.nextOrderID++
	t.order = o
	t.orderID = t.s.nextOrderID
	return t.orderID, nil
}

func (t *memTx) InsertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error {
	if t.s.failLines {
		return domain.Transient("insert order line", errors.New("connection reset"))
	}
	for _, committed := range t.s.lines {
		for _, line := range committed {
			for _, fresh := range lines {
				if line.UnitID == fresh.UnitID {
					return &domain.ConflictError{UnitCodes: []string{fresh.UnitCode}}
				}
			}
		}
	}
	t.lines = lines
	return nil
}

func (t *memTx) ClearCart(ctx context.Context, userID int64, unitIDs []int64) error {
	t.userID = userID
	t.cleared = unitIDs
	return nil
}

func (t *memTx) commit() {
	for _, id := range t.sold {
		t.s.units[id].Sold = true
	}
	if t.order != nil {
		t.s.orders = append(t.s.orders, t.order)
		t.s.lines[t.orderID] = t.lines
	}
	if cart, ok := t.s.carts[t.userID]; ok {
		for _, id := range t.cleared {
			delete(cart, id)
		}
	}
}

func unit(id int64, code, name string, priceBTC string) storage.LockedUnit {
	return storage.LockedUnit{
		ID:       id,
		Code:     code,
		Location: "Moscow",
		Name:     name,
		PriceBTC: decimal.RequireFromString(priceBTC),
		Content:  "content-" + code,
	}
}

func TestSettleEmptyRequestIsNoop(t *testing.T) {
	store := newMemStore()
	svc := NewSettlement(store)

	order, err := svc.Settle(context.Background(), SettleRequest{BuyerID: 7})
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Empty(t, store.orders)
}

func TestSettleCommitsOrderAndMarksSold(t *testing.T) {
	store := newMemStore(
		unit(1, "U-A", "alpha", "0.001"),
		unit(2, "U-B", "alpha", "0.002"),
	)
	svc := NewSettlement(store)

	order, err := svc.Settle(context.Background(), SettleRequest{
		BuyerID:        42,
		UnitIDs:        []int64{1, 2, 2}, // duplicate collapses
		Currency:       domain.CurrencyBTC,
		ExchangeRate:   decimal.RequireFromString("5000000"),
		PaymentAddress: "1BitcoinAddr",
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Len(t, order.Lines, 2)
	assert.Equal(t, "0.003", order.TotalBTC.String())
	assert.Equal(t, int64(42), order.BuyerID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", order.Reference.String())
	assert.Equal(t, "content-U-A", order.Lines[0].Content)

	assert.True(t, store.units[1].Sold)
	assert.True(t, store.units[2].Sold)
	require.Len(t, store.orders, 1)
}

func TestSettleConflictAbortsWholeOrder(t *testing.T) {
	sold := unit(2, "U-B", "alpha", "0.002")
	sold.Sold = true
	store := newMemStore(unit(1, "U-A", "alpha", "0.001"), sold)
	svc := NewSettlement(store)

	order, err := svc.Settle(context.Background(), SettleRequest{
		BuyerID: 42,
		UnitIDs: []int64{1, 2},
	})
	require.Error(t, err)
	assert.Nil(t, order)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"U-B"}, conflict.UnitCodes)

	// Nothing committed: the still-available unit stays unsold.
	assert.False(t, store.units[1].Sold)
	assert.Empty(t, store.orders)
}

func TestSettleUnknownUnit(t *testing.T) {
	store := newMemStore(unit(1, "U-A", "alpha", "0.001"))
	svc := NewSettlement(store)

	_, err := svc.Settle(context.Background(), SettleRequest{BuyerID: 1, UnitIDs: []int64{99}})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestSettleConcurrentBuyersSingleWinner(t *testing.T) {
	store := newMemStore(unit(1, "U-A", "alpha", "0.001"))
	svc := NewSettlement(store)

	const buyers = 8
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Settle(context.Background(), SettleRequest{
				BuyerID: int64(100 + n),
				UnitIDs: []int64{1},
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var conflict *domain.ConflictError
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, wins)
	require.Len(t, store.orders, 1)
}

func TestSettleQuantityShortfallConflicts(t *testing.T) {
	store := newMemStore(
		unit(1, "U-A", "alpha", "0.001"),
		unit(2, "U-B", "alpha", "0.001"),
	)
	svc := NewSettlement(store)

	_, err := svc.Settle(context.Background(), SettleRequest{
		BuyerID:    1,
		Quantities: map[int64]int{1: 3},
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.False(t, store.units[1].Sold)
}

func TestSettleQuantityClaimsUnits(t *testing.T) {
	store := newMemStore(
		unit(1, "U-A", "alpha", "0.001"),
		unit(2, "U-B", "alpha", "0.001"),
		unit(3, "U-C", "beta", "0.005"),
	)
	svc := NewSettlement(store)

	order, err := svc.Settle(context.Background(), SettleRequest{
		BuyerID:    9,
		Quantities: map[int64]int{1: 2},
	})
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	assert.True(t, store.units[1].Sold)
	assert.True(t, store.units[2].Sold)
	assert.False(t, store.units[3].Sold)
}

func TestSettleRollsBackOnLineFailure(t *testing.T) {
	store := newMemStore(unit(1, "U-A", "alpha", "0.001"))
	store.failLines = true
	svc := NewSettlement(store)

	_, err := svc.Settle(context.Background(), SettleRequest{BuyerID: 1, UnitIDs: []int64{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))
	assert.False(t, store.units[1].Sold)
	assert.Empty(t, store.orders)
}

func TestSnapshotPricesDerivesMissingDenomination(t *testing.T) {
	rate := decimal.RequireFromString("5000000")

	btcOnly := storage.LockedUnit{PriceBTC: decimal.RequireFromString("0.002")}
	btc, rub := snapshotPrices(btcOnly, rate)
	assert.Equal(t, "0.002", btc.String())
	assert.Equal(t, "10000", rub.String())

	rubOnly := storage.LockedUnit{
		PriceRUB: decimal.NullDecimal{Decimal: decimal.RequireFromString("2500"), Valid: true},
	}
	btc, rub = snapshotPrices(rubOnly, rate)
	assert.Equal(t, "0.0005", btc.String())
	assert.Equal(t, "2500", rub.String())
}
