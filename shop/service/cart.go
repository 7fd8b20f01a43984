package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"

	"log/slog"
)

// CartStore is the persistence surface of the unit-based cart.
type CartStore interface {
	AddToCart(ctx context.Context, userID, unitID int64) error
	RemoveFromCart(ctx context.Context, userID, unitID int64) error
	CartContents(ctx context.Context, userID int64) (*domain.CartView, []string, error)
	ClearCartAll(ctx context.Context, userID int64) error
}

// StoredCart is the persistent cart shape: rows per user referencing specific
// stock units, surviving process restarts. Entries are advisory; settlement
// re-validates availability under lock.
type StoredCart struct {
	store CartStore
}

// NewStoredCart builds the persistent cart aggregator.
func NewStoredCart(store CartStore) *StoredCart {
	return &StoredCart{store: store}
}

// Add puts a specific unsold unit into the user's cart. A unit that is
// already sold yields a "not available" NotFoundError.
func (c *StoredCart) Add(ctx context.Context, userID, unitID int64) error {
	if err := c.store.AddToCart(ctx, userID, unitID); err != nil {
		return err
	}
	logger.Debug(ctx, "service.cart", "cart.add",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Int64("unit_id", unitID),
	)
	return nil
}

// Remove drops one unit from the cart.
func (c *StoredCart) Remove(ctx context.Context, userID, unitID int64) error {
	return c.store.RemoveFromCart(ctx, userID, unitID)
}

// Contents renders the cart's live lines and totals. Units sold out from
// under the user are reported by code so the caller can notify instead of
// silently dropping the line.
func (c *StoredCart) Contents(ctx context.Context, userID int64) (*domain.CartView, []string, error) {
	return c.store.CartContents(ctx, userID)
}

// Clear empties the cart.
func (c *StoredCart) Clear(ctx context.Context, userID int64) error {
	return c.store.ClearCartAll(ctx, userID)
}

// ProductReader is what the in-memory cart needs to derive its view from
// committed catalog state.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	AvailableCount(ctx context.Context, productID int64) (int, error)
}

// MemoryCart is the in-memory cart shape: a per-user quantity map keyed by
// product, lost on restart. It is acceptable only because settlement claims
// live inventory itself (LockAvailable) instead of trusting cart contents as
// a reservation. Access is per-key; no iteration races.
type MemoryCart struct {
	reader ProductReader

	mu    sync.RWMutex
	carts map[int64]map[int64]int // userID -> productID -> qty
}

// NewMemoryCart builds the in-memory cart aggregator.
func NewMemoryCart(reader ProductReader) *MemoryCart {
	return &MemoryCart{reader: reader, carts: make(map[int64]map[int64]int)}
}

// Add increments the quantity of a product in the user's cart after checking
// committed availability; asking for more than is available fails with a
// "not available" result.
func (c *MemoryCart) Add(ctx context.Context, userID, productID int64) error {
	available, err := c.reader.AvailableCount(ctx, productID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.carts[userID]
	if cart == nil {
		cart = make(map[int64]int)
		c.carts[userID] = cart
	}
	if cart[productID]+1 > available {
		return &domain.NotFoundError{Entity: "stock", Ref: "product"}
	}
	cart[productID]++
	return nil
}

// Remove decrements the quantity of a product, dropping the key at zero.
func (c *MemoryCart) Remove(ctx context.Context, userID, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart := c.carts[userID]
	if cart == nil || cart[productID] == 0 {
		return nil
	}
	cart[productID]--
	if cart[productID] == 0 {
		delete(cart, productID)
	}
	return nil
}

// Contents derives lines and totals from the live catalog. Products that
// vanished or sold below the carted quantity are clamped and reported.
func (c *MemoryCart) Contents(ctx context.Context, userID int64) (*domain.CartView, []string, error) {
	c.mu.RLock()
	cart := make(map[int64]int, len(c.carts[userID]))
	for id, qty := range c.carts[userID] {
		cart[id] = qty
	}
	c.mu.RUnlock()

	ids := make([]int64, 0, len(cart))
	for id := range cart {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	view := &domain.CartView{}
	var stale []string
	for _, productID := range ids {
		qty := cart[productID]
		p, err := c.reader.GetProduct(ctx, productID)
		if err != nil {
			stale = append(stale, "product")
			continue
		}
		available, err := c.reader.AvailableCount(ctx, productID)
		if err != nil {
			return nil, nil, err
		}
		if available < qty {
			stale = append(stale, p.Name)
			qty = available
		}
		priceRUB := decimal.Zero
		if p.PriceRUB.Valid {
			priceRUB = p.PriceRUB.Decimal
		}
		for i := 0; i < qty; i++ {
			view.Lines = append(view.Lines, domain.CartLine{
				ProductID:   productID,
				ProductName: p.Name,
				PriceBTC:    p.PriceBTC,
				PriceRUB:    priceRUB,
			})
			view.TotalBTC = view.TotalBTC.Add(p.PriceBTC)
			view.TotalRUB = view.TotalRUB.Add(priceRUB)
		}
	}
	return view, stale, nil
}

// Quantities snapshots the user's cart as a productID -> qty map for a
// quantity-based settlement request.
func (c *MemoryCart) Quantities(userID int64) map[int64]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]int, len(c.carts[userID]))
	for id, qty := range c.carts[userID] {
		out[id] = qty
	}
	return out
}

// Clear drops the user's entire cart.
func (c *MemoryCart) Clear(ctx context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, userID)
	return nil
}
