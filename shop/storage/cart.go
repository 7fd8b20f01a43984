package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/shop/domain"
)

// AddToCart records the user's intent to buy one stock unit. The entry is
// advisory only: it does not reserve the unit, which stays claimable by any
// concurrent settlement until commit time.
func (s *Store) AddToCart(ctx context.Context, userID, unitID int64) error {
	var sold bool
	err := s.db.GetContext(ctx, &sold,
		`SELECT sold FROM stock_units WHERE id = $1`, unitID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: "unit", Ref: strconv.FormatInt(unitID, 10)}
	}
	if err != nil {
		return domain.Transient("check unit", err)
	}
	if sold {
		return &domain.NotFoundError{Entity: "unit", Ref: strconv.FormatInt(unitID, 10)}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, unit_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, unit_id) DO NOTHING`,
		userID, unitID,
	)
	if err != nil {
		return domain.Transient("add to cart", err)
	}
	return nil
}

// RemoveFromCart drops one unit from the user's cart.
func (s *Store) RemoveFromCart(ctx context.Context, userID, unitID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND unit_id = $2`,
		userID, unitID,
	)
	if err != nil {
		return domain.Transient("remove from cart", err)
	}
	return nil
}

type cartRow struct {
	UnitID      int64               `db:"unit_id"`
	UnitCode    string              `db:"code"`
	Sold        bool                `db:"sold"`
	ProductID   int64               `db:"product_id"`
	ProductName string              `db:"name"`
	Location    string              `db:"location"`
	PriceBTC    decimal.Decimal     `db:"price_btc"`
	PriceRUB    decimal.NullDecimal `db:"price_rub"`
}

// CartContents returns the live lines of a user's cart with derived totals,
// plus the codes of carted units that were sold out from under the user by a
// concurrent settlement. Stale rows are purged so the next render is clean.
func (s *Store) CartContents(ctx context.Context, userID int64) (*domain.CartView, []string, error) {
	var rows []cartRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ci.unit_id, u.code, u.sold, u.product_id, u.location,
		       p.name, p.price_btc, p.price_rub
		FROM cart_items ci
		JOIN stock_units u ON u.id = ci.unit_id
		JOIN products p ON p.id = u.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at`,
		userID,
	)
	if err != nil {
		return nil, nil, domain.Transient("cart contents", err)
	}

	view := &domain.CartView{}
	var stale []string
	var staleIDs []int64
	for _, r := range rows {
		if r.Sold {
			stale = append(stale, r.UnitCode)
			staleIDs = append(staleIDs, r.UnitID)
			continue
		}
		priceRUB := decimal.Zero
		if r.PriceRUB.Valid {
			priceRUB = r.PriceRUB.Decimal
		}
		view.Lines = append(view.Lines, domain.CartLine{
			UnitID:      r.UnitID,
			UnitCode:    r.UnitCode,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Location:    r.Location,
			PriceBTC:    r.PriceBTC,
			PriceRUB:    priceRUB,
		})
		view.TotalBTC = view.TotalBTC.Add(r.PriceBTC)
		view.TotalRUB = view.TotalRUB.Add(priceRUB)
	}

	if len(staleIDs) > 0 {
		if err := s.purgeCartUnits(ctx, userID, staleIDs); err != nil {
			return nil, nil, err
		}
	}
	return view, stale, nil
}

// ClearCartAll drops every cart row of a user.
func (s *Store) ClearCartAll(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return domain.Transient("clear cart", err)
	}
	return nil
}

func (s *Store) purgeCartUnits(ctx context.Context, userID int64, unitIDs []int64) error {
	q, args, err := sqlx.In(
		`DELETE FROM cart_items WHERE user_id = ? AND unit_id IN (?)`,
		userID, unitIDs,
	)
	if err != nil {
		return domain.Transient("purge cart", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...); err != nil {
		return domain.Transient("purge cart", err)
	}
	return nil
}
