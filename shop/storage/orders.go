package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/m3rciful/shopbot/shop/domain"
)

// GetOrder fetches one settled order with its lines and released content.
func (s *Store) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var o domain.Order
	err := s.db.GetContext(ctx, &o, `
		SELECT id, reference, buyer_id, total_rub, total_btc, currency,
		       exchange_rate, payment_address, created_at
		FROM orders WHERE id = $1`,
		orderID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "order", Ref: strconv.FormatInt(orderID, 10)}
	}
	if err != nil {
		return nil, domain.Transient("get order", err)
	}
	lines, err := s.orderLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

// ListOrders returns a buyer's settled orders, newest first, without lines.
func (s *Store) ListOrders(ctx context.Context, buyerID int64) ([]domain.Order, error) {
	var out []domain.Order
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, reference, buyer_id, total_rub, total_btc, currency,
		       exchange_rate, payment_address, created_at
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC`,
		buyerID,
	)
	if err != nil {
		return nil, domain.Transient("list orders", err)
	}
	return out, nil
}

func (s *Store) orderLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	var lines []domain.OrderLine
	err := s.db.SelectContext(ctx, &lines, `
		SELECT ol.id, ol.order_id, ol.unit_id, ol.price_rub, ol.price_btc
		FROM order_lines ol
		WHERE ol.order_id = $1
		ORDER BY ol.id`,
		orderID,
	)
	if err != nil {
		return nil, domain.Transient("order lines", err)
	}
	for i := range lines {
		var row struct {
			Code    string `db:"code"`
			Content string `db:"content"`
		}
		err := s.db.GetContext(ctx, &row, `
			SELECT u.code, p.content
			FROM stock_units u
			JOIN products p ON p.id = u.product_id
			WHERE u.id = $1`,
			lines[i].UnitID,
		)
		if err != nil {
			return nil, domain.Transient("order line unit", err)
		}
		lines[i].UnitCode = row.Code
		lines[i].Content = row.Content
	}
	return lines, nil
}

// SoldLineCount reports how many order lines reference the given unit across
// the lifetime of the system. Used by diagnostics; the schema keeps it <= 1.
func (s *Store) SoldLineCount(ctx context.Context, unitID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM order_lines WHERE unit_id = $1`, unitID)
	if err != nil {
		return 0, domain.Transient("sold line count", err)
	}
	return n, nil
}
