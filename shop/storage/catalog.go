package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"

	"log/slog"
)

// ListActiveCategories returns active categories ordered by name.
func (s *Store) ListActiveCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, is_active FROM categories WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, domain.Transient("list categories", err)
	}
	return out, nil
}

// ListCategories returns every category, active or not, for admin views.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, is_active FROM categories ORDER BY name`)
	if err != nil {
		return nil, domain.Transient("list categories", err)
	}
	return out, nil
}

// CreateCategory inserts a category and returns its ID.
func (s *Store) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &domain.ValidationError{Field: "category", Reason: "name already exists"}
		}
		return 0, domain.Transient("create category", err)
	}
	return id, nil
}

// DeleteCategory removes a category; its products and unsold units cascade.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return deleteRefusedError("category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "category", Ref: strconv.FormatInt(id, 10)}
	}
	return nil
}

// ListActiveProducts returns the active products of a category.
func (s *Store) ListActiveProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	var out []domain.Product
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, category_id, name, description, price_btc, price_rub, content, is_active, created_at
		FROM products
		WHERE category_id = $1 AND is_active
		ORDER BY name`,
		categoryID,
	)
	if err != nil {
		return nil, domain.Transient("list products", err)
	}
	return out, nil
}

// ListProducts returns every product with its category name for admin views.
func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, category_id, name, description, price_btc, price_rub, content, is_active, created_at
		FROM products
		ORDER BY category_id, name`)
	if err != nil {
		return nil, domain.Transient("list products", err)
	}
	return out, nil
}

// GetProduct fetches one product by ID.
func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, `
		SELECT id, category_id, name, description, price_btc, price_rub, content, is_active, created_at
		FROM products WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "product", Ref: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, domain.Transient("get product", err)
	}
	return &p, nil
}

// CreateProductParams carries the fields collected by the admin add-product
// flow. Locations maps a location label to the number of units to mint.
type CreateProductParams struct {
	CategoryID  int64
	Name        string
	Description string
	PriceBTC    decimal.Decimal
	PriceRUB    decimal.NullDecimal
	Content     string
	Locations   map[string]int
}

// CreateProduct inserts the product and mints one uniquely-coded stock unit
// per requested quantity, all in one transaction.
func (s *Store) CreateProduct(ctx context.Context, p CreateProductParams) (int64, error) {
	var productID int64
	err := s.WithTx(ctx, func(tx Tx) error {
		st := tx.(*sqlTx)
		err := st.tx.QueryRowContext(ctx, `
			INSERT INTO products (category_id, name, description, price_btc, price_rub, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			p.CategoryID, p.Name, p.Description, p.PriceBTC, p.PriceRUB, p.Content,
		).Scan(&productID)
		if err != nil {
			if isUniqueViolation(err) {
				return &domain.ValidationError{Field: "product", Reason: "name already exists in this category"}
			}
			return domain.Transient("insert product", err)
		}
		for location, qty := range p.Locations {
			for i := 0; i < qty; i++ {
				code := newUnitCode()
				_, err := st.tx.ExecContext(ctx, `
					INSERT INTO stock_units (product_id, location, code)
					VALUES ($1, $2, $3)`,
					productID, location, code,
				)
				if err != nil {
					return domain.Transient("insert stock unit", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "db", "product.created",
		slog.String("status", "ok"),
		slog.Int64("product_id", productID),
		slog.Int("locations", len(p.Locations)),
	)
	return productID, nil
}

// DeleteProduct removes a product and cascades to its unsold units.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return deleteRefusedError("product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.NotFoundError{Entity: "product", Ref: strconv.FormatInt(id, 10)}
	}
	return nil
}

// deleteRefusedError separates a delete blocked by the order ledger from an
// ordinary database failure. Sold units are referenced by order_lines forever,
// so such a delete can never succeed and retrying is pointless.
func deleteRefusedError(entity string, err error) error {
	if isForeignKeyViolation(err) {
		return &domain.ValidationError{Field: entity, Reason: "has sold units; deactivate it instead"}
	}
	return domain.Transient("delete "+entity, err)
}

// AvailableCount returns the number of committed unsold units of a product
// across all locations.
func (s *Store) AvailableCount(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM stock_units WHERE product_id = $1 AND NOT sold`, productID)
	if err != nil {
		return 0, domain.Transient("available count", err)
	}
	return n, nil
}

// ListLocationsWithStock returns locations of a product that still have
// unsold units, with the committed availability per location.
func (s *Store) ListLocationsWithStock(ctx context.Context, productID int64) ([]domain.LocationStock, error) {
	var out []domain.LocationStock
	err := s.db.SelectContext(ctx, &out, `
		SELECT location, COUNT(*) AS available
		FROM stock_units
		WHERE product_id = $1 AND NOT sold
		GROUP BY location
		ORDER BY location`,
		productID,
	)
	if err != nil {
		return nil, domain.Transient("list locations", err)
	}
	return out, nil
}

// ListUnsoldUnits returns the unsold units of a product at one location.
func (s *Store) ListUnsoldUnits(ctx context.Context, productID int64, location string) ([]domain.StockUnit, error) {
	var out []domain.StockUnit
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, product_id, location, code, sold, buyer_id, sold_at
		FROM stock_units
		WHERE product_id = $1 AND location = $2 AND NOT sold
		ORDER BY id`,
		productID, location,
	)
	if err != nil {
		return nil, domain.Transient("list unsold units", err)
	}
	return out, nil
}

// GetUnit fetches one stock unit by ID.
func (s *Store) GetUnit(ctx context.Context, unitID int64) (*domain.StockUnit, error) {
	var u domain.StockUnit
	err := s.db.GetContext(ctx, &u, `
		SELECT id, product_id, location, code, sold, buyer_id, sold_at
		FROM stock_units WHERE id = $1`,
		unitID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "unit", Ref: strconv.FormatInt(unitID, 10)}
	}
	if err != nil {
		return nil, domain.Transient("get unit", err)
	}
	return &u, nil
}

// AddUnits mints additional units for an existing product at a location.
func (s *Store) AddUnits(ctx context.Context, productID int64, location string, qty int) error {
	if qty <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return s.WithTx(ctx, func(tx Tx) error {
		st := tx.(*sqlTx)
		for i := 0; i < qty; i++ {
			_, err := st.tx.ExecContext(ctx, `
				INSERT INTO stock_units (product_id, location, code)
				VALUES ($1, $2, $3)`,
				productID, location, newUnitCode(),
			)
			if err != nil {
				return domain.Transient("insert stock unit", err)
			}
		}
		return nil
	})
}

// About returns the shop info text.
func (s *Store) About(ctx context.Context) (string, error) {
	var text string
	err := s.db.GetContext(ctx, &text, `SELECT about_text FROM shop_info WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &domain.NotFoundError{Entity: "shop info"}
	}
	if err != nil {
		return "", domain.Transient("get shop info", err)
	}
	return text, nil
}

// UpdateAbout replaces the shop info text.
func (s *Store) UpdateAbout(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE shop_info SET about_text = $1, updated_at = $2 WHERE id = 1`,
		text, time.Now().UTC(),
	)
	if err != nil {
		return domain.Transient("update shop info", err)
	}
	return nil
}

// newUnitCode builds a short human-quotable unit code from a UUID.
func newUnitCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("U-%s", raw[:12])
}
