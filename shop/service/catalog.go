package service

import (
	"context"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"

	"log/slog"
)

// Catalog exposes catalog browsing and the admin mutations over the store.
type Catalog struct {
	store *storage.Store
}

// NewCatalog builds the catalog service.
func NewCatalog(store *storage.Store) *Catalog {
	return &Catalog{store: store}
}

// Categories lists active categories for buyers.
func (c *Catalog) Categories(ctx context.Context) ([]domain.Category, error) {
	return c.store.ListActiveCategories(ctx)
}

// AllCategories lists every category for admin menus.
func (c *Catalog) AllCategories(ctx context.Context) ([]domain.Category, error) {
	return c.store.ListCategories(ctx)
}

// Products lists a category's active products.
func (c *Catalog) Products(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return c.store.ListActiveProducts(ctx, categoryID)
}

// AllProducts lists every product for admin menus.
func (c *Catalog) AllProducts(ctx context.Context) ([]domain.Product, error) {
	return c.store.ListProducts(ctx)
}

// Product fetches one product.
func (c *Catalog) Product(ctx context.Context, id int64) (*domain.Product, error) {
	return c.store.GetProduct(ctx, id)
}

// Available returns the committed unsold count of a product.
func (c *Catalog) Available(ctx context.Context, productID int64) (int, error) {
	return c.store.AvailableCount(ctx, productID)
}

// Locations lists a product's locations that still have stock.
func (c *Catalog) Locations(ctx context.Context, productID int64) ([]domain.LocationStock, error) {
	return c.store.ListLocationsWithStock(ctx, productID)
}

// Units lists the unsold units of a product at one location.
func (c *Catalog) Units(ctx context.Context, productID int64, location string) ([]domain.StockUnit, error) {
	return c.store.ListUnsoldUnits(ctx, productID, location)
}

// Unit fetches one stock unit.
func (c *Catalog) Unit(ctx context.Context, unitID int64) (*domain.StockUnit, error) {
	return c.store.GetUnit(ctx, unitID)
}

// CreateCategory adds a category after trimming and validating the name.
func (c *Catalog) CreateCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &domain.ValidationError{Field: "category", Reason: "name must not be empty"}
	}
	id, err := c.store.CreateCategory(ctx, name)
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "service.catalog", "category.created",
		slog.String("status", "ok"),
		slog.Int64("category_id", id),
	)
	return id, nil
}

// DeleteCategory removes a category and everything under it.
func (c *Catalog) DeleteCategory(ctx context.Context, id int64) error {
	if err := c.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	logger.Info(ctx, "service.catalog", "category.deleted",
		slog.String("status", "ok"),
		slog.Int64("category_id", id),
	)
	return nil
}

// CreateProduct inserts a product draft finalized by the admin flow. Nothing
// is visible in the catalog until this call commits.
func (c *Catalog) CreateProduct(ctx context.Context, p storage.CreateProductParams) (int64, error) {
	if strings.TrimSpace(p.Name) == "" {
		return 0, &domain.ValidationError{Field: "product", Reason: "name must not be empty"}
	}
	if !p.PriceBTC.IsPositive() && !(p.PriceRUB.Valid && p.PriceRUB.Decimal.IsPositive()) {
		return 0, &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	return c.store.CreateProduct(ctx, p)
}

// DeleteProduct removes a product and its unsold units.
func (c *Catalog) DeleteProduct(ctx context.Context, id int64) error {
	if err := c.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	logger.Info(ctx, "service.catalog", "product.deleted",
		slog.String("status", "ok"),
		slog.Int64("product_id", id),
	)
	return nil
}

// AddStock mints more units for a product at a location.
func (c *Catalog) AddStock(ctx context.Context, productID int64, location string, qty int) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return &domain.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	return c.store.AddUnits(ctx, productID, location, qty)
}

// About returns the shop info text.
func (c *Catalog) About(ctx context.Context) (string, error) {
	return c.store.About(ctx)
}

// UpdateAbout replaces the shop info text.
func (c *Catalog) UpdateAbout(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &domain.ValidationError{Field: "about", Reason: "must not be empty"}
	}
	return c.store.UpdateAbout(ctx, text)
}
