// Package domain holds the storefront entities shared by storage, services,
// and conversation flows.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups products in the catalog.
type Category struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// Product is a catalog entry. Content is revealed to the buyer only after a
// settled order; until then it never leaves the storage layer except through
// settlement.
type Product struct {
	ID          int64               `db:"id"`
	CategoryID  int64               `db:"category_id"`
	Name        string              `db:"name"`
	Description string              `db:"description"`
	PriceBTC    decimal.Decimal     `db:"price_btc"`
	PriceRUB    decimal.NullDecimal `db:"price_rub"`
	Content     string              `db:"content"`
	IsActive    bool                `db:"is_active"`
	CreatedAt   time.Time           `db:"created_at"`
}

// StockUnit is the atomic sellable entity: one uniquely-coded item of a
// product at a location. It transitions unsold -> sold exactly once.
type StockUnit struct {
	ID        int64      `db:"id"`
	ProductID int64      `db:"product_id"`
	Location  string     `db:"location"`
	Code      string     `db:"code"`
	Sold      bool       `db:"sold"`
	BuyerID   *int64     `db:"buyer_id"`
	SoldAt    *time.Time `db:"sold_at"`
}

// LocationStock is an availability row for the catalog view: committed unsold
// units per location.
type LocationStock struct {
	Location  string `db:"location"`
	Available int    `db:"available"`
}

// CartLine is one advisory cart entry. It does not reserve the unit; the
// settlement transaction re-validates availability at commit time.
type CartLine struct {
	UnitID      int64
	UnitCode    string
	ProductID   int64
	ProductName string
	Location    string
	PriceBTC    decimal.Decimal
	PriceRUB    decimal.Decimal
}

// CartView is the rendered contents of a user's cart with derived totals.
type CartView struct {
	Lines    []CartLine
	TotalBTC decimal.Decimal
	TotalRUB decimal.Decimal
}

// Order is the durable result of one successful settlement. Financial fields
// are append-only and never mutated in place.
type Order struct {
	ID             int64           `db:"id"`
	Reference      uuid.UUID       `db:"reference"`
	BuyerID        int64           `db:"buyer_id"`
	TotalRUB       decimal.Decimal `db:"total_rub"`
	TotalBTC       decimal.Decimal `db:"total_btc"`
	Currency       string          `db:"currency"`
	ExchangeRate   decimal.Decimal `db:"exchange_rate"`
	PaymentAddress string          `db:"payment_address"`
	CreatedAt      time.Time       `db:"created_at"`

	Lines []OrderLine `db:"-"`
}

// OrderLine binds one claimed StockUnit to its price snapshot taken at claim
// time, together with the content released for that unit.
type OrderLine struct {
	ID       int64           `db:"id"`
	OrderID  int64           `db:"order_id"`
	UnitID   int64           `db:"unit_id"`
	UnitCode string          `db:"-"`
	PriceRUB decimal.Decimal `db:"price_rub"`
	PriceBTC decimal.Decimal `db:"price_btc"`
	Content  string          `db:"-"`
}

// ShopInfo holds the editable "about" text shown to buyers.
type ShopInfo struct {
	AboutText string    `db:"about_text"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Currency labels for settled orders.
const (
	CurrencyBTC = "BTC"
	CurrencyRUB = "RUB"
)
