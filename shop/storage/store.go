// Package storage implements the Postgres repositories behind the catalog,
// carts, and order settlement. All write paths that must be atomic run inside
// WithTx; everything else reads committed state only.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"

	"log/slog"
)

// Store wraps the database handle shared by all repositories.
type Store struct {
	db *sqlx.DB
}

// New creates a Store over an established connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Tx is the slice of transactional operations the settlement service needs.
// Keeping it an interface decouples the claim algorithm from Postgres locking
// syntax and lets tests drive races against a fake.
type Tx interface {
	// LockUnits reads the requested stock units with their product price
	// snapshots under a row-level exclusive lock (SELECT ... FOR UPDATE).
	// Missing IDs are simply absent from the result.
	LockUnits(ctx context.Context, unitIDs []int64) ([]LockedUnit, error)
	// LockAvailable claims up to qty unsold units of a product under lock,
	// skipping rows locked by concurrent settlements. Used by quantity-based
	// carts that do not pin specific units.
	LockAvailable(ctx context.Context, productID int64, qty int) ([]LockedUnit, error)
	// MarkSold flips sold=false -> sold=true for the given units, stamping
	// buyer and timestamp. All rows must still be unsold.
	MarkSold(ctx context.Context, buyerID int64, unitIDs []int64, at time.Time) error
	// InsertOrder persists the order header and returns its row ID.
	InsertOrder(ctx context.Context, o *domain.Order) (int64, error)
	// InsertLines persists one OrderLine per claimed unit.
	InsertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error
	// ClearCart removes the user's cart rows for the claimed units.
	ClearCart(ctx context.Context, userID int64, unitIDs []int64) error
}

// LockedUnit is a stock unit read under lock together with the price snapshot
// taken at claim time.
type LockedUnit struct {
	ID       int64               `db:"id"`
	Code     string              `db:"code"`
	Location string              `db:"location"`
	Sold     bool                `db:"sold"`
	Name     string              `db:"name"`
	PriceBTC decimal.Decimal     `db:"price_btc"`
	PriceRUB decimal.NullDecimal `db:"price_rub"`
	Content  string              `db:"content"`
}

// WithTx runs fn inside a single database transaction. On error the
// transaction is rolled back entirely; stock and cart rows remain untouched.
func (s *Store) WithTx(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Transient("begin tx", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn(ctx, "db", "tx.rollback_failed",
				slog.String("err", rbErr.Error()),
			)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Transient("commit tx", err)
	}
	logger.Debug(ctx, "db", "tx.committed",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) LockUnits(ctx context.Context, unitIDs []int64) ([]LockedUnit, error) {
	var units []LockedUnit
	err := t.tx.SelectContext(ctx, &units, `
		SELECT u.id, u.code, u.location, u.sold,
		       p.name, p.price_btc, p.price_rub, p.content
		FROM stock_units u
		JOIN products p ON p.id = u.product_id
		WHERE u.id = ANY($1)
		ORDER BY u.id
		FOR UPDATE OF u`,
		pq.Array(unitIDs),
	)
	if err != nil {
		return nil, domain.Transient("lock units", err)
	}
	return units, nil
}

func (t *sqlTx) LockAvailable(ctx context.Context, productID int64, qty int) ([]LockedUnit, error) {
	var units []LockedUnit
	err := t.tx.SelectContext(ctx, &units, `
		SELECT u.id, u.code, u.location, u.sold,
		       p.name, p.price_btc, p.price_rub, p.content
		FROM stock_units u
		JOIN products p ON p.id = u.product_id
		WHERE u.product_id = $1 AND NOT u.sold
		ORDER BY u.id
		LIMIT $2
		FOR UPDATE OF u SKIP LOCKED`,
		productID, qty,
	)
	if err != nil {
		return nil, domain.Transient("lock available units", err)
	}
	return units, nil
}

func (t *sqlTx) MarkSold(ctx context.Context, buyerID int64, unitIDs []int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE stock_units
		SET sold = TRUE, buyer_id = $1, sold_at = $2
		WHERE id = ANY($3) AND NOT sold`,
		buyerID, at, pq.Array(unitIDs),
	)
	if err != nil {
		return domain.Transient("mark sold", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transient("mark sold", err)
	}
	if n != int64(len(unitIDs)) {
		// LockUnits already verified sold=false under lock, so this means the
		// caller skipped the check.
		return &domain.ConflictError{UnitCodes: []string{"unknown"}}
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (reference, buyer_id, total_rub, total_btc, currency, exchange_rate, payment_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		o.Reference, o.BuyerID, o.TotalRUB, o.TotalBTC, o.Currency,
		o.ExchangeRate, o.PaymentAddress, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, domain.Transient("insert order", err)
	}
	return id, nil
}

func (t *sqlTx) InsertLines(ctx context.Context, orderID int64, lines []domain.OrderLine) error {
	for _, line := range lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, unit_id, price_rub, price_btc)
			VALUES ($1, $2, $3, $4)`,
			orderID, line.UnitID, line.PriceRUB, line.PriceBTC,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &domain.ConflictError{UnitCodes: []string{line.UnitCode}}
			}
			return domain.Transient("insert order line", err)
		}
	}
	return nil
}

func (t *sqlTx) ClearCart(ctx context.Context, userID int64, unitIDs []int64) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND unit_id = ANY($2)`,
		userID, pq.Array(unitIDs),
	)
	if err != nil {
		return domain.Transient("clear cart", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
