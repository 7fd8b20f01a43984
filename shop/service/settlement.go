// Package service wires the storefront use cases: catalog browsing, cart
// aggregation, order settlement, exchange rates, and payment verification.
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/storage"

	"log/slog"
)

// SettlementStore is the transaction-scoping capability the settlement
// algorithm requires from the storage collaborator.
type SettlementStore interface {
	WithTx(ctx context.Context, fn func(storage.Tx) error) error
}

// Settlement converts a cart into a committed order while claiming stock
// units. The claim check, the sold-flag flip, and the order insert happen in
// one transaction under row-level locks; unrelated purchases are never
// blocked.
type Settlement struct {
	store SettlementStore
	now   func() time.Time
}

// NewSettlement builds the settlement service.
func NewSettlement(store SettlementStore) *Settlement {
	return &Settlement{store: store, now: time.Now}
}

// SettleRequest names the units (or product quantities) to claim together
// with the pricing context captured when the purchase was quoted.
type SettleRequest struct {
	BuyerID        int64
	UnitIDs        []int64
	Quantities     map[int64]int // productID -> qty, for quantity-based carts
	Currency       string
	ExchangeRate   decimal.Decimal
	PaymentAddress string
}

// Settle executes the reservation and settlement transaction.
//
// Every requested unit is re-checked sold=false under a row lock inside the
// transaction; if any line is unavailable the whole transaction aborts with a
// ConflictError naming the contested codes and nothing is committed. On
// success each claimed unit is marked sold, one order row plus one line per
// unit is written with the price snapshot taken at claim time, and the
// buyer's cart rows for those units are cleared.
//
// An empty request (duplicate confirm against an already-cleared cart) is a
// no-op: Settle returns (nil, nil) and no order is created.
func (s *Settlement) Settle(ctx context.Context, req SettleRequest) (*domain.Order, error) {
	ids := dedupe(req.UnitIDs)
	if len(ids) == 0 && len(req.Quantities) == 0 {
		logger.Debug(ctx, "service.orders", "settle.noop",
			slog.String("status", "skip"),
			slog.Int64("user_id", req.BuyerID),
		)
		return nil, nil
	}

	start := s.now()
	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		claimed, err := s.claim(ctx, tx, ids, req.Quantities)
		if err != nil {
			return err
		}

		order = s.buildOrder(req, claimed)
		claimedIDs := make([]int64, len(claimed))
		for i, u := range claimed {
			claimedIDs[i] = u.ID
		}

		if err := tx.MarkSold(ctx, req.BuyerID, claimedIDs, start.UTC()); err != nil {
			return err
		}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range order.Lines {
			order.Lines[i].OrderID = orderID
		}
		if err := tx.InsertLines(ctx, orderID, order.Lines); err != nil {
			return err
		}
		return tx.ClearCart(ctx, req.BuyerID, claimedIDs)
	})
	if err != nil {
		logger.Warn(ctx, "service.orders", "settle.aborted",
			slog.String("status", "fail"),
			slog.Int64("user_id", req.BuyerID),
			slog.Int("units", len(ids)),
			slog.String("err", err.Error()),
		)
		return nil, err
	}

	logger.Info(ctx, "service.orders", "settle.committed",
		slog.String("status", "ok"),
		slog.Int64("user_id", req.BuyerID),
		slog.Int64("order_id", order.ID),
		slog.Int("lines", len(order.Lines)),
		slog.String("total_btc", order.TotalBTC.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return order, nil
}

// claim locks and validates every requested unit. Unit-based lines and
// quantity-based lines may be combined in one settlement.
func (s *Settlement) claim(ctx context.Context, tx storage.Tx, ids []int64, quantities map[int64]int) ([]storage.LockedUnit, error) {
	var claimed []storage.LockedUnit

	if len(ids) > 0 {
		locked, err := tx.LockUnits(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]storage.LockedUnit, len(locked))
		for _, u := range locked {
			byID[u.ID] = u
		}
		var conflicted []string
		for _, id := range ids {
			u, ok := byID[id]
			if !ok {
				return nil, &domain.NotFoundError{Entity: "unit", Ref: strconv.FormatInt(id, 10)}
			}
			if u.Sold {
				conflicted = append(conflicted, u.Code)
				continue
			}
			claimed = append(claimed, u)
		}
		if len(conflicted) > 0 {
			return nil, &domain.ConflictError{UnitCodes: conflicted}
		}
	}

	for productID, qty := range quantities {
		if qty <= 0 {
			return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		locked, err := tx.LockAvailable(ctx, productID, qty)
		if err != nil {
			return nil, err
		}
		if len(locked) < qty {
			return nil, &domain.ConflictError{
				UnitCodes: []string{"product " + strconv.FormatInt(productID, 10)},
			}
		}
		claimed = append(claimed, locked...)
	}
	return claimed, nil
}

func (s *Settlement) buildOrder(req SettleRequest, claimed []storage.LockedUnit) *domain.Order {
	order := &domain.Order{
		Reference:      uuid.New(),
		BuyerID:        req.BuyerID,
		Currency:       req.Currency,
		ExchangeRate:   req.ExchangeRate,
		PaymentAddress: req.PaymentAddress,
		CreatedAt:      s.now().UTC(),
	}
	for _, u := range claimed {
		priceBTC, priceRUB := snapshotPrices(u, req.ExchangeRate)
		order.Lines = append(order.Lines, domain.OrderLine{
			UnitID:   u.ID,
			UnitCode: u.Code,
			PriceBTC: priceBTC,
			PriceRUB: priceRUB,
			Content:  u.Content,
		})
		order.TotalBTC = order.TotalBTC.Add(priceBTC)
		order.TotalRUB = order.TotalRUB.Add(priceRUB)
	}
	order.TotalBTC = order.TotalBTC.Round(8)
	order.TotalRUB = order.TotalRUB.Round(2)
	return order
}

// snapshotPrices derives both denominations from whichever price the product
// carries, converting through the exchange rate captured at quote time.
func snapshotPrices(u storage.LockedUnit, rate decimal.Decimal) (btc, rub decimal.Decimal) {
	btc = u.PriceBTC
	if u.PriceRUB.Valid {
		rub = u.PriceRUB.Decimal
		if btc.IsZero() && rate.IsPositive() {
			btc = rub.Div(rate).Round(8)
		}
	} else if rate.IsPositive() {
		rub = btc.Mul(rate).Round(2)
	}
	return btc, rub
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
