package tgui

import (
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/flow"
)

func (h *Handlers) showCart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	view, stale, err := h.cart.Contents(ctx, c.Sender().ID)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(stale) > 0 {
		_ = tghelpers.SendText(c, "⚠️ No longer available and removed from your cart: "+strings.Join(stale, ", "))
	}
	if len(view.Lines) == 0 {
		return tghelpers.SendText(c, "Your cart is empty.")
	}

	var b strings.Builder
	b.WriteString("Your cart:\n")
	rows := make([][]keyboard.InlineBtn, 0, len(view.Lines)+1)
	for _, line := range view.Lines {
		fmt.Fprintf(&b, "\n%s — %s (%s) %s BTC", line.UnitCode, line.ProductName, line.Location, line.PriceBTC.String())
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   "🗑 " + line.UnitCode,
			Unique: cbCartRemove,
			Data:   fmt.Sprintf("%d", line.UnitID),
		}})
	}
	fmt.Fprintf(&b, "\n\nTotal: %s BTC", view.TotalBTC.String())
	if view.TotalRUB.IsPositive() {
		fmt.Fprintf(&b, " / %s RUB", view.TotalRUB.StringFixed(2))
	}
	rows = append(rows, []keyboard.InlineBtn{
		{Text: "💳 Checkout", Unique: cbCheckout, Data: "go"},
		{Text: "🧹 Clear", Unique: cbCartClear, Data: "all"},
	})
	return tghelpers.SendText(c, b.String(),
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsRows(rows...)})
}

func (h *Handlers) onCartRemove(c tele.Context) error {
	unitID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.cart.Remove(ctx, c.Sender().ID, unitID); err != nil {
		return h.reportError(c, err)
	}
	return h.showCart(c)
}

func (h *Handlers) onCartClear(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.cart.Clear(ctx, c.Sender().ID); err != nil {
		return h.reportError(c, err)
	}
	return tghelpers.SendText(c, "Cart cleared.")
}

// onCheckout quotes the cart in BTC at the current rate and starts the
// awaiting-payment flow. The rate and unit IDs captured here ride along in the
// flow fields so the settlement snapshot matches what the buyer was shown.
func (h *Handlers) onCheckout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	view, stale, err := h.cart.Contents(ctx, userID)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(stale) > 0 {
		_ = tghelpers.SendText(c, "⚠️ No longer available and removed from your cart: "+strings.Join(stale, ", "))
	}
	if len(view.Lines) == 0 {
		return tghelpers.SendText(c, "Your cart is empty.")
	}

	expected, rate, err := h.quoteCart(c, view)
	if err != nil {
		return h.reportError(c, err)
	}

	ids := make([]int64, len(view.Lines))
	for i, line := range view.Lines {
		ids[i] = line.UnitID
	}

	seed := flow.Fields{"address": h.cfg.Wallet}
	seed.SetInt64List("unit_ids", ids)
	seed.SetDecimal("expected_btc", expected)
	seed.SetDecimal("rate", rate)

	logger.Info(ctx, "tg", "checkout.started",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Int("lines", len(ids)),
		slog.String("expected_btc", expected.String()),
	)
	return h.driver.Start(c, h.checkout, seed)
}

// quoteCart totals the cart in BTC. Fiat-priced lines convert at the cached
// rate; if the rate is unavailable and any line needs it, checkout fails
// instead of guessing.
func (h *Handlers) quoteCart(c tele.Context, view *domain.CartView) (expected, rate decimal.Decimal, err error) {
	ctx := tghelpers.BuildContext(c)

	rate, rateErr := h.rates.Rate(ctx)
	for _, line := range view.Lines {
		switch {
		case line.PriceBTC.IsPositive():
			expected = expected.Add(line.PriceBTC)
		case line.PriceRUB.IsPositive():
			if rateErr != nil {
				return decimal.Decimal{}, decimal.Decimal{}, rateErr
			}
			expected = expected.Add(line.PriceRUB.Div(rate).Round(8))
		}
	}
	if rateErr != nil {
		// BTC-only cart; settle without a fiat snapshot.
		rate = decimal.Zero
	}
	return expected.Round(8), rate, nil
}

func (h *Handlers) reportError(c tele.Context, err error) error {
	ctx := tghelpers.BuildContext(c)

	var verr *domain.ValidationError
	var nfe *domain.NotFoundError
	switch {
	case errors.As(err, &verr):
		return tghelpers.SendText(c, "⚠️ "+verr.Error())
	case errors.As(err, &nfe):
		return tghelpers.SendText(c, "Not available anymore.")
	case errors.Is(err, domain.ErrRateUnavailable):
		return tghelpers.SendText(c, "Exchange rate is unavailable right now. Please try again later.")
	case errors.Is(err, domain.ErrTransient):
		return tghelpers.SendText(c, "Service is temporarily unavailable. Please try again in a minute.")
	}

	logger.Warn(ctx, "tg", "handler.error",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return tghelpers.SendText(c, "Unexpected error. Please try again.")
}
