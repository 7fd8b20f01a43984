package tgui

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
)

// Main menu reply buttons.
const (
	ButtonCatalog = "🛍️ Catalog"
	ButtonCart    = "🛒 Cart"
	ButtonAbout   = "ℹ️ About"
	ButtonAdmin   = "⚙️ Admin"
)

func (h *Handlers) mainMenu(userID int64) *tele.ReplyMarkup {
	rows := [][]string{
		{ButtonCatalog, ButtonCart},
		{ButtonAbout},
	}
	if h.cfg.AdminID != 0 && userID == h.cfg.AdminID {
		rows = append(rows, []string{ButtonAdmin})
	}
	return keyboard.ReplyButtons(rows...)
}

func (h *Handlers) handleStart(c tele.Context) error {
	return tghelpers.SendText(c, "Welcome! Pick a section below.",
		&tele.SendOptions{ReplyMarkup: h.mainMenu(c.Sender().ID)})
}

// handleMenuText routes the reply-keyboard button presses; the command router
// only matches slash commands, so button labels land here.
func (h *Handlers) handleMenuText(c tele.Context) error {
	switch strings.TrimSpace(c.Text()) {
	case ButtonCatalog:
		return h.showCategories(c)
	case ButtonCart:
		return h.showCart(c)
	case ButtonAbout:
		return h.handleAbout(c)
	case ButtonAdmin:
		return h.requireAdmin(h.handleAdmin)(c)
	case ButtonCancel:
		return h.driver.Cancel(c)
	}
	return tghelpers.SendText(c, "Use the menu below.",
		&tele.SendOptions{ReplyMarkup: h.mainMenu(c.Sender().ID)})
}

func (h *Handlers) handleAbout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	text, err := h.catalog.About(ctx)
	if err != nil {
		return h.reportError(c, err)
	}
	if text == "" {
		text = "No shop info yet."
	}
	return tghelpers.SendText(c, text)
}

func (h *Handlers) handleOrders(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	orders, err := h.store.ListOrders(ctx, c.Sender().ID)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(orders) == 0 {
		return tghelpers.SendText(c, "You have no orders yet.")
	}

	btns := make([]keyboard.InlineBtn, 0, len(orders))
	for _, o := range orders {
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s — %s BTC", o.CreatedAt.Format("02.01.2006"), o.TotalBTC.String()),
			Unique: cbOrderView,
			Data:   fmt.Sprintf("%d", o.ID),
		})
	}
	return tghelpers.SendText(c, "Your orders:",
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(btns)})
}

// onOrderView re-reveals a settled order's receipt to its buyer.
func (h *Handlers) onOrderView(c tele.Context) error {
	orderID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	order, err := h.store.GetOrder(ctx, orderID)
	if err != nil {
		return h.reportError(c, err)
	}
	if order.BuyerID != c.Sender().ID && c.Sender().ID != h.cfg.AdminID {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n%s\n", order.Reference, order.CreatedAt.Format("02.01.2006 15:04"))
	for _, line := range order.Lines {
		fmt.Fprintf(&b, "\n%s — %s BTC\n%s\n", line.UnitCode, line.PriceBTC.String(), line.Content)
	}
	fmt.Fprintf(&b, "\nTotal: %s BTC", order.TotalBTC.String())
	return tghelpers.SendText(c, b.String())
}
