package tgui

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/shop/domain"
)

func (h *Handlers) showCategories(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	cats, err := h.catalog.Categories(ctx)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(cats) == 0 {
		return tghelpers.SendText(c, "The catalog is empty for now.")
	}

	btns := make([]keyboard.InlineBtn, 0, len(cats))
	for _, cat := range cats {
		btns = append(btns, keyboard.InlineBtn{
			Text:   cat.Name,
			Unique: cbCategory,
			Data:   strconv.FormatInt(cat.ID, 10),
		})
	}
	return tghelpers.SendText(c, "Categories:",
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsNPerRow(btns, 2)})
}

func (h *Handlers) onCategory(c tele.Context) error {
	categoryID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	products, err := h.catalog.Products(ctx, categoryID)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(products) == 0 {
		return tghelpers.EditOrSendMD(c, "Nothing in this category yet.")
	}

	btns := make([]keyboard.InlineBtn, 0, len(products))
	for _, p := range products {
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s — %s", p.Name, h.priceLabel(c, p)),
			Unique: cbProduct,
			Data:   strconv.FormatInt(p.ID, 10),
		})
	}
	return tghelpers.EditOrSendMD(c, "Products:", keyboard.InlineButtons(btns))
}

func (h *Handlers) onProduct(c tele.Context) error {
	productID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	p, err := h.catalog.Product(ctx, productID)
	if err != nil {
		return h.reportError(c, err)
	}
	locations, err := h.catalog.Locations(ctx, productID)
	if err != nil {
		return h.reportError(c, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", mdSafe(p.Name))
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", mdSafe(p.Description))
	}
	fmt.Fprintf(&b, "Price: %s\n", h.priceLabel(c, *p))
	if len(locations) == 0 {
		b.WriteString("\nOut of stock.")
		return tghelpers.EditOrSendMD(c, b.String())
	}
	b.WriteString("\nPick a location:")

	btns := make([]keyboard.InlineBtn, 0, len(locations))
	for _, loc := range locations {
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s (%d)", loc.Location, loc.Available),
			Unique: cbLocation,
			Data:   fmt.Sprintf("%d|%s", productID, loc.Location),
		})
	}
	return tghelpers.EditOrSendMD(c, b.String(), keyboard.InlineButtonsNPerRow(btns, 2))
}

// maxUnitButtons caps how many units one message offers; larger stock still
// sells because a fresh render shows the remaining units.
const maxUnitButtons = 10

func (h *Handlers) onLocation(c tele.Context) error {
	parts, err := callbacks.PayloadParts(c, "|")
	if err != nil || len(parts) != 2 {
		return nil
	}
	productID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	location := parts[1]

	ctx := tghelpers.BuildContext(c)
	units, err := h.catalog.Units(ctx, productID, location)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(units) == 0 {
		return tghelpers.EditOrSendMD(c, "Sold out at this location.")
	}
	if len(units) > maxUnitButtons {
		units = units[:maxUnitButtons]
	}

	btns := make([]keyboard.InlineBtn, 0, len(units))
	for _, u := range units {
		btns = append(btns, keyboard.InlineBtn{
			Text:   u.Code,
			Unique: cbUnitAdd,
			Data:   strconv.FormatInt(u.ID, 10),
		})
	}
	return tghelpers.EditOrSendMD(c,
		fmt.Sprintf("Units at %s — tap one to add it to your cart:", mdSafe(location)),
		keyboard.InlineButtonsNPerRow(btns, 2))
}

func (h *Handlers) onUnitAdd(c tele.Context) error {
	unitID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.cart.Add(ctx, c.Sender().ID, unitID); err != nil {
		return h.reportError(c, err)
	}
	return c.Respond(&tele.CallbackResponse{Text: "Added to cart"})
}

// priceLabel renders the product price in whichever denomination it carries,
// quoting the other one when the exchange rate is available.
func (h *Handlers) priceLabel(c tele.Context, p domain.Product) string {
	ctx := tghelpers.BuildContext(c)
	if p.PriceRUB.Valid {
		rub := p.PriceRUB.Decimal
		if btc, err := h.rates.QuoteBTC(ctx, rub); err == nil {
			return fmt.Sprintf("%s RUB (~%s BTC)", rub.StringFixed(2), btc.String())
		}
		return rub.StringFixed(2) + " RUB"
	}
	if rub, err := h.rates.ToRUB(ctx, p.PriceBTC); err == nil {
		return fmt.Sprintf("%s BTC (~%s RUB)", p.PriceBTC.String(), rub.StringFixed(2))
	}
	return p.PriceBTC.String() + " BTC"
}
