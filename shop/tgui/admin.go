package tgui

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/shop/flow"
)

func (h *Handlers) handleAdmin(c tele.Context) error {
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "➕ Category", Unique: cbAdminCatAdd, Data: "go"},
			{Text: "🗑 Category", Unique: cbAdminCatDelMenu, Data: "go"},
		},
		[]keyboard.InlineBtn{
			{Text: "➕ Product", Unique: cbAdminProdCatMenu, Data: "go"},
			{Text: "🗑 Product", Unique: cbAdminProdDelMenu, Data: "go"},
		},
		[]keyboard.InlineBtn{
			{Text: "📦 Restock", Unique: cbAdminRestockMenu, Data: "go"},
			{Text: "✏️ About", Unique: cbAdminAbout, Data: "go"},
		},
		[]keyboard.InlineBtn{
			{Text: "🧾 Recent orders", Unique: cbAdminOrders, Data: fmt.Sprintf("%d", c.Sender().ID)},
		},
	)
	return tghelpers.SendText(c, "Admin panel:", &tele.SendOptions{ReplyMarkup: markup})
}

func (h *Handlers) onAdminCategoryAdd(c tele.Context) error {
	return h.driver.Start(c, h.addCategory, nil)
}

func (h *Handlers) onAdminCategoryDeleteMenu(c tele.Context) error {
	return h.categoryMenu(c, cbAdminCatDel, "Pick the category to delete (its products go too):")
}

func (h *Handlers) onAdminCategoryDelete(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.catalog.DeleteCategory(ctx, id); err != nil {
		return h.reportError(c, err)
	}
	return tghelpers.EditOrSendMD(c, "✅ Category deleted.")
}

func (h *Handlers) onAdminProductCategoryMenu(c tele.Context) error {
	return h.categoryMenu(c, cbAdminProdAdd, "Pick the category for the new product:")
}

func (h *Handlers) onAdminProductAdd(c tele.Context) error {
	categoryID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	seed := flow.Fields{}
	seed.SetInt64("category_id", categoryID)
	return h.driver.Start(c, h.addProduct, seed)
}

func (h *Handlers) onAdminProductDeleteMenu(c tele.Context) error {
	return h.productMenu(c, cbAdminProdDel, "Pick the product to delete:")
}

func (h *Handlers) onAdminProductDelete(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := h.catalog.DeleteProduct(ctx, id); err != nil {
		return h.reportError(c, err)
	}
	return tghelpers.EditOrSendMD(c, "✅ Product deleted.")
}

func (h *Handlers) onAdminRestockMenu(c tele.Context) error {
	return h.productMenu(c, cbAdminRestock, "Pick the product to restock:")
}

func (h *Handlers) onAdminRestock(c tele.Context) error {
	productID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	seed := flow.Fields{}
	seed.SetInt64("product_id", productID)
	return h.driver.Start(c, h.restock, seed)
}

func (h *Handlers) onAdminAbout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	current, err := h.catalog.About(ctx)
	if err != nil {
		return h.reportError(c, err)
	}
	return h.driver.Start(c, h.editAbout, flow.Fields{"current": current})
}

// onAdminOrders shows the admin's own settled orders plus nothing else; it
// reuses the buyer listing but is reachable only from the panel.
func (h *Handlers) onAdminOrders(c tele.Context) error {
	buyerID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	orders, err := h.store.ListOrders(ctx, buyerID)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(orders) == 0 {
		return tghelpers.EditOrSendMD(c, "No orders for this buyer.")
	}
	var b strings.Builder
	b.WriteString("Orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n%s — %s — %s BTC (buyer %d)",
			o.CreatedAt.Format("02.01.2006 15:04"), o.Reference, o.TotalBTC.String(), o.BuyerID)
	}
	return tghelpers.EditOrSendMD(c, b.String())
}

func (h *Handlers) categoryMenu(c tele.Context, unique, title string) error {
	ctx := tghelpers.BuildContext(c)
	cats, err := h.catalog.AllCategories(ctx)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(cats) == 0 {
		return tghelpers.EditOrSendMD(c, "No categories yet.")
	}
	btns := make([]keyboard.InlineBtn, 0, len(cats))
	for _, cat := range cats {
		btns = append(btns, keyboard.InlineBtn{
			Text:   cat.Name,
			Unique: unique,
			Data:   strconv.FormatInt(cat.ID, 10),
		})
	}
	return tghelpers.EditOrSendMD(c, title, keyboard.InlineButtonsNPerRow(btns, 2))
}

func (h *Handlers) productMenu(c tele.Context, unique, title string) error {
	ctx := tghelpers.BuildContext(c)
	products, err := h.catalog.AllProducts(ctx)
	if err != nil {
		return h.reportError(c, err)
	}
	if len(products) == 0 {
		return tghelpers.EditOrSendMD(c, "No products yet.")
	}
	btns := make([]keyboard.InlineBtn, 0, len(products))
	for _, p := range products {
		btns = append(btns, keyboard.InlineBtn{
			Text:   p.Name,
			Unique: unique,
			Data:   strconv.FormatInt(p.ID, 10),
		})
	}
	return tghelpers.EditOrSendMD(c, title, keyboard.InlineButtons(btns))
}
