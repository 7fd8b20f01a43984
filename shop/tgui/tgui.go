package tgui

import (
	"context"
	"fmt"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	"github.com/m3rciful/shopbot/core/telegram/format"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/flow"
	"github.com/m3rciful/shopbot/shop/service"
	"github.com/m3rciful/shopbot/shop/storage"
)

// Callback keys.
const (
	cbCategory = "shop_cat"
	cbProduct  = "shop_prod"
	cbLocation = "shop_loc"
	cbUnitAdd  = "cart_add"

	cbCartRemove = "cart_del"
	cbCartClear  = "cart_clear"
	cbCheckout   = "cart_checkout"

	cbOrderView = "order_view"

	cbAdminCatAdd      = "adm_cat_add"
	cbAdminCatDelMenu  = "adm_cat_del_menu"
	cbAdminCatDel      = "adm_cat_del"
	cbAdminProdCatMenu = "adm_prod_cat_menu"
	cbAdminProdAdd     = "adm_prod_add"
	cbAdminProdDelMenu = "adm_prod_del_menu"
	cbAdminProdDel     = "adm_prod_del"
	cbAdminRestockMenu = "adm_restock_menu"
	cbAdminRestock     = "adm_restock"
	cbAdminAbout       = "adm_about"
	cbAdminOrders      = "adm_orders"
)

// Config carries the storefront settings the handlers need.
type Config struct {
	AdminID int64
	// Wallet is the BTC address buyers pay to.
	Wallet string
}

// Handlers binds the shop services to Telegram endpoints.
type Handlers struct {
	cfg     Config
	catalog *service.Catalog
	cart    *service.StoredCart
	store   *storage.Store
	rates   *service.RateCache
	driver  *Driver

	addCategory *flow.AddCategory
	addProduct  *flow.AddProduct
	restock     *flow.Restock
	editAbout   *flow.EditAbout
	checkout    *flow.Checkout
}

// Deps lists the collaborators Handlers are wired from.
type Deps struct {
	Config   Config
	Catalog  *service.Catalog
	Cart     *service.StoredCart
	Store    *storage.Store
	Rates    *service.RateCache
	Gate     *service.PaymentGate
	Settle   *service.Settlement
	Sessions state.Manager
}

// New builds the handler set and its flow machines.
func New(d Deps) *Handlers {
	h := &Handlers{
		cfg:         d.Config,
		catalog:     d.Catalog,
		cart:        d.Cart,
		store:       d.Store,
		rates:       d.Rates,
		addCategory: flow.NewAddCategory(d.Catalog),
		addProduct:  flow.NewAddProduct(d.Catalog),
		restock:     flow.NewRestock(d.Catalog),
		editAbout:   flow.NewEditAbout(d.Catalog),
		checkout:    flow.NewCheckout(d.Gate, d.Settle),
	}
	h.driver = NewDriver(d.Sessions, DriverHooks{
		DoneMarkup: func(c tele.Context) *tele.ReplyMarkup {
			return h.mainMenu(c.Sender().ID)
		},
		OnOrder:    h.notifyAdminOrder,
		OnConflict: h.showConflict,
	})
	return h
}

// Register wires commands, callbacks, flow steps, and the text fallback into
// the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.handleStart,
		Description: "Open the shop",
	})
	reg.RegisterCommand("/orders", commands.Command{
		Handler:     h.handleOrders,
		Description: "Your past orders",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.driver.Cancel,
		Description: "Abort the current action",
		Hidden:      true,
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.requireAdmin(h.handleAdmin),
		Description: "Admin panel",
		AdminOnly:   true,
		Hidden:      true,
	})

	for key, handler := range map[string]tele.HandlerFunc{
		cbCategory: h.onCategory,
		cbProduct:  h.onProduct,
		cbLocation: h.onLocation,
		cbUnitAdd:  h.onUnitAdd,

		cbCartRemove: h.onCartRemove,
		cbCartClear:  h.onCartClear,
		cbCheckout:   h.onCheckout,

		cbOrderView: h.onOrderView,

		cbAdminCatAdd:      h.requireAdmin(h.onAdminCategoryAdd),
		cbAdminCatDelMenu:  h.requireAdmin(h.onAdminCategoryDeleteMenu),
		cbAdminCatDel:      h.requireAdmin(h.onAdminCategoryDelete),
		cbAdminProdCatMenu: h.requireAdmin(h.onAdminProductCategoryMenu),
		cbAdminProdAdd:     h.requireAdmin(h.onAdminProductAdd),
		cbAdminProdDelMenu: h.requireAdmin(h.onAdminProductDeleteMenu),
		cbAdminProdDel:     h.requireAdmin(h.onAdminProductDelete),
		cbAdminRestockMenu: h.requireAdmin(h.onAdminRestockMenu),
		cbAdminRestock:     h.requireAdmin(h.onAdminRestock),
		cbAdminAbout:       h.requireAdmin(h.onAdminAbout),
		cbAdminOrders:      h.requireAdmin(h.onAdminOrders),
	} {
		if err := reg.RegisterCallback(key, handler); err != nil {
			logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.callback.failed",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
	}

	h.driver.Bind(h.addCategory, flow.StepCategoryName)
	h.driver.Bind(h.addProduct,
		flow.StepProductName, flow.StepProductDescription,
		flow.StepProductPrice, flow.StepProductPriceRUB,
		flow.StepProductContent, flow.StepProductLocations)
	h.driver.Bind(h.restock, flow.StepRestockLines)
	h.driver.Bind(h.editAbout, flow.StepAboutText)
	h.driver.Bind(h.checkout, flow.StepAwaitPayment)

	reg.SetTextFallback(h.handleMenuText)
}

// requireAdmin drops updates from anyone but the configured admin.
func (h *Handlers) requireAdmin(next tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RequireAdmin(middleware.AdminOptions{AdminID: h.cfg.AdminID}, next)
}

func (h *Handlers) notifyAdminOrder(c tele.Context, o *domain.Order) {
	if h.cfg.AdminID == 0 || c.Sender().ID == h.cfg.AdminID {
		return
	}
	ctx := tghelpers.BuildContext(c)
	text := fmt.Sprintf("💰 New order %s\nBuyer: %d\nLines: %d\nTotal: %s BTC",
		o.Reference, o.BuyerID, len(o.Lines), o.TotalBTC.String())
	if _, err := c.Bot().Send(&tele.User{ID: h.cfg.AdminID}, text); err != nil {
		logger.Warn(ctx, "tg", "admin.notify",
			slog.String("status", "fail"),
			slog.Int64("order_id", o.ID),
			slog.String("err", err.Error()),
		)
	}
}

// mdSafe escapes admin-entered text so markdown rendering cannot break on it.
func mdSafe(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1)
	if err != nil {
		return s
	}
	return out
}

func (h *Handlers) showConflict(c tele.Context, codes []string) {
	ctx := tghelpers.BuildContext(c)
	logger.Info(ctx, "tg", "checkout.conflict",
		slog.String("status", "skip"),
		slog.Int64("user_id", c.Sender().ID),
		slog.Int("count", len(codes)),
	)
}
