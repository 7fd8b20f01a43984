// Package tgui wires the storefront to Telegram: menus, catalog browsing,
// cart handling, the admin panel, and the flow driver that persists
// conversation steps in the FSM session store.
package tgui

import (
	"errors"
	"strings"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/flow"
)

// ButtonCancel aborts any active conversation flow.
const ButtonCancel = "❌ Cancel"

const fieldsKey = "flow_fields"

// DriverHooks let the wiring react to flow outcomes without the driver
// knowing about menus or admin chats.
type DriverHooks struct {
	// DoneMarkup supplies the keyboard restored when a flow ends.
	DoneMarkup func(c tele.Context) *tele.ReplyMarkup
	// OnOrder fires after a settlement committed inside a flow.
	OnOrder func(c tele.Context, o *domain.Order)
	// OnConflict fires when settlement lost units to a concurrent buyer.
	OnConflict func(c tele.Context, codes []string)
}

// Driver runs flow machines on top of the session manager: it encodes
// (machine, step) as the FSM state, keeps the collected fields in session
// temp data, and maps the error taxonomy onto chat behaviour.
type Driver struct {
	mgr   state.Manager
	hooks DriverHooks
}

// NewDriver builds a flow driver over the session manager.
func NewDriver(mgr state.Manager, hooks DriverHooks) *Driver {
	return &Driver{mgr: mgr, hooks: hooks}
}

func flowState(m flow.Machine, step flow.Step) state.State {
	return state.State(m.Name() + "/" + string(step))
}

// Bind registers an FSM handler for each step of the machine so text updates
// reach the right transition while the flow is active.
func (d *Driver) Bind(m flow.Machine, steps ...flow.Step) {
	for _, s := range steps {
		step := s
		state.RegisterHandler(flowState(m, step), func(c tele.Context) error {
			return d.resume(c, m, step)
		})
	}
}

// Start begins a flow for the sender and sends the first prompt.
func (d *Driver) Start(c tele.Context, m flow.Machine, seed flow.Fields) error {
	if seed == nil {
		seed = flow.Fields{}
	}
	ctx := tghelpers.BuildContext(c)
	res, err := m.Begin(ctx, seed)
	if err != nil {
		return d.fail(c, m, err)
	}
	return d.apply(c, m, res)
}

func (d *Driver) resume(c tele.Context, m flow.Machine, step flow.Step) error {
	userID := c.Sender().ID
	text := c.Text()
	if text == ButtonCancel || strings.EqualFold(strings.TrimSpace(text), "/cancel") {
		d.reset(userID)
		return tghelpers.SendText(c, "Cancelled.", d.doneOpts(c))
	}

	ctx := tghelpers.BuildContext(c)
	res, err := m.Transition(ctx, step, d.fields(c, userID), flow.Input{UserID: userID, Text: text})
	if err != nil {
		return d.fail(c, m, err)
	}
	return d.apply(c, m, res)
}

// Cancel aborts whatever flow the sender has active.
func (d *Driver) Cancel(c tele.Context) error {
	userID := c.Sender().ID
	if !d.mgr.InProgress(userID) {
		return tghelpers.SendText(c, "Nothing to cancel.", d.doneOpts(c))
	}
	d.reset(userID)
	return tghelpers.SendText(c, "Cancelled.", d.doneOpts(c))
}

func (d *Driver) apply(c tele.Context, m flow.Machine, res flow.Result) error {
	userID := c.Sender().ID
	out := res.Output

	if res.Next == flow.StepDone {
		d.reset(userID)
		if len(out.ConflictCodes) > 0 && d.hooks.OnConflict != nil {
			d.hooks.OnConflict(c, out.ConflictCodes)
		}
		if err := tghelpers.SendText(c, out.Text, d.doneOpts(c)); err != nil {
			return err
		}
		if out.Order != nil && d.hooks.OnOrder != nil {
			d.hooks.OnOrder(c, out.Order)
		}
		return nil
	}

	d.mgr.SetState(userID, flowState(m, res.Next))
	d.mgr.SetTemp(userID, fieldsKey, map[string]string(res.Fields))
	return tghelpers.SendText(c, out.Text, promptOpts())
}

// fail maps the error taxonomy onto chat behaviour: validation keeps the
// session alive for another attempt, everything else resets to idle.
func (d *Driver) fail(c tele.Context, m flow.Machine, err error) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return tghelpers.SendText(c, "⚠️ "+verr.Error(), promptOpts())
	}

	d.reset(userID)
	logger.Warn(ctx, "tg.flow", "flow.reset",
		slog.String("status", "fail"),
		slog.String("machine", m.Name()),
		slog.Int64("user_id", userID),
		slog.String("err", err.Error()),
	)

	var ferr *domain.FatalStateError
	switch {
	case errors.As(err, &ferr):
		return tghelpers.SendText(c, "This conversation got into a bad state and was reset. Please start over.", d.doneOpts(c))
	case errors.Is(err, domain.ErrTransient):
		return tghelpers.SendText(c, "Service is temporarily unavailable. Please try again in a minute.", d.doneOpts(c))
	default:
		return tghelpers.SendText(c, "Unexpected error. Please try again.", d.doneOpts(c))
	}
}

// fields reads the collected flow fields, preferring the session injected by
// the middleware chain and falling back to the manager for direct calls.
func (d *Driver) fields(c tele.Context, userID int64) flow.Fields {
	if sess, ok := state.SessionFrom(c); ok {
		if raw, ok := sess.TempData[fieldsKey].(map[string]string); ok {
			return flow.Fields(raw)
		}
	}
	v, ok := d.mgr.GetTemp(userID, fieldsKey)
	if !ok {
		return flow.Fields{}
	}
	raw, ok := v.(map[string]string)
	if !ok {
		return flow.Fields{}
	}
	return flow.Fields(raw)
}

func (d *Driver) reset(userID int64) {
	d.mgr.ClearState(userID)
	d.mgr.ClearTemp(userID, fieldsKey)
}

func (d *Driver) doneOpts(c tele.Context) *tele.SendOptions {
	opts := &tele.SendOptions{}
	if d.hooks.DoneMarkup != nil {
		opts.ReplyMarkup = d.hooks.DoneMarkup(c)
	}
	return opts
}

func promptOpts() *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: keyboard.ReplyButtons([]string{ButtonCancel})}
}
