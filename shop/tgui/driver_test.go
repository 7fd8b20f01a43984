package tgui

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/shop/domain"
	"github.com/m3rciful/shopbot/shop/flow"
	"github.com/m3rciful/shopbot/shop/storage"
)

// chatContext covers the tele.Context surface the driver touches: sender
// identity, message text, and plain sends captured for assertions.
type chatContext struct {
	tele.Context
	sender *tele.User
	text   string
	store  map[string]interface{}
	sent   []string
}

func newChatContext(userID int64, text string) *chatContext {
	return &chatContext{
		sender: &tele.User{ID: userID},
		text:   text,
		store:  make(map[string]interface{}),
	}
}

func (c *chatContext) Sender() *tele.User                { return c.sender }
func (c *chatContext) Chat() *tele.Chat                  { return &tele.Chat{ID: c.sender.ID} }
func (c *chatContext) Text() string                      { return c.text }
func (c *chatContext) Update() tele.Update               { return tele.Update{} }
func (c *chatContext) Get(key string) interface{}        { return c.store[key] }
func (c *chatContext) Set(key string, value interface{}) { c.store[key] = value }

func (c *chatContext) Send(what interface{}, opts ...interface{}) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func (c *chatContext) lastSent() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

// catalogAdminStub records mutations so tests can assert nothing committed.
type catalogAdminStub struct {
	categories []string
	products   []storage.CreateProductParams
	err        error
}

func (s *catalogAdminStub) CreateCategory(ctx context.Context, name string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.categories = append(s.categories, name)
	return int64(len(s.categories)), nil
}

func (s *catalogAdminStub) CreateProduct(ctx context.Context, p storage.CreateProductParams) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.products = append(s.products, p)
	return int64(len(s.products)), nil
}

func (s *catalogAdminStub) AddStock(ctx context.Context, productID int64, location string, qty int) error {
	return s.err
}

func (s *catalogAdminStub) UpdateAbout(ctx context.Context, text string) error {
	return s.err
}

func startAddProduct(t *testing.T, d *Driver, m *flow.AddProduct, userID int64) {
	t.Helper()
	seed := flow.Fields{}
	seed.SetInt64("category_id", 3)
	require.NoError(t, d.Start(newChatContext(userID, ""), m, seed))
}

func TestDriverCancelMidFlowClearsSession(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	admin := &catalogAdminStub{}
	m := flow.NewAddProduct(admin)
	d.Bind(m, flow.StepProductName, flow.StepProductDescription, flow.StepProductPrice)

	const userID = int64(42)
	startAddProduct(t, d, m, userID)
	require.True(t, mgr.InProgress(userID))
	assert.Equal(t, state.State("admin_add_product/product_name"), mgr.GetState(userID))

	step := newChatContext(userID, "Gift card")
	require.NoError(t, mgr.ManagerHandler(step))
	assert.Equal(t, state.State("admin_add_product/product_description"), mgr.GetState(userID))

	bag, ok := mgr.GetTemp(userID, fieldsKey)
	require.True(t, ok)
	assert.Equal(t, "Gift card", bag.(map[string]string)["name"])

	step2 := newChatContext(userID, "A prepaid card")
	require.NoError(t, mgr.ManagerHandler(step2))
	assert.Equal(t, state.State("admin_add_product/product_price"), mgr.GetState(userID))

	cancel := newChatContext(userID, ButtonCancel)
	require.NoError(t, mgr.ManagerHandler(cancel))

	assert.False(t, mgr.InProgress(userID))
	_, ok = mgr.GetTemp(userID, fieldsKey)
	assert.False(t, ok, "collected fields must not survive a cancel")
	assert.Equal(t, "Cancelled.", cancel.lastSent())
	assert.Empty(t, admin.products)
}

func TestDriverCancelCommand(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	admin := &catalogAdminStub{}
	m := flow.NewAddProduct(admin)
	d.Bind(m, flow.StepProductName)

	const userID = int64(42)
	idle := newChatContext(userID, "/cancel")
	require.NoError(t, d.Cancel(idle))
	assert.Equal(t, "Nothing to cancel.", idle.lastSent())

	startAddProduct(t, d, m, userID)
	active := newChatContext(userID, "/cancel")
	require.NoError(t, mgr.ManagerHandler(active))
	assert.False(t, mgr.InProgress(userID))
	assert.Equal(t, "Cancelled.", active.lastSent())
}

func TestDriverValidationKeepsSessionForRetry(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	m := flow.NewAddProduct(&catalogAdminStub{})
	d.Bind(m, flow.StepProductName)

	const userID = int64(42)
	startAddProduct(t, d, m, userID)

	bad := newChatContext(userID, "   ")
	require.NoError(t, mgr.ManagerHandler(bad))

	assert.True(t, mgr.InProgress(userID))
	assert.Equal(t, state.State("admin_add_product/product_name"), mgr.GetState(userID))
	assert.Contains(t, bad.lastSent(), "⚠️")

	// The seed survives for the retry.
	bag, ok := mgr.GetTemp(userID, fieldsKey)
	require.True(t, ok)
	assert.Equal(t, "3", bag.(map[string]string)["category_id"])
}

func TestDriverTransientErrorResetsSession(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	admin := &catalogAdminStub{err: domain.Transient("create category", errors.New("db down"))}
	m := flow.NewAddCategory(admin)
	d.Bind(m, flow.StepCategoryName)

	const userID = int64(42)
	require.NoError(t, d.Start(newChatContext(userID, ""), m, nil))
	require.True(t, mgr.InProgress(userID))

	msg := newChatContext(userID, "Books")
	require.NoError(t, mgr.ManagerHandler(msg))

	assert.False(t, mgr.InProgress(userID))
	assert.Contains(t, msg.lastSent(), "temporarily unavailable")
	_, ok := mgr.GetTemp(userID, fieldsKey)
	assert.False(t, ok)
}

func TestDriverBadStateResetsSession(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	m := flow.NewAddProduct(&catalogAdminStub{})

	// Begin without the category seed the machine demands.
	const userID = int64(42)
	start := newChatContext(userID, "")
	require.NoError(t, d.Start(start, m, nil))

	assert.False(t, mgr.InProgress(userID))
	assert.Contains(t, start.lastSent(), "start over")
}

func TestDriverReadsFieldsFromInjectedSession(t *testing.T) {
	mgr := state.NewMemoryManager()
	d := NewDriver(mgr, DriverHooks{})
	m := flow.NewAddProduct(&catalogAdminStub{})
	d.Bind(m, flow.StepProductName, flow.StepProductDescription)

	const userID = int64(42)
	startAddProduct(t, d, m, userID)

	h := state.WithSession(mgr)(mgr.ManagerHandler)
	step := newChatContext(userID, "Gift card")
	require.NoError(t, h(step))

	assert.Equal(t, state.State("admin_add_product/product_description"), mgr.GetState(userID))
	bag, ok := mgr.GetTemp(userID, fieldsKey)
	require.True(t, ok)
	assert.Equal(t, "Gift card", bag.(map[string]string)["name"])
}
