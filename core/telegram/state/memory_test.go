package state

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

// stubContext covers the small tele.Context surface the manager touches.
type stubContext struct {
	tele.Context
	sender *tele.User
	store  map[string]interface{}
}

func newStubContext(userID int64) *stubContext {
	return &stubContext{
		sender: &tele.User{ID: userID},
		store:  make(map[string]interface{}),
	}
}

func (c *stubContext) Sender() *tele.User                { return c.sender }
func (c *stubContext) Chat() *tele.Chat                  { return &tele.Chat{ID: c.sender.ID} }
func (c *stubContext) Update() tele.Update               { return tele.Update{} }
func (c *stubContext) Get(key string) interface{}        { return c.store[key] }
func (c *stubContext) Set(key string, value interface{}) { c.store[key] = value }

func TestManagerHandlerDispatchesRegisteredState(t *testing.T) {
	mgr := NewMemoryManager()

	called := false
	RegisterHandler(State("dialog/step"), func(c tele.Context) error {
		called = true
		return nil
	})
	mgr.SetState(7, State("dialog/step"))

	if err := mgr.ManagerHandler(newStubContext(7)); err != nil {
		t.Fatalf("ManagerHandler: %v", err)
	}
	if !called {
		t.Fatal("registered handler was not invoked")
	}
	if !mgr.InProgress(7) {
		t.Fatal("dispatch must not touch the session state")
	}
}

func TestManagerHandlerClearsUnboundState(t *testing.T) {
	mgr := NewMemoryManager()
	mgr.SetState(9, State("ghost/step"))

	err := mgr.ManagerHandler(newStubContext(9))
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
	if mgr.InProgress(9) {
		t.Fatal("unbound state must be cleared so the user is not stuck")
	}
	if got := mgr.GetState(9); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}
}

func TestManagerHandlerIdleUserIsNoop(t *testing.T) {
	mgr := NewMemoryManager()

	err := mgr.ManagerHandler(newStubContext(11))
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
}
