package middleware

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

type senderContext struct {
	tele.Context
	sender *tele.User
}

func (c *senderContext) Sender() *tele.User { return c.sender }

func TestRequireAdminPassesConfiguredAdmin(t *testing.T) {
	called := false
	h := RequireAdmin(AdminOptions{AdminID: 42}, func(c tele.Context) error {
		called = true
		return nil
	})

	if err := h(&senderContext{sender: &tele.User{ID: 42}}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Fatal("admin should reach the handler")
	}
}

func TestRequireAdminDropsOthers(t *testing.T) {
	rejected := false
	h := RequireAdmin(AdminOptions{
		AdminID:  42,
		OnReject: func(c tele.Context) error { rejected = true; return nil },
	}, func(c tele.Context) error {
		t.Fatal("non-admin must not reach the handler")
		return nil
	})

	if err := h(&senderContext{sender: &tele.User{ID: 7}}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !rejected {
		t.Fatal("OnReject should fire for non-admin")
	}
}

func TestRequireAdminLocksWhenUnconfigured(t *testing.T) {
	h := RequireAdmin(AdminOptions{}, func(c tele.Context) error {
		t.Fatal("handler must stay locked with no admin configured")
		return nil
	})

	if err := h(&senderContext{sender: &tele.User{ID: 42}}); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestAdminOnlyMiddlewareFiltersNonAdmin(t *testing.T) {
	mw := AdminOnlyMiddleware(AdminOptions{AdminID: 42})
	called := false
	h := mw(func(c tele.Context) error {
		called = true
		return nil
	})

	if err := h(&senderContext{sender: &tele.User{ID: 7}}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if called {
		t.Fatal("non-admin passed the middleware")
	}

	if err := h(&senderContext{sender: &tele.User{ID: 42}}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Fatal("admin blocked by the middleware")
	}
}
