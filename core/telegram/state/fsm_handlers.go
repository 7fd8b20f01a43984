package state

import (
	"errors"

	tele "gopkg.in/telebot.v4"
)

// ErrNoHandler reports a session whose state has no registered handler, e.g.
// after a deploy renamed a flow step. Callers should clear the routing outcome
// and treat the update as ordinary input.
var ErrNoHandler = errors.New("no handler registered for state")

var fsmHandlers = map[State]tele.HandlerFunc{}

// RegisterHandler associates a state with its handler.
func RegisterHandler(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	fsmHandlers[st] = h
}
