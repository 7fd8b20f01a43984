package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	cases := []struct {
		err   error
		class error
		code  string
	}{
		{&ValidationError{Field: "price", Reason: "must be positive"}, ErrValidation, "VALIDATION"},
		{&NotFoundError{Entity: "unit", Ref: "7"}, ErrNotFound, "NOT_FOUND"},
		{&ConflictError{UnitCodes: []string{"U-A"}}, ErrConflict, "CONFLICT"},
		{&TransientError{Op: "lock units", Err: errors.New("timeout")}, ErrTransient, "TRANSIENT"},
		{&FatalStateError{Step: "locations", Missing: "category_id"}, ErrFatalState, "FATAL_STATE"},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.class, tc.err.Error())
		coder, ok := tc.err.(interface{ Code() string })
		assert.True(t, ok)
		assert.Equal(t, tc.code, coder.Code())
	}
}

func TestRateUnavailableIsTransient(t *testing.T) {
	assert.ErrorIs(t, ErrRateUnavailable, ErrTransient)
}

func TestTransientPassesThroughClassifiedErrors(t *testing.T) {
	conflict := &ConflictError{UnitCodes: []string{"U-A"}}
	assert.Same(t, error(conflict), Transient("claim", conflict))

	wrapped := Transient("lock units", errors.New("connection reset"))
	assert.ErrorIs(t, wrapped, ErrTransient)
	assert.Nil(t, Transient("noop", nil))
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "invalid price: must be positive",
		(&ValidationError{Field: "price", Reason: "must be positive"}).Error())
	assert.Equal(t, "invalid input: empty",
		(&ValidationError{Reason: "empty"}).Error())
}
