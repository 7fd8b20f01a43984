package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/domain"
)

func TestDeleteRefusedBySoldUnitsIsValidation(t *testing.T) {
	// order_lines pins every sold unit, so the cascade delete trips the
	// foreign key. The admin needs a clear verdict, not a retry hint.
	fkErr := &pq.Error{Code: "23503", Constraint: "order_lines_unit_id_fkey"}

	err := deleteRefusedError("product", fkErr)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "deactivate")
	assert.False(t, errors.Is(err, domain.ErrTransient))
}

func TestDeleteRefusedWrappedFKStillDetected(t *testing.T) {
	wrapped := fmt.Errorf("exec delete: %w", &pq.Error{Code: "23503"})

	err := deleteRefusedError("category", wrapped)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDeleteFailureStaysTransient(t *testing.T) {
	err := deleteRefusedError("product", errors.New("connection reset"))
	assert.True(t, errors.Is(err, domain.ErrTransient))
}
