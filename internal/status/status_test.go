package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeatUnavailableError(t *testing.T) {
	err := &SeatUnavailableError{Requested: 4, Available: 2, Unavailable: []string{"B", "C"}}

	assert.Equal(t, "2 of 4 seats no longer available", err.Error())
	assert.True(t, errors.Is(err, ErrSeatUnavailable))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrInvalidState))

	wrapped := fmt.Errorf("reserve: %w", err)
	var target *SeatUnavailableError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 2, target.Available)
}

func TestInvalidStateError(t *testing.T) {
	err := &InvalidStateError{Entity: "reservation", ID: "r1", Current: "expired"}

	assert.Contains(t, err.Error(), "expired")
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestDomainErrorClasses(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class error
	}{
		{"payment not completed", ErrPaymentNotCompleted, ErrInvalidState},
		{"checkout not found", ErrCheckoutNotFound, ErrNotFound},
		{"empty cart", ErrEmptyCart, ErrValidation},
		{"missing billing", ErrMissingBillingInfo, ErrValidation},
		{"not found helper", NotFound("event", "e1"), ErrNotFound},
		{"invalid helper", Invalid("quantity must be positive"), ErrValidation},
		{"conflict helper", Conflict("seat %s taken", "A1"), ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.class)
		})
	}
}
