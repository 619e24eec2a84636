package status

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the services wraps exactly one of
// these so the transport layer can map it without inspecting messages.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
	ErrUpstream     = errors.New("upstream failure")
)

var (
	ErrSeatUnavailable     = fmt.Errorf("seat: seats unavailable: %w", ErrConflict)
	ErrPaymentNotCompleted = fmt.Errorf("payment: payment not completed: %w", ErrInvalidState)
	ErrPaymentUnderReview  = errors.New("payment: payment held for review")
	ErrCheckoutNotFound    = fmt.Errorf("checkout: checkout not found: %w", ErrNotFound)
	ErrEmptyCart           = fmt.Errorf("cart: cart is empty: %w", ErrValidation)
	ErrMissingBillingInfo  = fmt.Errorf("checkout: billing info is required: %w", ErrValidation)
	ErrRefCodeNotFound     = fmt.Errorf("ref code: ref code not found: %w", ErrNotFound)
)

// SeatUnavailableError reports which seats of a claim could not be taken.
type SeatUnavailableError struct {
	Requested   int
	Available   int
	Unavailable []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("%d of %d seats no longer available", e.Requested-e.Available, e.Requested)
}

func (e *SeatUnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable || target == ErrConflict
}

// InvalidStateError is returned when an operation is attempted outside the
// state it is valid in. Current is the state observed at rejection time.
type InvalidStateError struct {
	Entity  string
	ID      string
	Current string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s", e.Entity, e.ID, e.Current)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
