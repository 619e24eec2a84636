package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticket-checkout/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// fail renders a service error. Domain errors carry their message and any
// structured detail; anything else becomes an opaque 500.
func fail(e *core.RequestEvent, err error) error {
	var (
		unavailable *status.SeatUnavailableError
		invalid     *status.InvalidStateError
	)

	switch {
	case errors.As(err, &unavailable):
		return e.JSON(http.StatusConflict, map[string]any{
			"status":  http.StatusConflict,
			"message": unavailable.Error(),
			"data": map[string]any{
				"requested":   unavailable.Requested,
				"available":   unavailable.Available,
				"unavailable": unavailable.Unavailable,
			},
		})
	case errors.Is(err, status.ErrPaymentUnderReview):
		// Accepted but held; the session stays pending until review clears.
		return errorJSON(e, http.StatusAccepted, err)
	case errors.Is(err, status.ErrPaymentNotCompleted):
		return errorJSON(e, http.StatusPaymentRequired, err)
	case errors.As(err, &invalid):
		return e.JSON(http.StatusConflict, map[string]any{
			"status":  http.StatusConflict,
			"message": invalid.Error(),
			"data": map[string]any{
				"entity":  invalid.Entity,
				"id":      invalid.ID,
				"current": invalid.Current,
			},
		})
	case errors.Is(err, status.ErrNotFound):
		return errorJSON(e, http.StatusNotFound, err)
	case errors.Is(err, status.ErrConflict), errors.Is(err, status.ErrInvalidState):
		return errorJSON(e, http.StatusConflict, err)
	case errors.Is(err, status.ErrValidation):
		return errorJSON(e, http.StatusUnprocessableEntity, err)
	case errors.Is(err, status.ErrUpstream):
		slog.Error("upstream failure", "path", e.Request.URL.Path, "error", err)
		return apis.NewApiError(http.StatusBadGateway, "upstream service unavailable", nil)
	default:
		slog.Error("request failed", "method", e.Request.Method, "path", e.Request.URL.Path, "error", err)
		return apis.NewInternalServerError("internal error", nil)
	}
}

func errorJSON(e *core.RequestEvent, code int, err error) error {
	return e.JSON(code, map[string]any{
		"status":  code,
		"message": err.Error(),
		"data":    map[string]any{},
	})
}

// userID is the authenticated buyer. Routes that call it are bound with
// apis.RequireAuth.
func userID(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return e.Auth.Id, nil
}
