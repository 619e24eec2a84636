package handlers

import (
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/status"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SeatHandler struct {
	seatService        *services.SeatService
	reservationService *services.ReservationService
}

func NewSeatHandler(seatService *services.SeatService, reservationService *services.ReservationService) *SeatHandler {
	return &SeatHandler{
		seatService:        seatService,
		reservationService: reservationService,
	}
}

// GetSeats - seat map grouped by section with availability counts
func (h *SeatHandler) GetSeats(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	availability, err := h.seatService.GetSeatAvailability(e.Request.Context(), eventID)
	if err != nil {
		return fail(e, err)
	}

	sections := make(map[string][]models.Seat)
	for _, seat := range availability.Seats {
		sections[seat.Section] = append(sections[seat.Section], seat)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id":        eventID,
		"sections":        sections,
		"total_seats":     len(availability.Seats),
		"available_seats": availability.Counts[models.SeatAvailable],
		"counts":          availability.Counts,
	})
}

// Reserve - hold a set of seats for the caller
func (h *SeatHandler) Reserve(e *core.RequestEvent) error {
	holder, err := userID(e)
	if err != nil {
		return err
	}

	var req struct {
		EventID string   `json:"event_id"`
		SeatIDs []string `json:"seat_ids"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reservation, err := h.reservationService.Reserve(e.Request.Context(), req.EventID, holder, req.SeatIDs)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, reservation)
}

func (h *SeatHandler) GetReservation(e *core.RequestEvent) error {
	holder, err := userID(e)
	if err != nil {
		return err
	}

	id := e.Request.PathValue("reservationId")
	reservation, err := h.reservationService.Get(e.Request.Context(), id)
	if err != nil {
		return fail(e, err)
	}
	if reservation.Holder != holder {
		return fail(e, status.NotFound("reservation", id))
	}
	return e.JSON(http.StatusOK, reservation)
}

// Release - give back a pending hold
func (h *SeatHandler) Release(e *core.RequestEvent) error {
	holder, err := userID(e)
	if err != nil {
		return err
	}

	id := e.Request.PathValue("reservationId")
	released, err := h.reservationService.Release(e.Request.Context(), id, holder)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"reservation_id": id,
		"status":         models.ReservationReleased,
		"seats_released": released,
	})
}

// Confirm - sell a held seat set against a completed payment
func (h *SeatHandler) Confirm(e *core.RequestEvent) error {
	holder, err := userID(e)
	if err != nil {
		return err
	}

	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ctx := e.Request.Context()
	id := e.Request.PathValue("reservationId")

	reservation, err := h.reservationService.Get(ctx, id)
	if err != nil {
		return fail(e, err)
	}
	if reservation.Holder != holder {
		return fail(e, status.NotFound("reservation", id))
	}

	sold, err := h.reservationService.Confirm(ctx, id, req.PaymentRef)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"reservation_id": id,
		"status":         models.ReservationConfirmed,
		"seats_sold":     sold,
	})
}
