package handlers

import (
	"net/http"
	"time"

	"ticket-checkout/internal/services"
	"ticket-checkout/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// AdminHandler serves organizer tooling. Its routes are bound with
// apis.RequireSuperuserAuth.
type AdminHandler struct {
	seatService *services.SeatService
	reaper      *services.Reaper
}

func NewAdminHandler(seatService *services.SeatService, reaper *services.Reaper) *AdminHandler {
	return &AdminHandler{
		seatService: seatService,
		reaper:      reaper,
	}
}

type seatInput struct {
	ID      string          `json:"id"`
	Section string          `json:"section"`
	Row     string          `json:"row"`
	Number  int             `json:"number"`
	Price   decimal.Decimal `json:"price"`
}

// CreateEvent - publish an event with its seat map
func (h *AdminHandler) CreateEvent(e *core.RequestEvent) error {
	var req struct {
		ID               string      `json:"id"`
		OrganizerID      string      `json:"organizer_id"`
		Name             string      `json:"name"`
		Venue            string      `json:"venue"`
		StartTime        time.Time   `json:"start_time"`
		AvailableTickets int         `json:"available_tickets"`
		Status           string      `json:"status"`
		Seats            []seatInput `json:"seats"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	seats := make([]models.Seat, 0, len(req.Seats))
	for _, s := range req.Seats {
		seats = append(seats, models.Seat{
			ID:      s.ID,
			Section: s.Section,
			Row:     s.Row,
			Number:  s.Number,
			Price:   s.Price,
		})
	}

	event, err := h.seatService.CreateEvent(e.Request.Context(), models.Event{
		ID:               req.ID,
		OrganizerID:      req.OrganizerID,
		Name:             req.Name,
		Venue:            req.Venue,
		StartTime:        req.StartTime,
		AvailableTickets: req.AvailableTickets,
		Status:           req.Status,
	}, seats)
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusCreated, event)
}

func (h *AdminHandler) GetInventory(e *core.RequestEvent) error {
	inv, err := h.seatService.Inventory(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, inv)
}

// SweepNow - run one reaper pass without waiting for the interval
func (h *AdminHandler) SweepNow(e *core.RequestEvent) error {
	stats, err := h.reaper.Sweep(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, stats)
}
