package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FulfillmentService turns a won checkout into an order with tickets and
// settles the inventory it consumed. It is only ever called once per
// checkout, from inside the completing transaction.
type FulfillmentService struct {
	reservations *ReservationService
}

func NewFulfillmentService(reservations *ReservationService) *FulfillmentService {
	return &FulfillmentService{reservations: reservations}
}

type IssueRequest struct {
	Session          *models.CheckoutSession
	OrderID          string
	PaymentRef       string
	ConfirmationCode string
	Now              time.Time
}

type Fulfillment struct {
	Order   *models.Order
	Revenue []EventRevenue
}

func (f *FulfillmentService) Issue(ctx context.Context, q *store.Queries, req IssueRequest) (*Fulfillment, error) {
	sess := req.Session
	order := &models.Order{
		ID:               req.OrderID,
		CheckoutID:       sess.ID,
		CartID:           sess.CartID,
		UserID:           sess.UserID,
		ConfirmationCode: req.ConfirmationCode,
		TotalAmount:      sess.TotalAmount,
		Status:           models.OrderConfirmed,
		CreatedAt:        req.Now,
	}
	if sess.Guest != nil {
		order.GuestEmail = sess.Guest.Email
	}

	type eventUsage struct {
		seated  int
		general int
		revenue decimal.Decimal
	}
	usage := map[string]*eventUsage{}

	for _, it := range sess.Items {
		u, ok := usage[it.EventID]
		if !ok {
			u = &eventUsage{revenue: decimal.Zero}
			usage[it.EventID] = u
		}
		u.revenue = u.revenue.Add(it.TotalPrice)

		for i := 0; i < it.Quantity; i++ {
			t := models.Ticket{
				ID:         uuid.NewString(),
				OrderID:    order.ID,
				EventID:    it.EventID,
				TicketType: it.TicketType,
				Price:      it.UnitPrice,
				Status:     models.TicketConfirmed,
				CreatedAt:  req.Now,
			}
			if i < len(it.SeatIDs) {
				t.SeatID = it.SeatIDs[i]
				u.seated++
			} else {
				u.general++
			}
			order.Tickets = append(order.Tickets, t)
		}

		if it.ReservationID == "" {
			continue
		}
		r, err := q.FindReservation(ctx, it.ReservationID)
		if err != nil {
			return nil, err
		}
		if _, err := f.reservations.confirmHeld(ctx, q, r, req.PaymentRef, order.ID, req.Now); err != nil {
			return nil, err
		}
	}

	if err := q.InsertOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := q.InsertTickets(ctx, order.Tickets); err != nil {
		return nil, err
	}

	eventIDs := make([]string, 0, len(usage))
	for id := range usage {
		eventIDs = append(eventIDs, id)
	}
	sort.Strings(eventIDs)

	revenue := make([]EventRevenue, 0, len(eventIDs))
	for _, id := range eventIDs {
		u := usage[id]
		event, err := q.FindEvent(ctx, id)
		if err != nil {
			return nil, err
		}

		n, err := q.DecrementEventInventory(ctx, id, u.seated, u.general)
		if err != nil {
			return nil, fmt.Errorf("decrement inventory of event %s: %w", id, err)
		}
		if n == 0 {
			return nil, status.Conflict("event %s has %d tickets left, %d requested", id, event.AvailableTickets, u.general)
		}

		revenue = append(revenue, EventRevenue{EventID: id, OrganizerID: event.OrganizerID, Amount: u.revenue})
	}

	return &Fulfillment{Order: order, Revenue: revenue}, nil
}
