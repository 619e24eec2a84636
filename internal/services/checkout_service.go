package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"ticket-checkout/internal/status"
	"ticket-checkout/internal/store"
	"ticket-checkout/models"
	"ticket-checkout/monitoring"
	"ticket-checkout/utils"

	"github.com/google/uuid"
)

// CheckoutConfig carries the session TTL and the tax regions the server
// applies. Buyers never choose their own region.
type CheckoutConfig struct {
	TTL            time.Duration
	TaxRegion      string
	GuestTaxRegion string
}

// CheckoutService is the checkout session controller for registered and
// guest buyers.
type CheckoutService struct {
	store        *store.Store
	reservations *ReservationService
	fulfillment  *FulfillmentService
	tax          TaxPolicy
	dispatcher   Dispatcher
	monitor      *monitoring.Monitor
	cfg          CheckoutConfig
	now          func() time.Time
}

func NewCheckoutService(
	st *store.Store,
	reservations *ReservationService,
	fulfillment *FulfillmentService,
	tax TaxPolicy,
	dispatcher Dispatcher,
	monitor *monitoring.Monitor,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if dispatcher == nil {
		dispatcher = noopDispatcher{}
	}
	return &CheckoutService{
		store:        st,
		reservations: reservations,
		fulfillment:  fulfillment,
		tax:          tax,
		dispatcher:   dispatcher,
		monitor:      monitor,
		cfg:          cfg,
		now:          time.Now,
	}
}

type InitiateRequest struct {
	CartID        string
	UserID        string
	Billing       *models.BillingInfo
	PaymentMethod string
}

// Initiate snapshots the user's cart into a pending checkout session.
func (s *CheckoutService) Initiate(ctx context.Context, req InitiateRequest) (*models.CheckoutSession, error) {
	cart, err := s.store.Queries().FindCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if cart.IsGuest() || cart.OwnerID != req.UserID {
		return nil, status.NotFound("cart", req.CartID)
	}

	sess := &models.CheckoutSession{UserID: req.UserID, Region: s.cfg.TaxRegion}
	return s.initiate(ctx, cart, sess, req.Billing, req.PaymentMethod)
}

// InitiateGuestCheckout snapshots a guest cart; the contact tuple takes the
// place of the user id and the guest tax region always applies.
func (s *CheckoutService) InitiateGuestCheckout(ctx context.Context, cartID string, contact models.GuestContact, billing *models.BillingInfo, paymentMethod string) (*models.CheckoutSession, error) {
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return nil, status.Invalid("guest email %q is not valid", contact.Email)
	}

	cart, err := s.store.Queries().FindCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.IsGuest() {
		return nil, status.NotFound("guest cart", cartID)
	}

	sess := &models.CheckoutSession{Guest: &contact, Region: s.cfg.GuestTaxRegion}
	return s.initiate(ctx, cart, sess, billing, paymentMethod)
}

func (s *CheckoutService) initiate(ctx context.Context, cart *models.Cart, sess *models.CheckoutSession, billing *models.BillingInfo, paymentMethod string) (*models.CheckoutSession, error) {
	if cart.Status != models.CartActive {
		return nil, &status.InvalidStateError{Entity: "cart", ID: cart.ID, Current: cart.Status}
	}
	if billing.IsZero() {
		return nil, status.ErrMissingBillingInfo
	}
	if strings.TrimSpace(billing.Email) == "" {
		return nil, status.Invalid("billing email is required")
	}
	if strings.TrimSpace(paymentMethod) == "" {
		return nil, status.Invalid("payment method is required")
	}

	now := s.now()
	sess.ID = uuid.NewString()
	sess.CartID = cart.ID
	sess.Billing = *billing
	sess.PaymentMethod = paymentMethod
	sess.Status = models.CheckoutPending
	sess.ExpiresAt = now.Add(s.cfg.TTL)
	sess.CreatedAt = now

	err := s.store.Tx(ctx, func(q *store.Queries) error {
		items, err := q.ListCartItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return status.ErrEmptyCart
		}

		// Seats must stay held for as long as the session can complete.
		for _, it := range items {
			if it.ReservationID == "" {
				continue
			}
			if err := s.reservations.holdUntil(ctx, q, it.ReservationID, cart.Holder(), sess.ExpiresAt, now); err != nil {
				return err
			}
		}

		subtotal, afterDiscount := cartTotals(items, cart.DiscountAmount)
		sess.Items = items
		sess.Subtotal = subtotal
		sess.DiscountAmount = cart.DiscountAmount
		if sess.DiscountAmount.GreaterThan(subtotal) {
			sess.DiscountAmount = subtotal
		}
		if sess.TaxAmount, err = s.tax.Tax(sess.Region, afterDiscount); err != nil {
			return err
		}
		sess.TotalAmount = afterDiscount.Add(sess.TaxAmount)

		if err := q.InsertCheckout(ctx, sess); err != nil {
			return err
		}
		cart.Subtotal, cart.TotalAmount = subtotal, afterDiscount
		return q.UpdateCartTotals(ctx, cart, now)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("checkout initiated",
		"checkout_id", sess.ID,
		"cart_id", cart.ID,
		"guest", sess.IsGuest(),
		"total_amount", sess.TotalAmount.String(),
	)
	return sess, nil
}

func (s *CheckoutService) Get(ctx context.Context, checkoutID string) (*models.CheckoutSession, error) {
	return s.store.Queries().FindCheckout(ctx, checkoutID)
}

// Complete fulfils a checkout against a completed payment. Repeated calls
// for the same checkout return the original order.
func (s *CheckoutService) Complete(ctx context.Context, checkoutID, paymentRef string) (*models.CheckoutResult, error) {
	q := s.store.Queries()

	sess, err := q.FindCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.CheckoutCompleted {
		s.monitor.TrackCheckoutCompletion("replayed")
		return s.summary(ctx, q, checkoutID)
	}

	now := s.now()
	if err := checkPending(sess, now); err != nil {
		return nil, err
	}

	spentBy := "checkout:" + sess.ID
	payment, err := clearedPayment(ctx, q, paymentRef, spentBy)
	if err != nil {
		return nil, err
	}
	if payment.CheckoutID != sess.ID {
		return nil, status.Invalid("payment %s belongs to another purchase", paymentRef)
	}
	if payment.Amount.LessThan(sess.TotalAmount) {
		return nil, status.Invalid("payment %s of %s does not cover %s", paymentRef, payment.Amount, sess.TotalAmount)
	}

	var code string
	if sess.IsGuest() {
		if code, err = utils.ConfirmationCode(); err != nil {
			return nil, fmt.Errorf("confirmation code: %w", err)
		}
	}

	orderID := uuid.NewString()
	var (
		issued   *Fulfillment
		replayed bool
	)
	err = s.store.Tx(ctx, func(q *store.Queries) error {
		n, err := q.CompleteCheckout(ctx, sess.ID, orderID, now)
		if err != nil {
			return fmt.Errorf("complete checkout %s: %w", sess.ID, err)
		}
		if n == 0 {
			current, err := q.FindCheckout(ctx, sess.ID)
			if err != nil {
				return err
			}
			if current.Status == models.CheckoutCompleted {
				replayed = true
				return nil
			}
			return checkPending(current, now)
		}
		if err := spendPayment(ctx, q, payment, spentBy, now); err != nil {
			return err
		}

		issued, err = s.fulfillment.Issue(ctx, q, IssueRequest{
			Session:          sess,
			OrderID:          orderID,
			PaymentRef:       paymentRef,
			ConfirmationCode: code,
			Now:              now,
		})
		if err != nil {
			return err
		}

		n, err = q.SetCartStatus(ctx, sess.CartID, models.CartActive, models.CartCompleted, now)
		if err != nil {
			return fmt.Errorf("complete cart %s: %w", sess.CartID, err)
		}
		if n == 0 {
			return status.Conflict("cart %s is no longer active", sess.CartID)
		}
		return nil
	})
	if err != nil {
		s.monitor.TrackCheckoutCompletion("failed")
		slog.Warn("checkout completion failed", "checkout_id", sess.ID, "payment_ref", paymentRef, "error", err)
		return nil, err
	}
	if replayed {
		s.monitor.TrackCheckoutCompletion("replayed")
		return s.summary(ctx, s.store.Queries(), sess.ID)
	}

	s.monitor.TrackCheckoutCompletion("won")
	order := issued.Order
	slog.Info("checkout completed",
		"checkout_id", sess.ID,
		"order_id", order.ID,
		"tickets", len(order.Tickets),
		"total_amount", order.TotalAmount.String(),
	)

	ev := CheckoutCompleted{
		CheckoutID:       sess.ID,
		OrderID:          order.ID,
		UserID:           sess.UserID,
		GuestEmail:       order.GuestEmail,
		ConfirmationCode: order.ConfirmationCode,
		TicketCount:      len(order.Tickets),
		TotalAmount:      order.TotalAmount,
		Revenue:          issued.Revenue,
	}
	if err := s.dispatcher.CheckoutCompleted(ctx, ev); err != nil {
		slog.Error("dispatch checkout side effects", "checkout_id", sess.ID, "order_id", order.ID, "error", err)
	}

	return &models.CheckoutResult{
		CheckoutID:       sess.ID,
		OrderID:          order.ID,
		TicketsCreated:   len(order.Tickets),
		TotalAmount:      order.TotalAmount,
		ConfirmationCode: order.ConfirmationCode,
	}, nil
}

// CompleteGuestCheckout is Complete restricted to guest sessions. The
// result carries the confirmation code the guest looks tickets up with.
func (s *CheckoutService) CompleteGuestCheckout(ctx context.Context, checkoutID, paymentRef string) (*models.CheckoutResult, error) {
	sess, err := s.store.Queries().FindCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if !sess.IsGuest() {
		return nil, status.ErrCheckoutNotFound
	}
	return s.Complete(ctx, checkoutID, paymentRef)
}

// Cancel abandons a pending checkout. Its reservations stay pending until
// they are released or expire.
func (s *CheckoutService) Cancel(ctx context.Context, checkoutID string) error {
	q := s.store.Queries()
	n, err := q.CancelCheckout(ctx, checkoutID, s.now())
	if err != nil {
		return fmt.Errorf("cancel checkout %s: %w", checkoutID, err)
	}
	if n > 0 {
		slog.Info("checkout cancelled", "checkout_id", checkoutID)
		return nil
	}

	sess, err := q.FindCheckout(ctx, checkoutID)
	if err != nil {
		return err
	}
	return &status.InvalidStateError{Entity: "checkout", ID: checkoutID, Current: sess.Status}
}

// GetTicketsByEmailAndCode is the guest's way back to their order.
func (s *CheckoutService) GetTicketsByEmailAndCode(ctx context.Context, email, code string) (*models.Order, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return nil, status.Invalid("email and confirmation code are required")
	}
	return s.store.Queries().FindGuestOrder(ctx, email, code)
}

func (s *CheckoutService) summary(ctx context.Context, q *store.Queries, checkoutID string) (*models.CheckoutResult, error) {
	order, err := q.FindOrderByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	return &models.CheckoutResult{
		CheckoutID:       checkoutID,
		OrderID:          order.ID,
		TicketsCreated:   len(order.Tickets),
		TotalAmount:      order.TotalAmount,
		ConfirmationCode: order.ConfirmationCode,
	}, nil
}

func checkPending(sess *models.CheckoutSession, now time.Time) error {
	if sess.Status != models.CheckoutPending {
		return &status.InvalidStateError{Entity: "checkout", ID: sess.ID, Current: sess.Status}
	}
	if !now.Before(sess.ExpiresAt) {
		return &status.InvalidStateError{Entity: "checkout", ID: sess.ID, Current: models.CheckoutExpired}
	}
	return nil
}
