package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	eventSessionCompleted      = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// startAttempts bounds how often a card start re-reads the payment after
// losing a race with another start.
const startAttempts = 3

type Store interface {
	GetByItem(ctx context.Context, itemID string) (*models.Payment, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	StartPending(ctx context.Context, p *models.Payment, expectSession string) (bool, error)
	MarkCompleted(ctx context.Context, p *models.Payment, at time.Time, notice *models.Notification) (bool, error)
	MarkPending(ctx context.Context, itemID string, at time.Time) (bool, error)
}

type ItemReader interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (*models.AuctionSettings, error)
}

// Notifier is poked after a completion wrote its receipt notification.
type Notifier interface {
	Wake()
}

// Tracker reconciles payment state for sold items. Completion can arrive
// from the processor webhook, a client confirmation poll or an admin, in any
// order and any number of times.
type Tracker struct {
	Store         Store
	Items         ItemReader
	Settings      SettingsReader
	Processor     Processor
	Notifier      Notifier
	Logger        *logger.Logger
	WebhookSecret string
	Timeout       time.Duration
	Now           func() time.Time
}

func NewTracker(store Store, items ItemReader, settings SettingsReader, processor Processor, notifier Notifier, log *logger.Logger, webhookSecret string, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tracker{
		Store:         store,
		Items:         items,
		Settings:      settings,
		Processor:     processor,
		Notifier:      notifier,
		Logger:        log,
		WebhookSecret: webhookSecret,
		Timeout:       timeout,
		Now:           time.Now,
	}
}

func (t *Tracker) soldItem(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := t.Items.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	if item.Status != models.ItemSold || item.WinnerID == nil || !item.CurrentBid.Valid {
		return nil, ErrItemNotSold
	}
	return item, nil
}

// payableItem checks that bidderID won itemID and has not paid yet. It also
// returns the pending payment, if one was started.
func (t *Tracker) payableItem(ctx context.Context, itemID, bidderID string) (*models.Item, *models.Payment, error) {
	item, err := t.soldItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if !item.IsWinner(bidderID) {
		return nil, nil, ErrForbidden
	}

	existing, err := t.pendingPayment(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	return item, existing, nil
}

// pendingPayment returns nil when no payment was started and ErrAlreadyPaid
// when it completed.
func (t *Tracker) pendingPayment(ctx context.Context, itemID string) (*models.Payment, error) {
	existing, err := t.Store.GetByItem(ctx, itemID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	case existing.Status == models.PaymentCompleted:
		return nil, ErrAlreadyPaid
	}
	return existing, nil
}

// liveSession looks up the checkout recorded on p. It returns the session
// while it can still be paid and nil once it is gone. A session that was
// paid without the payment being recorded is recorded now and reported as
// ErrAlreadyPaid.
func (t *Tracker) liveSession(ctx context.Context, item *models.Item, p *models.Payment) (*CheckoutSession, error) {
	if p == nil || p.Method != models.MethodCard || p.SessionID == "" {
		return nil, nil
	}

	session, err := t.Processor.GetSession(ctx, p.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	if session.Paid {
		if _, err := t.MarkCompleted(ctx, item.ID, models.MethodCard); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyPaid
	}
	if !session.Open {
		return nil, nil
	}
	return session, nil
}

func sessionOf(p *models.Payment) string {
	if p == nil {
		return ""
	}
	return p.SessionID
}

func (t *Tracker) newPayment(item *models.Item, method models.PaymentMethod, sessionID string) *models.Payment {
	now := t.Now().UTC()
	return &models.Payment{
		ID:        uuid.New().String(),
		ItemID:    item.ID,
		BidderID:  *item.WinnerID,
		Method:    method,
		Amount:    item.CurrentBid.Decimal,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StartCardPayment hands the winner a processor checkout for the winning
// amount. A checkout that is still open is reused, so an item never has two
// payable sessions. The payment row is only touched after the processor
// answered.
func (t *Tracker) StartCardPayment(ctx context.Context, itemID, bidderID string) (*models.CardPaymentResponse, error) {
	item, existing, err := t.payableItem(ctx, itemID, bidderID)
	if err != nil {
		return nil, err
	}

	if t.Processor == nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, ErrProcessorNotConfigured)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		open, err := t.liveSession(callCtx, item, existing)
		if err != nil {
			return nil, err
		}
		if open != nil {
			t.Logger.LogPayment("CARD_REUSED", itemID, fmt.Sprintf("session=%s", open.ID))
			return &models.CardPaymentResponse{RedirectURL: open.URL, SessionID: open.ID}, nil
		}

		session, err := t.Processor.CreateCheckout(callCtx, CheckoutRequest{
			ItemID:    item.ID,
			BidderID:  bidderID,
			ItemTitle: item.Title,
			Amount:    item.CurrentBid.Decimal,
		})
		if err != nil {
			t.Logger.LogPayment("CARD_START_FAILED", itemID, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}

		started, err := t.Store.StartPending(ctx, t.newPayment(item, models.MethodCard, session.ID), sessionOf(existing))
		if err == nil && started {
			t.Logger.LogPayment("CARD_STARTED", itemID, fmt.Sprintf("session=%s amount=%s", session.ID, item.CurrentBid.Decimal.StringFixed(2)))
			return &models.CardPaymentResponse{RedirectURL: session.URL, SessionID: session.ID}, nil
		}

		// The new session was never recorded, so nobody may pay it.
		t.discardSession(callCtx, itemID, session.ID)
		if err != nil {
			return nil, err
		}
		if attempt >= startAttempts {
			return nil, ErrCheckoutConflict
		}
		if existing, err = t.pendingPayment(ctx, itemID); err != nil {
			return nil, err
		}
	}
}

func (t *Tracker) discardSession(ctx context.Context, itemID, sessionID string) {
	if err := t.Processor.ExpireSession(ctx, sessionID); err != nil {
		t.Logger.LogPayment("CARD_DISCARD_FAILED", itemID, fmt.Sprintf("session=%s: %v", sessionID, err))
		return
	}
	t.Logger.LogPayment("CARD_DISCARDED", itemID, fmt.Sprintf("session=%s", sessionID))
}

// StartCheckPayment switches the item to payment by check. An open card
// checkout is expired first so it cannot be paid as well.
func (t *Tracker) StartCheckPayment(ctx context.Context, itemID, bidderID string) (*models.CheckInstructions, error) {
	item, existing, err := t.payableItem(ctx, itemID, bidderID)
	if err != nil {
		return nil, err
	}
	settings, err := t.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if sessionOf(existing) != "" && existing.Method == models.MethodCard {
		if t.Processor == nil {
			return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, ErrProcessorNotConfigured)
		}
		callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
		defer cancel()

		open, err := t.liveSession(callCtx, item, existing)
		if err != nil {
			return nil, err
		}
		if open != nil {
			if err := t.Processor.ExpireSession(callCtx, open.ID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
			}
			t.Logger.LogPayment("CARD_EXPIRED", itemID, fmt.Sprintf("session=%s replaced by check", open.ID))
		}
	}

	started, err := t.Store.StartPending(ctx, t.newPayment(item, models.MethodCheck, ""), sessionOf(existing))
	if err != nil {
		return nil, err
	}
	if !started {
		if _, err := t.pendingPayment(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, ErrCheckoutConflict
	}

	t.Logger.LogPayment("CHECK_STARTED", itemID, fmt.Sprintf("amount=%s", item.CurrentBid.Decimal.StringFixed(2)))
	return &models.CheckInstructions{
		PayableTo:      settings.CheckPayableTo,
		MailingAddress: settings.CheckMailingAddress,
		Amount:         item.CurrentBid.Decimal,
		DeadlineDays:   settings.CheckDeadlineDays,
	}, nil
}

// MarkCompleted records that the item is paid and reports whether this call
// made the change. The call that makes it also writes the PAYMENT_RECEIVED
// notification. An empty method keeps the method already on record.
func (t *Tracker) MarkCompleted(ctx context.Context, itemID string, method models.PaymentMethod) (bool, error) {
	item, err := t.soldItem(ctx, itemID)
	if err != nil {
		return false, err
	}

	now := t.Now().UTC()
	changed, err := t.Store.MarkCompleted(ctx, t.newPayment(item, method, ""), now, receiptNotice(item, now))
	if err != nil {
		return false, err
	}
	if !changed {
		t.Logger.Debug("PAYMENT", fmt.Sprintf("Item %s already marked paid", itemID))
		return false, nil
	}

	t.Logger.LogPayment("COMPLETED", itemID, fmt.Sprintf("method=%s amount=%s", method, item.CurrentBid.Decimal.StringFixed(2)))
	t.Notifier.Wake()
	return true, nil
}

func receiptNotice(item *models.Item, at time.Time) *models.Notification {
	return &models.Notification{
		ID:          uuid.New().String(),
		Type:        models.NotifyPaymentReceived,
		RecipientID: *item.WinnerID,
		ItemID:      item.ID,
		ItemTitle:   item.Title,
		Amount:      item.CurrentBid.Decimal,
		CreatedAt:   at,
	}
}

// MarkPending reverts a completed payment. It is a no-op on a pending one.
func (t *Tracker) MarkPending(ctx context.Context, itemID string) (bool, error) {
	changed, err := t.Store.MarkPending(ctx, itemID, t.Now().UTC())
	if err != nil {
		return false, err
	}
	if !changed {
		if _, err := t.Store.GetByItem(ctx, itemID); errors.Is(err, sql.ErrNoRows) {
			return false, ErrPaymentNotFound
		} else if err != nil {
			return false, err
		}
		return false, nil
	}

	t.Logger.LogPayment("REVERTED", itemID, "payment marked pending by admin")
	return true, nil
}

// AdminMark applies an administrator's received/pending decision and
// returns the resulting payment.
func (t *Tracker) AdminMark(ctx context.Context, itemID string, action models.AdminMarkAction) (*models.Payment, error) {
	switch action {
	case models.MarkReceived:
		if _, err := t.MarkCompleted(ctx, itemID, ""); err != nil {
			return nil, err
		}
	case models.MarkPending:
		if _, err := t.MarkPending(ctx, itemID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidAction, action)
	}
	return t.Payment(ctx, itemID)
}

func (t *Tracker) Payment(ctx context.Context, itemID string) (*models.Payment, error) {
	p, err := t.Store.GetByItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ConfirmSession is the client-side poll after returning from checkout. Only
// the session currently recorded for a payment can be confirmed.
func (t *Tracker) ConfirmSession(ctx context.Context, sessionID, callerID string) (*models.Payment, error) {
	if t.Processor == nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, ErrProcessorNotConfigured)
	}

	recorded, err := t.Store.GetBySession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if recorded.BidderID != callerID {
		t.Logger.LogSecurity("SESSION_MISMATCH", fmt.Sprintf("session=%s caller=%s", sessionID, callerID))
		return nil, ErrForbidden
	}

	callCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	session, err := t.Processor.GetSession(callCtx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	if session.BidderID != callerID || session.ItemID != recorded.ItemID {
		t.Logger.LogSecurity("SESSION_MISMATCH", fmt.Sprintf("session=%s caller=%s item=%s", sessionID, callerID, recorded.ItemID))
		return nil, ErrForbidden
	}

	item, err := t.soldItem(ctx, recorded.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsWinner(callerID) {
		return nil, ErrForbidden
	}

	if session.Paid {
		if _, err := t.MarkCompleted(ctx, item.ID, models.MethodCard); err != nil {
			return nil, err
		}
	}
	return t.Payment(ctx, item.ID)
}

// HandleWebhook verifies a processor event and applies it. Nothing is
// written unless the signature checks out and the event names the item's
// winner.
func (t *Tracker) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if t.WebhookSecret == "" {
		t.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, t.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		t.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("rejected event: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	switch string(event.Type) {
	case eventSessionCompleted, eventAsyncPaymentSucceeded:
		return t.applySessionEvent(ctx, event)
	default:
		t.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event %s of type %s", event.ID, event.Type))
		return nil
	}
}

func (t *Tracker) applySessionEvent(ctx context.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("event %s: decode checkout session: %v", event.ID, err),
			OriginalErr:   err,
		}
	}

	session := fromStripeSession(&cs)
	if !session.Paid {
		t.Logger.Info("WEBHOOK", fmt.Sprintf("Session %s completed without payment (status %s)", session.ID, cs.PaymentStatus))
		return nil
	}
	if session.ItemID == "" || session.BidderID == "" {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("event %s: session %s has no item/bidder metadata", event.ID, session.ID),
		}
	}

	item, err := t.soldItem(ctx, session.ItemID)
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Unknown item",
			InternalError: fmt.Sprintf("event %s: item %s: %v", event.ID, session.ItemID, err),
			OriginalErr:   err,
		}
	}
	if !item.IsWinner(session.BidderID) {
		t.Logger.LogSecurity("WEBHOOK_BIDDER_MISMATCH", fmt.Sprintf("event=%s item=%s bidder=%s", event.ID, item.ID, session.BidderID))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Bidder does not match item winner",
			InternalError: fmt.Sprintf("event %s: bidder %s is not the winner of %s", event.ID, session.BidderID, item.ID),
			OriginalErr:   ErrForbidden,
		}
	}

	if _, err := t.MarkCompleted(ctx, item.ID, models.MethodCard); err != nil {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: fmt.Sprintf("event %s: mark item %s paid: %v", event.ID, item.ID, err),
			OriginalErr:   err,
		}
	}
	return nil
}
