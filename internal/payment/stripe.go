package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/config"
	"ms-auction/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const (
	metadataItemID   = "item_id"
	metadataBidderID = "bidder_id"
)

var ErrProcessorNotConfigured = errors.New("STRIPE_SECRET_KEY is not set")

type CheckoutRequest struct {
	ItemID    string
	BidderID  string
	ItemTitle string
	Amount    decimal.Decimal
}

// CheckoutSession is the part of a processor session the tracker acts on.
// Open means the session can still be paid.
type CheckoutSession struct {
	ID       string
	URL      string
	Paid     bool
	Open     bool
	ItemID   string
	BidderID string
}

type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ExpireSession(ctx context.Context, sessionID string) error
}

// StripeProcessor creates hosted Checkout Sessions.
type StripeProcessor struct {
	client *client.API
	cfg    config.StripeConfig
	log    *logger.Logger
}

func NewStripeProcessor(cfg config.StripeConfig, log *logger.Logger) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrProcessorNotConfigured
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeProcessor{client: sc, cfg: cfg, log: log}, nil
}

func (p *StripeProcessor) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.ItemID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.cfg.Currency),
					UnitAmount: stripe.Int64(ToMinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ItemTitle),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataItemID, req.ItemID)
	params.AddMetadata(metadataBidderID, req.BidderID)

	s, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		p.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for item %s: %v", req.ItemID, err))
		return nil, err
	}

	p.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s for item %s (%s %s)", s.ID, req.ItemID, req.Amount.StringFixed(2), p.cfg.Currency))
	return fromStripeSession(s), nil
}

func (p *StripeProcessor) GetSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		p.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve checkout session %s: %v", sessionID, err))
		return nil, err
	}
	return fromStripeSession(s), nil
}

// ExpireSession makes an open session unpayable.
func (p *StripeProcessor) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := p.client.CheckoutSessions.Expire(sessionID, params); err != nil {
		p.log.Error("STRIPE", fmt.Sprintf("Failed to expire checkout session %s: %v", sessionID, err))
		return err
	}
	p.log.Info("STRIPE", fmt.Sprintf("Expired checkout session %s", sessionID))
	return nil
}

func fromStripeSession(s *stripe.CheckoutSession) *CheckoutSession {
	return &CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Paid:     s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Open:     s.Status == stripe.CheckoutSessionStatusOpen,
		ItemID:   s.Metadata[metadataItemID],
		BidderID: s.Metadata[metadataBidderID],
	}
}

// ToMinorUnits converts an amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
