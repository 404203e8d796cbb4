package bidding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	biddingdb "ms-auction/internal/bidding/db"
	"ms-auction/internal/config"
	"ms-auction/internal/database"
	"ms-auction/internal/directory"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const historyLimit = 100

type Ledger interface {
	InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx biddingdb.TxLedger) error) error
	ListBids(ctx context.Context, itemID string, limit int) ([]models.Bid, error)
	CountBids(ctx context.Context, itemID string) (int, error)
}

type ItemReader interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
}

type SettingsReader interface {
	Get(ctx context.Context) (*models.AuctionSettings, error)
}

type BidderDirectory interface {
	GetBidder(ctx context.Context, id string) (*models.Bidder, error)
	OwnerName(ctx context.Context, owner models.Owner) string
}

// Notifier is poked after a commit that wrote notification rows.
type Notifier interface {
	Wake()
}

type Service struct {
	Ledger    Ledger
	Items     ItemReader
	Settings  SettingsReader
	Directory BidderDirectory
	Notifier  Notifier
	Logger    *logger.Logger

	Now         func() time.Time
	MaxAttempts int
	RetryDelay  time.Duration
	IsRetryable func(error) bool
}

func NewService(ledger Ledger, items ItemReader, settings SettingsReader, dir BidderDirectory, notifier Notifier, log *logger.Logger, cfg config.BiddingConfig) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		Ledger:      ledger,
		Items:       items,
		Settings:    settings,
		Directory:   dir,
		Notifier:    notifier,
		Logger:      log,
		Now:         time.Now,
		MaxAttempts: maxAttempts,
		RetryDelay:  cfg.RetryDelay,
		IsRetryable: database.IsSerializationFailure,
	}
}

// outcome is what one committed attempt decided.
type outcome struct {
	bid            models.Bid
	previousLeader string
	extended       bool
	endTime        *time.Time
}

// PlaceBid admits one bid. The checks and writes run in a single
// serializable transaction that is retried on serialization failure.
func (s *Service) PlaceBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (*models.PlaceBidResult, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	bidder, err := s.Directory.GetBidder(ctx, bidderID)
	if errors.Is(err, directory.ErrBidderNotFound) {
		return nil, ErrBidderNotEligible
	}
	if err != nil {
		return nil, err
	}
	if !bidder.IsWinnerEligible {
		return nil, ErrBidderNotEligible
	}

	var out *outcome
	for attempt := 1; ; attempt++ {
		out, err = s.attempt(ctx, itemID, bidderID, amount)
		if err == nil {
			break
		}
		if !s.IsRetryable(err) {
			return nil, err
		}
		if attempt >= s.MaxAttempts {
			s.Logger.Warn("BID", fmt.Sprintf("Bid on %s by %s gave up after %d attempts: %v", itemID, bidderID, attempt, err))
			return nil, fmt.Errorf("%w: %v", ErrBidConflict, err)
		}
		s.Logger.Debug("BID", fmt.Sprintf("Serialization conflict on %s (attempt %d/%d), retrying", itemID, attempt, s.MaxAttempts))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.RetryDelay * time.Duration(attempt)):
		}
	}

	s.Logger.LogBid("PLACED", itemID, fmt.Sprintf("bidder=%s amount=%s extended=%t", bidderID, out.bid.Amount.StringFixed(2), out.extended))
	if out.previousLeader != "" {
		s.Notifier.Wake()
	}

	return &models.PlaceBidResult{
		Bid:        out.bid,
		BidID:      out.bid.ID,
		Amount:     out.bid.Amount,
		Extended:   out.extended,
		NewEndTime: out.endTime,
	}, nil
}

func (s *Service) attempt(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (*outcome, error) {
	var out outcome

	err := s.Ledger.InSerializableTx(ctx, func(ctx context.Context, tx biddingdb.TxLedger) error {
		now := s.Now().UTC()

		item, err := tx.GetItem(ctx, itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		if item.Status != models.ItemApproved {
			return ErrItemNotOpen
		}

		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		if settings.Ended(now) {
			return ErrAuctionEnded
		}

		leader, err := tx.LeadingBid(ctx, itemID)
		if err != nil {
			return err
		}
		if leader != nil && leader.BidderID == bidderID {
			return ErrAlreadyHighestBidder
		}

		minimum := MinimumBid(item.Floor(), settings.MinBidIncrement)
		if !MeetsMinimum(amount, minimum) {
			return &BidTooLowError{Minimum: minimum}
		}

		bid := models.Bid{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			BidderID:  bidderID,
			Amount:    amount.Round(2),
			CreatedAt: now,
		}
		if err := tx.InsertBid(ctx, &bid); err != nil {
			return err
		}
		if err := tx.SetCurrentBid(ctx, itemID, bid.Amount, now); err != nil {
			return err
		}

		endTime := settings.AuctionEndTime
		if newEnd, extended := Ratchet(settings.AuctionEndTime, now, settings.AntiSnipingWindow()); extended {
			if _, err := tx.ExtendEndTime(ctx, newEnd); err != nil {
				return err
			}
			endTime = &newEnd
			out.extended = true
		}

		if leader != nil {
			if err := tx.AddNotification(ctx, outbidNotice(leader.BidderID, item, bid)); err != nil {
				return err
			}
			out.previousLeader = leader.BidderID
		}

		out.bid = bid
		out.endTime = endTime
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// outbidNotice is written in the bid's transaction, so it exists exactly
// when the bid does.
func outbidNotice(recipient string, item *models.Item, bid models.Bid) *models.Notification {
	return &models.Notification{
		ID:          uuid.New().String(),
		Type:        models.NotifyOutbid,
		RecipientID: recipient,
		ItemID:      bid.ItemID,
		ItemTitle:   item.Title,
		Amount:      bid.Amount,
		CreatedAt:   bid.CreatedAt,
	}
}

// ItemView is the polling view of one item.
func (s *Service) ItemView(ctx context.Context, itemID string) (*models.ItemView, error) {
	item, err := s.Items.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.Ledger.CountBids(ctx, itemID)
	if err != nil {
		return nil, err
	}

	view := &models.ItemView{
		ID:             item.ID,
		Title:          item.Title,
		Description:    item.Description,
		Status:         item.Status,
		StartingBid:    item.StartingBid,
		CurrentBid:     item.CurrentBid,
		MinimumNextBid: MinimumBid(item.Floor(), settings.MinBidIncrement),
		BidCount:       count,
		AuctionEndTime: settings.AuctionEndTime,
	}
	view.DonatedBy = s.Directory.OwnerName(ctx, item.Owner())
	return view, nil
}

// History lists the most recent bids on an item without bidder identities.
func (s *Service) History(ctx context.Context, itemID string) ([]models.BidHistoryEntry, error) {
	if _, err := s.Items.GetItem(ctx, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	bids, err := s.Ledger.ListBids(ctx, itemID, historyLimit)
	if err != nil {
		return nil, err
	}
	history := make([]models.BidHistoryEntry, 0, len(bids))
	for _, b := range bids {
		history = append(history, models.BidHistoryEntry{Amount: b.Amount, CreatedAt: b.CreatedAt})
	}
	return history, nil
}
