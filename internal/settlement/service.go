package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/google/uuid"
)

var ErrSettlementInProgress = errors.New("another settlement run is in progress")

// closeAttempts bounds re-reads when bids land on an item while it is being closed.
const closeAttempts = 3

type ItemStore interface {
	ListIDsByStatus(ctx context.Context, status models.ItemStatus) ([]string, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	CloseItem(ctx context.Context, id string, winner *models.Bid, notice *models.Notification) (bool, error)
}

type BidLedger interface {
	LeadingBid(ctx context.Context, itemID string) (*models.Bid, error)
}

type RunLock interface {
	Acquire(ctx context.Context) (string, error)
	Release(ctx context.Context, token string) error
}

type OwnerDirectory interface {
	OwnerName(ctx context.Context, owner models.Owner) string
}

// Notifier is poked once a run has written WINNER rows.
type Notifier interface {
	Wake()
}

type Service struct {
	Items     ItemStore
	Bids      BidLedger
	Lock      RunLock
	Directory OwnerDirectory
	Notifier  Notifier
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(items ItemStore, bids BidLedger, lock RunLock, dir OwnerDirectory, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		Items:     items,
		Bids:      bids,
		Lock:      lock,
		Directory: dir,
		Notifier:  notifier,
		Logger:    log,
		Now:       time.Now,
	}
}

type closeOutcome int

const (
	outcomeSkipped closeOutcome = iota
	outcomeSold
	outcomeUnsold
)

// EndAuction closes every APPROVED item: SOLD to its leading bidder or
// UNSOLD when nobody bid. Each item is closed by a conditional update, so a
// repeated or overlapping run changes nothing it did not change first.
func (s *Service) EndAuction(ctx context.Context) (*models.SettlementResult, error) {
	if s.Lock != nil {
		token, err := s.Lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrSettlementInProgress
		}
		defer func() {
			if err := s.Lock.Release(context.Background(), token); err != nil {
				s.Logger.Warn("SETTLEMENT", fmt.Sprintf("Failed to release settlement lock: %v", err))
			}
		}()
	}

	ids, err := s.Items.ListIDsByStatus(ctx, models.ItemApproved)
	if err != nil {
		return nil, err
	}
	s.Logger.LogSettlement("START", fmt.Sprintf("Closing %d approved items", len(ids)))

	result := &models.SettlementResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := s.closeItem(ctx, id)
		if err != nil {
			result.Failed++
			s.Logger.Error("SETTLEMENT", fmt.Sprintf("Failed to close item %s: %v", id, err))
			continue
		}

		switch outcome {
		case outcomeSold:
			result.Sold++
			result.Notified++
		case outcomeUnsold:
			result.Unsold++
		case outcomeSkipped:
			s.Logger.Debug("SETTLEMENT", fmt.Sprintf("Item %s already closed, skipping", id))
		}
	}

	if result.Notified > 0 {
		s.Notifier.Wake()
	}
	s.Logger.LogSettlement("DONE", fmt.Sprintf("sold=%d unsold=%d notified=%d failed=%d",
		result.Sold, result.Unsold, result.Notified, result.Failed))
	return result, nil
}

// closeItem writes the WINNER notification in the same transaction as the
// SOLD transition, so a sold item always has one.
func (s *Service) closeItem(ctx context.Context, id string) (closeOutcome, error) {
	for attempt := 1; attempt <= closeAttempts; attempt++ {
		item, err := s.Items.GetItem(ctx, id)
		if err != nil {
			return outcomeSkipped, err
		}
		if item.Status != models.ItemApproved {
			return outcomeSkipped, nil
		}

		leader, err := s.Bids.LeadingBid(ctx, id)
		if err != nil {
			return outcomeSkipped, err
		}
		var notice *models.Notification
		if leader != nil {
			notice = s.winnerNotice(ctx, item, leader)
		}

		closed, err := s.Items.CloseItem(ctx, id, leader, notice)
		if err != nil {
			return outcomeSkipped, err
		}
		if closed {
			if leader != nil {
				s.Logger.LogSettlement("SOLD", fmt.Sprintf("item=%s winner=%s amount=%s", id, leader.BidderID, leader.Amount.StringFixed(2)))
				return outcomeSold, nil
			}
			s.Logger.LogSettlement("UNSOLD", fmt.Sprintf("item=%s", id))
			return outcomeUnsold, nil
		}
		s.Logger.Debug("SETTLEMENT", fmt.Sprintf("Item %s changed while closing (attempt %d/%d)", id, attempt, closeAttempts))
	}
	return outcomeSkipped, fmt.Errorf("item %s kept receiving bids", id)
}

func (s *Service) winnerNotice(ctx context.Context, item *models.Item, winner *models.Bid) *models.Notification {
	return &models.Notification{
		ID:          uuid.New().String(),
		Type:        models.NotifyWinner,
		RecipientID: winner.BidderID,
		ItemID:      item.ID,
		ItemTitle:   item.Title,
		Amount:      winner.Amount,
		DonatedBy:   s.Directory.OwnerName(ctx, item.Owner()),
		CreatedAt:   s.Now().UTC(),
	}
}
