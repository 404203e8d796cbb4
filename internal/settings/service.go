package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

var (
	ErrInvalidIncrement = errors.New("minimum bid increment must be positive")
	ErrEndTimeDecrease  = errors.New("auction end time can only move forward")
)

type DBLayer interface {
	Get(ctx context.Context) (*models.AuctionSettings, error)
	Save(ctx context.Context, settings *models.AuctionSettings) error
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, Now: time.Now}
}

func (s *Service) Get(ctx context.Context) (*models.AuctionSettings, error) {
	return s.DB.Get(ctx)
}

// Update applies an admin edit. The end time may be set when unset, or moved
// later; it is never cleared or moved earlier.
func (s *Service) Update(ctx context.Context, req models.UpdateSettingsRequest) (*models.AuctionSettings, error) {
	current, err := s.DB.Get(ctx)
	if err != nil {
		return nil, err
	}

	if req.MinBidIncrement != nil {
		if !req.MinBidIncrement.IsPositive() {
			return nil, ErrInvalidIncrement
		}
		current.MinBidIncrement = req.MinBidIncrement.Round(2)
	}
	if req.AntiSnipingMinutes != nil {
		current.AntiSnipingMinutes = *req.AntiSnipingMinutes
	}
	if req.AuctionEndTime != nil {
		end := req.AuctionEndTime.UTC()
		if current.AuctionEndTime != nil && end.Before(*current.AuctionEndTime) {
			return nil, fmt.Errorf("%w: current end is %s", ErrEndTimeDecrease, current.AuctionEndTime.Format(time.RFC3339))
		}
		current.AuctionEndTime = &end
	}
	if req.CheckPayableTo != nil {
		current.CheckPayableTo = *req.CheckPayableTo
	}
	if req.CheckMailingAddress != nil {
		current.CheckMailingAddress = *req.CheckMailingAddress
	}
	if req.CheckDeadlineDays != nil {
		current.CheckDeadlineDays = *req.CheckDeadlineDays
	}
	current.UpdatedAt = s.Now().UTC()

	if err := s.DB.Save(ctx, current); err != nil {
		return nil, err
	}

	s.Logger.Info("SETTINGS", fmt.Sprintf("Auction settings updated: increment=%s anti_sniping=%dm end=%v",
		current.MinBidIncrement, current.AntiSnipingMinutes, current.AuctionEndTime))
	return current, nil
}
