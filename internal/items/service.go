package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrInvalidTransition = errors.New("item status change not allowed")
)

type DBLayer interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.ItemStatus, winnerID *string) (bool, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// Review approves or rejects a submitted item. Only PENDING items can be
// reviewed; a concurrent review that got there first is reported as an
// invalid transition.
func (s *Service) Review(ctx context.Context, itemID string, action models.ReviewAction) (*models.Item, error) {
	var target models.ItemStatus
	switch action {
	case models.ReviewApprove:
		target = models.ItemApproved
	case models.ReviewReject:
		target = models.ItemRejected
	default:
		return nil, fmt.Errorf("unknown review action %q", action)
	}

	item, err := s.DB.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(item.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, target)
	}

	changed, err := s.DB.CompareAndSetStatus(ctx, itemID, item.Status, target, nil)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, itemID)
	}

	s.Logger.Info("ITEM", fmt.Sprintf("Item %s reviewed: %s -> %s", itemID, item.Status, target))
	item.Status = target
	return item, nil
}
