// Package directory reads bidders from the externally managed users table.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-auction/internal/models"

	"github.com/uptrace/bun"
)

var ErrBidderNotFound = errors.New("bidder not found")

type Directory struct {
	Bun bun.IDB
}

func New(db bun.IDB) *Directory {
	return &Directory{Bun: db}
}

func (d *Directory) GetBidder(ctx context.Context, id string) (*models.Bidder, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBidderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bidder %s: %w", id, err)
	}
	return &models.Bidder{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.FullName,
		IsWinnerEligible: user.IsWinnerEligible,
	}, nil
}

// OwnerName is the donor name shown next to an item. Lookup failures give
// an empty name.
func (d *Directory) OwnerName(ctx context.Context, owner models.Owner) string {
	switch o := owner.(type) {
	case models.GuestOwner:
		return o.Name
	case models.RegisteredOwner:
		bidder, err := d.GetBidder(ctx, o.UserID)
		if err != nil {
			return ""
		}
		return bidder.Name
	default:
		return ""
	}
}
