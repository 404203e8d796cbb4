package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ItemStatus string

const (
	ItemPending  ItemStatus = "PENDING"
	ItemApproved ItemStatus = "APPROVED"
	ItemSold     ItemStatus = "SOLD"
	ItemUnsold   ItemStatus = "UNSOLD"
	ItemRejected ItemStatus = "REJECTED"
)

// itemTransitions lists every allowed status move. Nothing leads back.
var itemTransitions = map[ItemStatus]map[ItemStatus]struct{}{
	ItemPending: {
		ItemApproved: {},
		ItemRejected: {},
	},
	ItemApproved: {
		ItemSold:   {},
		ItemUnsold: {},
	},
}

func CanTransition(from, to ItemStatus) bool {
	next, ok := itemTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

type Item struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID          string              `json:"id" bun:"id,pk"`
	Title       string              `json:"title" bun:"title,notnull"`
	Description string              `json:"description,omitempty" bun:"description,nullzero"`
	Status      ItemStatus          `json:"status" bun:"status,notnull"`
	StartingBid decimal.Decimal     `json:"starting_bid" bun:"starting_bid,type:numeric(12,2),notnull"`
	CurrentBid  decimal.NullDecimal `json:"current_bid" bun:"current_bid,type:numeric(12,2)"`
	WinnerID    *string             `json:"winner_id,omitempty" bun:"winner_id"`

	OwnerUserID *string `json:"-" bun:"owner_user_id"`
	GuestName   *string `json:"-" bun:"guest_name"`
	GuestEmail  *string `json:"-" bun:"guest_email"`

	CreatedAt time.Time `json:"created_at" bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `json:"updated_at" bun:"updated_at,notnull,default:current_timestamp"`
}

// Floor is the amount the next bid is measured against.
func (i *Item) Floor() decimal.Decimal {
	if i.CurrentBid.Valid {
		return i.CurrentBid.Decimal
	}
	return i.StartingBid
}

func (i *Item) Owner() Owner {
	if i.OwnerUserID != nil {
		return RegisteredOwner{UserID: *i.OwnerUserID}
	}
	if i.GuestName != nil {
		guest := GuestOwner{Name: *i.GuestName}
		if i.GuestEmail != nil {
			guest.Email = *i.GuestEmail
		}
		return guest
	}
	return nil
}

func (i *Item) SetOwner(o Owner) {
	i.OwnerUserID, i.GuestName, i.GuestEmail = nil, nil, nil
	switch owner := o.(type) {
	case RegisteredOwner:
		id := owner.UserID
		i.OwnerUserID = &id
	case GuestOwner:
		name, email := owner.Name, owner.Email
		i.GuestName = &name
		if email != "" {
			i.GuestEmail = &email
		}
	}
}

func (i *Item) IsWinner(bidderID string) bool {
	return i.WinnerID != nil && *i.WinnerID == bidderID
}

// ItemView is what polling clients see.
type ItemView struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Status         ItemStatus          `json:"status"`
	StartingBid    decimal.Decimal     `json:"starting_bid"`
	CurrentBid     decimal.NullDecimal `json:"current_bid"`
	MinimumNextBid decimal.Decimal     `json:"minimum_next_bid"`
	BidCount       int                 `json:"bid_count"`
	DonatedBy      string              `json:"donated_by,omitempty"`
	AuctionEndTime *time.Time          `json:"auction_end_time,omitempty"`
}

type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

type ReviewItemRequest struct {
	Action ReviewAction `json:"action" validate:"required,oneof=approve reject"`
}
