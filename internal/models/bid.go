package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Bid rows are insert-only.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        string          `json:"id" bun:"id,pk"`
	ItemID    string          `json:"item_id" bun:"item_id,notnull"`
	BidderID  string          `json:"bidder_id" bun:"bidder_id,notnull"`
	Amount    decimal.Decimal `json:"amount" bun:"amount,type:numeric(12,2),notnull"`
	CreatedAt time.Time       `json:"created_at" bun:"created_at,notnull"`
}

type PlaceBidRequest struct {
	ItemID string          `json:"itemId" validate:"required,max=64"`
	Amount decimal.Decimal `json:"amount"`
}

type PlaceBidResult struct {
	Bid        Bid             `json:"-"`
	BidID      string          `json:"bidId"`
	Amount     decimal.Decimal `json:"amount"`
	Extended   bool            `json:"extended"`
	NewEndTime *time.Time      `json:"newEndTime"`
}

// BidHistoryEntry hides the bidder; history is public.
type BidHistoryEntry struct {
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
