package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// SettingsRowID is the primary key of the single auction_settings row.
const SettingsRowID = 1

type AuctionSettings struct {
	bun.BaseModel `bun:"table:auction_settings,alias:s"`

	ID                  int             `json:"-" bun:"id,pk"`
	MinBidIncrement     decimal.Decimal `json:"min_bid_increment" bun:"min_bid_increment,type:numeric(12,2),notnull"`
	AntiSnipingMinutes  int             `json:"anti_sniping_minutes" bun:"anti_sniping_minutes,notnull"`
	AuctionEndTime      *time.Time      `json:"auction_end_time,omitempty" bun:"auction_end_time"`
	CheckPayableTo      string          `json:"check_payable_to" bun:"check_payable_to,notnull"`
	CheckMailingAddress string          `json:"check_mailing_address" bun:"check_mailing_address,notnull"`
	CheckDeadlineDays   int             `json:"check_deadline_days" bun:"check_deadline_days,notnull"`
	UpdatedAt           time.Time       `json:"updated_at" bun:"updated_at,notnull,default:current_timestamp"`
}

func (s *AuctionSettings) AntiSnipingWindow() time.Duration {
	return time.Duration(s.AntiSnipingMinutes) * time.Minute
}

// Ended reports whether bidding is closed at now. No end time means open.
func (s *AuctionSettings) Ended(now time.Time) bool {
	return s.AuctionEndTime != nil && !now.Before(*s.AuctionEndTime)
}

// PublicSettings omits the check mailing details.
type PublicSettings struct {
	MinBidIncrement    decimal.Decimal `json:"min_bid_increment"`
	AntiSnipingMinutes int             `json:"anti_sniping_minutes"`
	AuctionEndTime     *time.Time      `json:"auction_end_time,omitempty"`
}

func (s *AuctionSettings) Public() PublicSettings {
	return PublicSettings{
		MinBidIncrement:    s.MinBidIncrement,
		AntiSnipingMinutes: s.AntiSnipingMinutes,
		AuctionEndTime:     s.AuctionEndTime,
	}
}

// UpdateSettingsRequest carries an admin edit. Nil fields are left alone.
type UpdateSettingsRequest struct {
	MinBidIncrement     *decimal.Decimal `json:"min_bid_increment,omitempty"`
	AntiSnipingMinutes  *int             `json:"anti_sniping_minutes,omitempty" validate:"omitempty,min=0,max=1440"`
	AuctionEndTime      *time.Time       `json:"auction_end_time,omitempty"`
	CheckPayableTo      *string          `json:"check_payable_to,omitempty" validate:"omitempty,min=1,max=200"`
	CheckMailingAddress *string          `json:"check_mailing_address,omitempty" validate:"omitempty,min=1,max=500"`
	CheckDeadlineDays   *int             `json:"check_deadline_days,omitempty" validate:"omitempty,min=1,max=365"`
}
