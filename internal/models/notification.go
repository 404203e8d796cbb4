package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type NotificationType string

const (
	NotifyOutbid          NotificationType = "OUTBID"
	NotifyWinner          NotificationType = "WINNER"
	NotifyPaymentReceived NotificationType = "PAYMENT_RECEIVED"
)

// Notification is both the outbox row and the message carried on the
// notifications topic. Delivery bookkeeping stays out of the message.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID          string           `json:"id" bun:"id,pk"`
	Type        NotificationType `json:"type" bun:"type,notnull"`
	RecipientID string           `json:"recipient_id" bun:"recipient_id,notnull"`
	ItemID      string           `json:"item_id" bun:"item_id,notnull"`
	ItemTitle   string           `json:"item_title" bun:"item_title,notnull"`
	Amount      decimal.Decimal  `json:"amount" bun:"amount,type:numeric(12,2),notnull"`
	DonatedBy   string           `json:"donated_by,omitempty" bun:"donated_by,nullzero"`
	CreatedAt   time.Time        `json:"created_at" bun:"created_at,notnull"`

	SentAt    *time.Time `json:"-" bun:"sent_at"`
	Attempts  int        `json:"-" bun:"attempts,notnull,default:0"`
	LastError string     `json:"-" bun:"last_error,nullzero"`
}
