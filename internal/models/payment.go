package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

type PaymentMethod string

const (
	MethodCard  PaymentMethod = "CARD"
	MethodCheck PaymentMethod = "CHECK"
)

// Payment is unique per item.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID          string          `json:"id" bun:"id,pk"`
	ItemID      string          `json:"item_id" bun:"item_id,notnull,unique"`
	BidderID    string          `json:"bidder_id" bun:"bidder_id,notnull"`
	Method      PaymentMethod   `json:"method" bun:"method,notnull"`
	Status      PaymentStatus   `json:"status" bun:"status,notnull"`
	Amount      decimal.Decimal `json:"amount" bun:"amount,type:numeric(12,2),notnull"`
	SessionID   string          `json:"session_id,omitempty" bun:"session_id,nullzero"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" bun:"completed_at"`
	CreatedAt   time.Time       `json:"created_at" bun:"created_at,notnull"`
	UpdatedAt   time.Time       `json:"updated_at" bun:"updated_at,notnull"`
}

type StartPaymentRequest struct {
	ItemID string `json:"itemId" binding:"required,max=64"`
}

type CardPaymentResponse struct {
	RedirectURL string `json:"redirectUrl"`
	SessionID   string `json:"sessionId"`
}

type CheckInstructions struct {
	PayableTo      string          `json:"payableTo"`
	MailingAddress string          `json:"mailingAddress"`
	Amount         decimal.Decimal `json:"amount"`
	DeadlineDays   int             `json:"deadlineDays"`
}

type ConfirmSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required,max=255"`
}

type AdminMarkAction string

const (
	MarkReceived AdminMarkAction = "received"
	MarkPending  AdminMarkAction = "pending"
)

type AdminMarkRequest struct {
	ItemID string          `json:"itemId" binding:"required,max=64"`
	Action AdminMarkAction `json:"action" binding:"required,oneof=received pending"`
}

// PaymentSummary is one row of the admin payment ledger.
type PaymentSummary struct {
	ItemID    string          `json:"item_id"`
	ItemTitle string          `json:"item_title"`
	BidderID  string          `json:"bidder_id"`
	Method    PaymentMethod   `json:"method"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

type PaymentTotal struct {
	Status PaymentStatus   `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentReport struct {
	Payments []PaymentSummary `json:"payments"`
	Totals   []PaymentTotal   `json:"totals"`
}

type PaymentReportFilter struct {
	Status PaymentStatus `form:"status" binding:"omitempty,oneof=PENDING COMPLETED"`
	Method PaymentMethod `form:"method" binding:"omitempty,oneof=CARD CHECK"`
}
