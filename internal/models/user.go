package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a read-only view of the external user directory.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID               string    `json:"id" bun:"id,pk"`
	Email            string    `json:"email" bun:"email,unique,notnull"`
	FullName         string    `json:"full_name" bun:"full_name,notnull"`
	IsWinnerEligible bool      `json:"is_winner_eligible" bun:"is_winner_eligible,notnull"`
	CreatedAt        time.Time `json:"created_at" bun:"created_at,notnull,default:current_timestamp"`
}

// Bidder is what the bidding and notification paths need from the directory.
type Bidder struct {
	ID               string
	Email            string
	Name             string
	IsWinnerEligible bool
}
