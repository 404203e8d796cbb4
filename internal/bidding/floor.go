package bidding

import (
	"time"

	"github.com/shopspring/decimal"
)

// MinimumBid is the smallest amount the next bid may offer.
func MinimumBid(floor, increment decimal.Decimal) decimal.Decimal {
	return floor.Add(increment).Round(2)
}

// MeetsMinimum compares at cent precision so "35" and "35.00" are the same offer.
func MeetsMinimum(amount, minimum decimal.Decimal) bool {
	return amount.Round(2).GreaterThanOrEqual(minimum.Round(2))
}

// MaxAmount is the largest value the NUMERIC(12,2) money columns hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ValidateAmount rejects non-positive amounts, fractions of a cent and
// amounts the money columns cannot store.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// Ratchet returns the end time after a bid placed at now. When less than
// window remains, the end is pushed back by window; otherwise it is kept.
// A nil end means the auction has no deadline and nothing is extended.
func Ratchet(end *time.Time, now time.Time, window time.Duration) (time.Time, bool) {
	if end == nil {
		return time.Time{}, false
	}
	if window <= 0 || end.Sub(now) >= window {
		return *end, false
	}
	return end.Add(window), true
}
