package bidding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("bid amount must be positive, at most 9999999999.99, with at most two decimal places")
	ErrBidderNotEligible    = errors.New("bidder is not eligible to bid")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemNotOpen          = errors.New("item is not open for bidding")
	ErrAuctionEnded         = errors.New("auction has ended")
	ErrAlreadyHighestBidder = errors.New("you already hold the highest bid on this item")
	ErrBidTooLow            = errors.New("bid is below the minimum")
	ErrBidConflict          = errors.New("bid could not be placed due to concurrent bidding, please resubmit")
)

// BidTooLowError carries the minimum so clients can show it.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be at least %s", e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}
