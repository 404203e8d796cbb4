package payment

import "errors"

var (
	ErrForbidden            = errors.New("only the winning bidder can pay for this item")
	ErrAlreadyPaid          = errors.New("item has already been paid for")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemNotSold          = errors.New("item has not been sold")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable, please try again")
	ErrSessionNotFound      = errors.New("checkout session not found")
	ErrCheckoutConflict     = errors.New("another checkout for this item started at the same time, please try again")
	ErrInvalidAction        = errors.New("unknown payment action")
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}
