package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// Reason codes carried in APIResponse.Error.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeItemNotFound         = "ITEM_NOT_FOUND"
	CodeItemNotOpen          = "ITEM_NOT_OPEN"
	CodeItemNotSold          = "ITEM_NOT_SOLD"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeAuctionEnded         = "AUCTION_ENDED"
	CodeAlreadyHighestBidder = "ALREADY_HIGHEST_BIDDER"
	CodeBidTooLow            = "BID_TOO_LOW"
	CodeBidConflict          = "BID_CONFLICT"
	CodeAlreadyPaid          = "ALREADY_PAID"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeProcessorUnavailable = "PROCESSOR_UNAVAILABLE"
	CodeCheckoutConflict     = "CHECKOUT_CONFLICT"
	CodeSettlementInProgress = "SETTLEMENT_IN_PROGRESS"
	CodeEndTimeDecrease      = "END_TIME_DECREASE"
	CodeInternal             = "INTERNAL_ERROR"
)

type APIResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Data      interface{}            `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse builds a failure body; code is one of the Code constants.
func ErrorResponse(message, code string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     code,
		Timestamp: time.Now().UTC(),
	}
}

func (r APIResponse) WithDetails(details map[string]interface{}) APIResponse {
	r.Details = details
	return r
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse(message, code))
}
