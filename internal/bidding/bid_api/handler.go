package bid_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/auth"
	"ms-auction/internal/bidding"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type BidService interface {
	PlaceBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (*models.PlaceBidResult, error)
	ItemView(ctx context.Context, itemID string) (*models.ItemView, error)
	History(ctx context.Context, itemID string) ([]models.BidHistoryEntry, error)
}

type Handler struct {
	Service BidService
	Logger  *logger.Logger
}

func NewHandler(service BidService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterPublicRoutes mounts the polling endpoints.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/items/{itemId}", h.GetItem)
	r.Get("/items/{itemId}/bids", h.GetBids)
}

// RegisterRoutes mounts the endpoints that need an authenticated bidder.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/bids", h.PlaceBid)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID := auth.UserID(r.Context())
	if bidderID == "" {
		utils.WriteError(w, http.StatusUnauthorized, utils.CodeUnauthorized, "authentication required")
		return
	}

	var req models.PlaceBidRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeValidation, err.Error())
		return
	}

	result, err := h.Service.PlaceBid(r.Context(), req.ItemID, bidderID, req.Amount)
	if err != nil {
		h.writeBidError(w, req.ItemID, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Bid placed", result))
}

func (h *Handler) writeBidError(w http.ResponseWriter, itemID string, err error) {
	var tooLow *bidding.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		body := utils.ErrorResponse(err.Error(), utils.CodeBidTooLow).
			WithDetails(map[string]interface{}{"minimum": tooLow.Minimum.StringFixed(2)})
		utils.WriteJSON(w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, bidding.ErrInvalidAmount):
		utils.WriteError(w, http.StatusBadRequest, utils.CodeValidation, err.Error())
	case errors.Is(err, bidding.ErrBidderNotEligible):
		utils.WriteError(w, http.StatusForbidden, utils.CodeForbidden, err.Error())
	case errors.Is(err, bidding.ErrItemNotFound):
		utils.WriteError(w, http.StatusNotFound, utils.CodeItemNotFound, err.Error())
	case errors.Is(err, bidding.ErrItemNotOpen):
		utils.WriteError(w, http.StatusConflict, utils.CodeItemNotOpen, err.Error())
	case errors.Is(err, bidding.ErrAuctionEnded):
		utils.WriteError(w, http.StatusConflict, utils.CodeAuctionEnded, err.Error())
	case errors.Is(err, bidding.ErrAlreadyHighestBidder):
		utils.WriteError(w, http.StatusConflict, utils.CodeAlreadyHighestBidder, err.Error())
	case errors.Is(err, bidding.ErrBidConflict):
		utils.WriteError(w, http.StatusConflict, utils.CodeBidConflict, "bid could not be recorded, please retry")
	default:
		h.Logger.Error("API", fmt.Sprintf("PlaceBid on %s failed: %v", itemID, err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to place bid")
	}
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	view, err := h.Service.ItemView(r.Context(), itemID)
	if errors.Is(err, bidding.ErrItemNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.CodeItemNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetItem %s failed: %v", itemID, err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to load item")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item", view))
}

func (h *Handler) GetBids(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	history, err := h.Service.History(r.Context(), itemID)
	if errors.Is(err, bidding.ErrItemNotFound) {
		utils.WriteError(w, http.StatusNotFound, utils.CodeItemNotFound, err.Error())
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBids %s failed: %v", itemID, err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to load bids")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bid history", history))
}
