package items_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/items"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
)

type ReviewService interface {
	Review(ctx context.Context, itemID string, action models.ReviewAction) (*models.Item, error)
}

type Handler struct {
	Service ReviewService
	Logger  *logger.Logger
}

// RegisterAdminRoutes expects an admin-only router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/items/{itemId}/review", h.Review)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	var req models.ReviewItemRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeValidation, err.Error())
		return
	}

	item, err := h.Service.Review(r.Context(), itemID, req.Action)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item reviewed", item))
	case errors.Is(err, items.ErrItemNotFound):
		utils.WriteError(w, http.StatusNotFound, utils.CodeItemNotFound, err.Error())
	case errors.Is(err, items.ErrInvalidTransition):
		utils.WriteError(w, http.StatusConflict, utils.CodeInvalidTransition, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("Review of item %s failed: %v", itemID, err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to review item")
	}
}
