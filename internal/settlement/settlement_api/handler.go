package settlement_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/auth"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/settlement"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
)

type SettlementService interface {
	EndAuction(ctx context.Context) (*models.SettlementResult, error)
}

type Handler struct {
	Service SettlementService
	Logger  *logger.Logger
}

// RegisterAdminRoutes expects an admin-only router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/auction/end", h.EndAuction)
}

func (h *Handler) EndAuction(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("EndAuction requested by %s", auth.UserID(r.Context())))

	result, err := h.Service.EndAuction(r.Context())
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Auction ended", result))
	case errors.Is(err, settlement.ErrSettlementInProgress):
		utils.WriteError(w, http.StatusConflict, utils.CodeSettlementInProgress, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("EndAuction failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to end auction")
	}
}
