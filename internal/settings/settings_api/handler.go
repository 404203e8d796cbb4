package settings_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/settings"
	"ms-auction/internal/utils"
)

type SettingsService interface {
	Get(ctx context.Context) (*models.AuctionSettings, error)
	Update(ctx context.Context, req models.UpdateSettingsRequest) (*models.AuctionSettings, error)
}

type Handler struct {
	Service SettingsService
	Logger  *logger.Logger
}

// GetPublic serves the settings polling clients need to render a countdown.
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	current, err := h.Service.Get(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to load auction settings: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to load auction settings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Auction settings", current.Public()))
}

func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	current, err := h.Service.Get(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to load auction settings: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to load auction settings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Auction settings", current))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.CodeValidation, err.Error())
		return
	}

	updated, err := h.Service.Update(r.Context(), req)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Auction settings updated", updated))
	case errors.Is(err, settings.ErrInvalidIncrement):
		utils.WriteError(w, http.StatusBadRequest, utils.CodeValidation, err.Error())
	case errors.Is(err, settings.ErrEndTimeDecrease):
		utils.WriteError(w, http.StatusConflict, utils.CodeEndTimeDecrease, err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("Failed to update auction settings: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, utils.CodeInternal, "Failed to update auction settings")
	}
}
