package payment_api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-auction/internal/auth"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/payment"
	"ms-auction/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = 64 << 10

type PaymentService interface {
	StartCardPayment(ctx context.Context, itemID, bidderID string) (*models.CardPaymentResponse, error)
	StartCheckPayment(ctx context.Context, itemID, bidderID string) (*models.CheckInstructions, error)
	ConfirmSession(ctx context.Context, sessionID, callerID string) (*models.Payment, error)
	AdminMark(ctx context.Context, itemID string, action models.AdminMarkAction) (*models.Payment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type ReportBuilder interface {
	Build(ctx context.Context, f models.PaymentReportFilter) (*models.PaymentReport, error)
}

type Handler struct {
	Service PaymentService
	Reports ReportBuilder
	Logger  *logger.Logger
}

func NewHandler(service PaymentService, reports ReportBuilder, log *logger.Logger) *Handler {
	return &Handler{Service: service, Reports: reports, Logger: log}
}

// NewRouter builds the gin engine serving /api/payments. The webhook route is
// authenticated by its signature, everything else by bearer token.
func NewRouter(h *Handler, verifier auth.Verifier, adminRole string, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r, auth.GinMiddleware(verifier, log), auth.GinRequireRole(adminRole, log))
	return r
}

func (h *Handler) RegisterRoutes(r gin.IRouter, authn, admin gin.HandlerFunc) {
	payments := r.Group("/api/payments")
	payments.POST("/webhook", h.Webhook)

	bidder := payments.Group("", authn)
	bidder.POST("/card", h.StartCard)
	bidder.POST("/check", h.StartCheck)
	bidder.POST("/confirm", h.Confirm)

	admins := payments.Group("/admin", authn, admin)
	admins.POST("/mark", h.AdminMark)
	admins.GET("", h.Report)
}

func (h *Handler) StartCard(c *gin.Context) {
	var req models.StartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
		return
	}

	resp, err := h.Service.StartCardPayment(c.Request.Context(), req.ItemID, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Checkout session created", resp))
}

func (h *Handler) StartCheck(c *gin.Context) {
	var req models.StartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
		return
	}

	instructions, err := h.Service.StartCheckPayment(c.Request.Context(), req.ItemID, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Check payment instructions", instructions))
}

func (h *Handler) Confirm(c *gin.Context) {
	var req models.ConfirmSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
		return
	}

	p, err := h.Service.ConfirmSession(c.Request.Context(), req.SessionID, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment status", p))
}

func (h *Handler) AdminMark(c *gin.Context) {
	var req models.AdminMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
		return
	}

	p, err := h.Service.AdminMark(c.Request.Context(), req.ItemID, req.Action)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.Logger.LogPayment("ADMIN_MARK", req.ItemID, fmt.Sprintf("action=%s by=%s", req.Action, auth.UserID(c.Request.Context())))
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment updated", p))
}

func (h *Handler) Report(c *gin.Context) {
	var filter models.PaymentReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
		return
	}

	report, err := h.Reports.Build(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment report", report))
}

// Webhook receives processor events. The raw body is needed for signature
// verification, so it is read before any parsing.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Error reading request body", utils.CodeInternal))
		return
	}

	err = h.Service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var whErr *payment.WebhookError
		if errors.As(err, &whErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("[%s] %s", whErr.Category, whErr.InternalError))
			code := utils.CodeValidation
			if whErr.StatusCode >= http.StatusInternalServerError {
				code = utils.CodeInternal
			}
			c.JSON(whErr.StatusCode, utils.ErrorResponse(whErr.PublicError, code))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Unexpected webhook failure: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", utils.CodeInternal))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrItemNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse(err.Error(), utils.CodeItemNotFound))
	case errors.Is(err, payment.ErrItemNotSold):
		c.JSON(http.StatusConflict, utils.ErrorResponse(err.Error(), utils.CodeItemNotSold))
	case errors.Is(err, payment.ErrForbidden):
		c.JSON(http.StatusForbidden, utils.ErrorResponse(err.Error(), utils.CodeForbidden))
	case errors.Is(err, payment.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, utils.ErrorResponse(err.Error(), utils.CodeAlreadyPaid))
	case errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, utils.ErrorResponse(err.Error(), utils.CodePaymentNotFound))
	case errors.Is(err, payment.ErrCheckoutConflict):
		c.JSON(http.StatusConflict, utils.ErrorResponse(err.Error(), utils.CodeCheckoutConflict))
	case errors.Is(err, payment.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error(), utils.CodeValidation))
	case errors.Is(err, payment.ErrProcessorUnavailable):
		h.Logger.Warn("PAYMENT", err.Error())
		c.JSON(http.StatusBadGateway, utils.ErrorResponse(payment.ErrProcessorUnavailable.Error(), utils.CodeProcessorUnavailable))
	default:
		h.Logger.Error("API", fmt.Sprintf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("internal error", utils.CodeInternal))
	}
}
