package bid_api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-auction/internal/auth"
	"ms-auction/internal/bidding"
	"ms-auction/internal/bidding/bid_api"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBidService struct {
	mock.Mock
}

func (m *MockBidService) PlaceBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (*models.PlaceBidResult, error) {
	args := m.Called(ctx, itemID, bidderID, amount)
	if res, ok := args.Get(0).(*models.PlaceBidResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBidService) ItemView(ctx context.Context, itemID string) (*models.ItemView, error) {
	args := m.Called(ctx, itemID)
	if v, ok := args.Get(0).(*models.ItemView); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBidService) History(ctx context.Context, itemID string) ([]models.BidHistoryEntry, error) {
	args := m.Called(ctx, itemID)
	if h, ok := args.Get(0).([]models.BidHistoryEntry); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

func newRouter(svc *MockBidService) http.Handler {
	h := bid_api.NewHandler(svc, logger.NewTestLogger(io.Discard))
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if user := req.Header.Get("X-Test-User"); user != "" {
						req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Subject: user}))
					}
					next.ServeHTTP(w, req)
				})
			})
			h.RegisterRoutes(r)
		})
	})
	return r
}

func postBid(t *testing.T, router http.Handler, user, body string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/bids", strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestPlaceBid_Success(t *testing.T) {
	svc := new(MockBidService)
	end := time.Date(2026, 11, 1, 20, 2, 0, 0, time.UTC)
	svc.On("PlaceBid", mock.Anything, "item-1", "alice", decimal.RequireFromString("35")).
		Return(&models.PlaceBidResult{BidID: "bid-1", Amount: decimal.RequireFromString("35"), Extended: true, NewEndTime: &end}, nil)

	rec, resp := postBid(t, newRouter(svc), "alice", `{"itemId":"item-1","amount":"35"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "bid-1", data["bidId"])
	assert.Equal(t, true, data["extended"])
	svc.AssertExpectations(t)
}

func TestPlaceBid_ErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"too low", &bidding.BidTooLowError{Minimum: decimal.RequireFromString("35")}, http.StatusUnprocessableEntity, utils.CodeBidTooLow},
		{"invalid amount", bidding.ErrInvalidAmount, http.StatusBadRequest, utils.CodeValidation},
		{"not eligible", bidding.ErrBidderNotEligible, http.StatusForbidden, utils.CodeForbidden},
		{"not found", bidding.ErrItemNotFound, http.StatusNotFound, utils.CodeItemNotFound},
		{"not open", bidding.ErrItemNotOpen, http.StatusConflict, utils.CodeItemNotOpen},
		{"ended", bidding.ErrAuctionEnded, http.StatusConflict, utils.CodeAuctionEnded},
		{"already leading", bidding.ErrAlreadyHighestBidder, http.StatusConflict, utils.CodeAlreadyHighestBidder},
		{"conflict", bidding.ErrBidConflict, http.StatusConflict, utils.CodeBidConflict},
		{"internal", assert.AnError, http.StatusInternalServerError, utils.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBidService)
			svc.On("PlaceBid", mock.Anything, "item-1", "alice", mock.Anything).Return(nil, tt.err)

			rec, resp := postBid(t, newRouter(svc), "alice", `{"itemId":"item-1","amount":34}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestPlaceBid_TooLowCarriesMinimum(t *testing.T) {
	svc := new(MockBidService)
	svc.On("PlaceBid", mock.Anything, "item-1", "alice", mock.Anything).
		Return(nil, &bidding.BidTooLowError{Minimum: decimal.RequireFromString("35")})

	_, resp := postBid(t, newRouter(svc), "alice", `{"itemId":"item-1","amount":"34"}`)
	assert.Equal(t, "35.00", resp.Details["minimum"])
}

func TestPlaceBid_RequestRejectedBeforeService(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"no user", "", `{"itemId":"item-1","amount":"35"}`, http.StatusUnauthorized, utils.CodeUnauthorized},
		{"missing item", "alice", `{"amount":"35"}`, http.StatusBadRequest, utils.CodeValidation},
		{"unknown field", "alice", `{"itemId":"item-1","amount":"35","bidderId":"bob"}`, http.StatusBadRequest, utils.CodeValidation},
		{"malformed", "alice", `{"itemId":`, http.StatusBadRequest, utils.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBidService)
			rec, resp := postBid(t, newRouter(svc), tt.user, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, resp.Error)
			svc.AssertNotCalled(t, "PlaceBid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetItemAndBids(t *testing.T) {
	svc := new(MockBidService)
	svc.On("ItemView", mock.Anything, "item-1").Return(&models.ItemView{
		ID:             "item-1",
		Title:          "Quilt",
		Status:         models.ItemApproved,
		MinimumNextBid: decimal.RequireFromString("35"),
	}, nil)
	svc.On("ItemView", mock.Anything, "nope").Return(nil, bidding.ErrItemNotFound)
	svc.On("History", mock.Anything, "item-1").Return([]models.BidHistoryEntry{
		{Amount: decimal.RequireFromString("45"), CreatedAt: time.Now()},
	}, nil)

	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/item-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Quilt"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), utils.CodeItemNotFound)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/item-1/bids", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":"45"`)
	assert.NotContains(t, rec.Body.String(), "bidder")
}
