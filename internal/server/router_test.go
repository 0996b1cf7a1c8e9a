package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	bidding "lot-auction/internal/biddingService"
	model "lot-auction/internal/models"
	"lot-auction/internal/repository"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.AddLot(model.Lot{
		ID: 1, Name: "Lote 1", BasePrice: decimal.NewFromInt(100000), Status: model.AuctionActive, ProjectID: 10,
	}))
	require.NoError(t, repo.AddUser(model.User{ID: 1, Name: "Admin", Role: model.RoleAdmin}))
	require.NoError(t, repo.AddUser(model.User{ID: 7, Name: "Ana", Role: model.RoleClient}))
	require.NoError(t, repo.AddSubscription(model.Subscription{UserID: 7, ProjectID: 10, TokensAvailable: 1}))

	return SetupRouter(bidding.NewBiddingService(repo))
}

func TestRouter_Middleware(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)

	tests := []struct {
		name           string
		method         string
		path           string
		userHeader     string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", expectedStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "anonymous_lot", method: http.MethodGet, path: "/lotes/1", expectedStatus: http.StatusUnauthorized, expectedError: "unknown user"},
		{name: "malformed_user", method: http.MethodGet, path: "/lotes/1", userHeader: "abc", expectedStatus: http.StatusUnauthorized, expectedError: "unknown user"},
		{name: "unknown_user", method: http.MethodGet, path: "/lotes/1", userHeader: "99", expectedStatus: http.StatusUnauthorized, expectedError: "unknown user"},
		{name: "client_reads_lot", method: http.MethodGet, path: "/lotes/1", userHeader: "7", expectedStatus: http.StatusOK},
		{name: "admin_reads_lot", method: http.MethodGet, path: "/lotes/1", userHeader: "1", expectedStatus: http.StatusOK},
		{
			name: "admin_cannot_bid", method: http.MethodPost, path: "/pujas", userHeader: "1",
			body: `{"id_lote": 1, "monto_puja": 100000}`, expectedStatus: http.StatusForbidden, expectedError: "action not allowed for your role",
		},
		{name: "admin_has_no_bids_view", method: http.MethodGet, path: "/pujas/mis-pujas", userHeader: "1", expectedStatus: http.StatusForbidden},
		{
			name: "client_bids", method: http.MethodPost, path: "/pujas", userHeader: "7",
			body: `{"id_lote": 1, "monto_puja": 100000}`, expectedStatus: http.StatusCreated,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.userHeader != "" {
				req.Header.Set(UserHeader, tc.userHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
			require.NoError(t, err)

			if tc.expectedError != "" {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.Equal(t, tc.expectedError, resp["error"])
				require.Equal(t, w.Header().Get("X-Request-ID"), resp["request_id"])
			}
		})
	}
}

func TestRouter_RequestIDPropagation(t *testing.T) {
	t.Parallel()

	router := setupRouter(t)
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, id, w.Header().Get("X-Request-ID"))
}
