package integrationtests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "lot-auction/internal/models"
)

// PlaceBidHandler Tests
func TestPlaceBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		lot        model.Lot
		tokens     int
		userID     int64
		request    any
		wantStatus int
		wantError  string
	}{
		{
			name:       "Valid_Bid",
			lot:        activeLot(1, 100000),
			tokens:     1,
			userID:     viewerID,
			request:    map[string]any{"id_lote": 1, "monto_puja": 100000},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			lot:        activeLot(1, 100000),
			tokens:     1,
			userID:     viewerID,
			request:    "{id_lote: 'missing quotes', monto_puja: 100}",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request payload",
		},
		{
			name:       "Below_Base_Price",
			lot:        activeLot(1, 100000),
			tokens:     1,
			userID:     viewerID,
			request:    map[string]any{"id_lote": 1, "monto_puja": 99999},
			wantStatus: http.StatusConflict,
			wantError:  "bid amount too low",
		},
		{
			name:       "No_Tokens",
			lot:        activeLot(1, 100000),
			tokens:     0,
			userID:     viewerID,
			request:    map[string]any{"id_lote": 1, "monto_puja": 100000},
			wantStatus: http.StatusForbidden,
			wantError:  "no tokens available for this project",
		},
		{
			name:       "Unknown_Lot",
			lot:        activeLot(1, 100000),
			tokens:     1,
			userID:     viewerID,
			request:    map[string]any{"id_lote": 9, "monto_puja": 100000},
			wantStatus: http.StatusNotFound,
			wantError:  "lot not found",
		},
		{
			name:       "Admin_Cannot_Bid",
			lot:        activeLot(1, 100000),
			tokens:     1,
			userID:     adminID,
			request:    map[string]any{"id_lote": 1, "monto_puja": 100000},
			wantStatus: http.StatusForbidden,
			wantError:  "action not allowed for your role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := SetupTestBackend(t, tt.lot)
			backend.Tokens(t, tt.userID, tt.tokens)

			resp, w := ExecuteRequestAndParse(t, backend.router, http.MethodPost, "/pujas", tt.userID, tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				data := resp.(map[string]any)
				require.Equal(t, 1.0, data["id_lote"])
				require.Equal(t, float64(tt.userID), data["id_usuario"])
				require.Equal(t, "100000", data["monto_puja"])
				require.NotZero(t, data["id"])

				_, err := time.Parse(time.RFC3339, data["fecha_puja"].(string))
				require.NoError(t, err)
				return
			}
			require.Equal(t, tt.wantError, resp.(map[string]any)["error"])
		})
	}
}

// Token consumption and the leader exemption on the server
func TestPlaceBid_TokenAccounting(t *testing.T) {
	backend := SetupTestBackend(t, activeLot(1, 100000))
	backend.Tokens(t, viewerID, 1)
	backend.Tokens(t, rivalID, 1)

	bid := func(userID int64, amount int) int {
		_, w := ExecuteRequestAndParse(t, backend.router, http.MethodPost, "/pujas", userID,
			map[string]any{"id_lote": 1, "monto_puja": amount})
		return w.Code
	}
	tokens := func(userID int64) float64 {
		resp, w := ExecuteRequestAndParse(t, backend.router, http.MethodGet, "/suscripciones/check/10", userID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return resp.(map[string]any)["tokens_disponibles"].(float64)
	}

	require.Equal(t, http.StatusCreated, bid(viewerID, 100000))
	require.Equal(t, 0.0, tokens(viewerID))

	// leader raises on zero tokens
	require.Equal(t, http.StatusCreated, bid(viewerID, 105000))
	require.Equal(t, 0.0, tokens(viewerID))

	require.Equal(t, http.StatusConflict, bid(rivalID, 105000))
	require.Equal(t, 1.0, tokens(rivalID))
	require.Equal(t, http.StatusCreated, bid(rivalID, 120000))
	require.Equal(t, 0.0, tokens(rivalID))

	// outbid and out of tokens
	require.Equal(t, http.StatusForbidden, bid(viewerID, 200000))

	resp, w := ExecuteRequestAndParse(t, backend.router, http.MethodGet, "/lotes/1", viewerID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	lot := resp.(map[string]any)
	require.Equal(t, float64(rivalID), lot["id_ganador"])
	require.Equal(t, "120000", lot["monto_ganador_lote"])
	require.Equal(t, "120000", lot["ultima_puja"].(map[string]any)["monto"])
}

// Bid listings
func TestBidListings(t *testing.T) {
	closed := activeLot(2, 50000)
	backend := SetupTestBackend(t, activeLot(1, 100000), closed)
	backend.SeedBid(t, 1, viewerID, 100000)
	backend.SeedBid(t, 2, viewerID, 50000)
	closed.Status = model.AuctionClosed
	require.NoError(t, backend.repo.AddLot(closed))

	tests := []struct {
		name      string
		url       string
		userID    int64
		wantCount int
	}{
		{name: "My_Bids", url: "/pujas/mis-pujas", userID: viewerID, wantCount: 2},
		{name: "Active_Bids", url: "/pujas/activas", userID: viewerID, wantCount: 1},
		{name: "No_Bids", url: "/pujas/mis-pujas", userID: rivalID, wantCount: 0},
		{name: "Project_Lots", url: "/lotes/proyecto/10", userID: rivalID, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, backend.router, http.MethodGet, tt.url, tt.userID, nil)
			require.Equal(t, http.StatusOK, w.Code)
			require.Len(t, resp.([]any), tt.wantCount)
		})
	}
}
