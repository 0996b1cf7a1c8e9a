package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"lot-auction/internal/api"
	"lot-auction/internal/bidcalc"
	"lot-auction/internal/bidclient"
	bidding "lot-auction/internal/biddingService"
	"lot-auction/internal/cache"
	model "lot-auction/internal/models"
	"lot-auction/internal/repository"
	"lot-auction/internal/server"
	"lot-auction/internal/synchronizer"
)

const (
	adminID   int64 = 1
	viewerID  int64 = 2
	rivalID   int64 = 3
	projectID int64 = 10
)

// testBackend is a running backend over a seeded in-memory repository
type testBackend struct {
	repo   *repository.MemoryRepo
	router *gin.Engine
	server *httptest.Server
}

// SetupTestBackend starts the real router on an httptest server and seeds
// the accounts used by every test. Lots are added by the caller.
func SetupTestBackend(t *testing.T, lots ...model.Lot) *testBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.AddUser(model.User{ID: adminID, Name: "Admin", Role: model.RoleAdmin}))
	require.NoError(t, repo.AddUser(model.User{ID: viewerID, Name: "Viewer", Role: model.RoleClient}))
	require.NoError(t, repo.AddUser(model.User{ID: rivalID, Name: "Rival", Role: model.RoleClient}))
	for _, lot := range lots {
		require.NoError(t, repo.AddLot(lot))
	}

	router := server.SetupRouter(bidding.NewBiddingService(repo))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testBackend{repo: repo, router: router, server: srv}
}

// Tokens sets a user's token balance for the test project
func (b *testBackend) Tokens(t *testing.T, userID int64, tokens int) {
	t.Helper()
	require.NoError(t, b.repo.AddSubscription(model.Subscription{UserID: userID, ProjectID: projectID, TokensAvailable: tokens}))
}

// SeedBid records a bid directly in the repository, bypassing the rules
func (b *testBackend) SeedBid(t *testing.T, lotID, userID int64, amount int64) {
	t.Helper()
	_, err := b.repo.RecordBid(model.Bid{LotID: lotID, BidderID: userID, Amount: decimal.NewFromInt(amount)},
		func(model.Lot, *model.Subscription) (bool, error) { return false, nil })
	require.NoError(t, err)
}

// Client returns a REST client acting as userID
func (b *testBackend) Client(userID int64) *api.Client {
	return api.NewClient(b.server.URL, userID, api.WithTimeout(5*time.Second))
}

// OpenLotView mounts a lot view for userID and waits for a snapshot that
// carries the token balance
func (b *testBackend) OpenLotView(t *testing.T, lotID, userID int64) (*bidclient.LotView, *cache.QueryCache) {
	t.Helper()

	qc := cache.New(nil)
	view := bidclient.NewLotView(b.Client(userID), qc, bidcalc.NewCalculator(bidcalc.StepIncrement), synchronizer.Config{
		LotID:    lotID,
		ViewerID: userID,
		Interval: time.Hour,
	})
	require.NoError(t, view.Open(context.Background()))
	t.Cleanup(view.Close)

	WaitForSnapshot(t, view, func(s synchronizer.Snapshot) bool { return s.Subscription != nil })
	return view, qc
}

// WaitForSnapshot blocks until the view's current snapshot satisfies cond
func WaitForSnapshot(t *testing.T, view *bidclient.LotView, cond func(synchronizer.Snapshot) bool) synchronizer.Snapshot {
	t.Helper()
	var snap synchronizer.Snapshot
	require.Eventually(t, func() bool {
		s, ok := view.Current()
		if !ok || !cond(s) {
			return false
		}
		snap = s
		return true
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

// ExecuteRequestAndParse executes an HTTP request on the router as userID and
// returns the envelope's data (or the whole body on errors)
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, userID int64, body any) (any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(server.UserHeader, strconv.FormatInt(userID, 10))
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if w.Code < http.StatusBadRequest {
		return resp["data"], w
	}
	return resp, w
}

func activeLot(id int64, basePrice int64) model.Lot {
	return model.Lot{
		ID:        id,
		Name:      "Lote " + strconv.FormatInt(id, 10),
		BasePrice: decimal.NewFromInt(basePrice),
		Status:    model.AuctionActive,
		ProjectID: projectID,
	}
}
