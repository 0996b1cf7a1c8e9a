package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"lot-auction/internal/biddingerrors"
	model "lot-auction/internal/models"
	"lot-auction/services/bidding/helpers"
	"lot-auction/utils"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(lotID, userID int64, amount decimal.Decimal) (model.Bid, error)
	GetLot(lotID int64) (model.Lot, error)
	GetLotsByProject(projectID int64) ([]model.Lot, error)
	GetBidsByUser(userID int64) ([]model.Bid, error)
	GetActiveBids(userID int64) ([]model.Bid, error)
	CheckSubscription(userID, projectID int64) (model.SubscriptionStatus, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// PlaceBidHandler handles POST /pujas
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "PlaceBidHandler", biddingerrors.ErrUserNotFound, nil)
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}
	if !req.Amount.IsPositive() {
		helpers.HandleBindError(c, "PlaceBidHandler", biddingerrors.ErrInvalidAmount)
		return
	}

	bid, err := h.service.PlaceBid(req.LotID, user.ID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"lot_id":  req.LotID,
			"user_id": user.ID,
			"amount":  req.Amount.String(),
		})
		return
	}

	resp := helpers.BidResponse{
		ID:        bid.ID,
		LotID:     bid.LotID,
		UserID:    bid.BidderID,
		Amount:    bid.Amount,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":  bid.ID,
		"lot_id":  bid.LotID,
		"user_id": user.ID,
		"amount":  bid.Amount.String(),
	})
}

// GetLotHandler handles GET /lotes/:id
func (h *BiddingHandler) GetLotHandler(c *gin.Context) {
	lotID, err := helpers.ParseIDParam(c, "id")
	if err != nil {
		helpers.RespondError(c, "GetLotHandler", err, nil)
		return
	}

	lot, err := h.service.GetLot(lotID)
	if err != nil {
		helpers.RespondError(c, "GetLotHandler", err, map[string]any{"lot_id": lotID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, lot, "lot retrieved successfully")
}

// GetLotsByProjectHandler handles GET /lotes/proyecto/:id_proyecto
func (h *BiddingHandler) GetLotsByProjectHandler(c *gin.Context) {
	projectID, err := helpers.ParseIDParam(c, "id_proyecto")
	if err != nil {
		helpers.RespondError(c, "GetLotsByProjectHandler", err, nil)
		return
	}

	lots, err := h.service.GetLotsByProject(projectID)
	if err != nil {
		helpers.RespondError(c, "GetLotsByProjectHandler", err, map[string]any{"project_id": projectID})
		return
	}
	if lots == nil {
		lots = []model.Lot{}
	}

	utils.JSONResponse(c, http.StatusOK, lots, "lots retrieved successfully")
	helpers.LogSuccess("GetLotsByProjectHandler", "lots retrieved successfully", map[string]any{
		"project_id": projectID,
		"count":      len(lots),
	})
}

// GetMyBidsHandler handles GET /pujas/mis-pujas
func (h *BiddingHandler) GetMyBidsHandler(c *gin.Context) {
	h.listBids(c, "GetMyBidsHandler", h.service.GetBidsByUser)
}

// GetActiveBidsHandler handles GET /pujas/activas
func (h *BiddingHandler) GetActiveBidsHandler(c *gin.Context) {
	h.listBids(c, "GetActiveBidsHandler", h.service.GetActiveBids)
}

func (h *BiddingHandler) listBids(c *gin.Context, handlerName string, list func(int64) ([]model.Bid, error)) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, handlerName, biddingerrors.ErrUserNotFound, nil)
		return
	}

	bids, err := list(user.ID)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"user_id": user.ID})
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess(handlerName, "bids retrieved successfully", map[string]any{
		"user_id": user.ID,
		"count":   len(bids),
	})
}

// CheckSubscriptionHandler handles GET /suscripciones/check/:id_proyecto
func (h *BiddingHandler) CheckSubscriptionHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "CheckSubscriptionHandler", biddingerrors.ErrUserNotFound, nil)
		return
	}
	projectID, err := helpers.ParseIDParam(c, "id_proyecto")
	if err != nil {
		helpers.RespondError(c, "CheckSubscriptionHandler", err, nil)
		return
	}

	status, err := h.service.CheckSubscription(user.ID, projectID)
	if err != nil {
		helpers.RespondError(c, "CheckSubscriptionHandler", err, map[string]any{
			"user_id":    user.ID,
			"project_id": projectID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, status, "subscription checked")
}
