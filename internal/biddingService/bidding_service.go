package bidding

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lot-auction/internal/bidcalc"
	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/metrics"
	"lot-auction/internal/models"
	"lot-auction/internal/repository"
	"lot-auction/utils"
)

// BiddingService defines the business logic for lot auctions
type BiddingService struct {
	repo repository.AuctionDB
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB) *BiddingService {
	return &BiddingService{
		repo: repo,
	}
}

// PlaceBid validates and records a user's bid on a lot. The current leader
// may raise without spending a token; everyone else spends one.
func (s *BiddingService) PlaceBid(lotID, userID int64, amount decimal.Decimal) (bid models.Bid, err error) {
	defer func() { metrics.ObserveBid(err) }()

	if lotID <= 0 || userID <= 0 {
		return models.Bid{}, fmt.Errorf("service: %w - missing lot or user", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return models.Bid{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidAmount)
	}

	bid = models.Bid{
		LotID:     lotID,
		BidderID:  userID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}

	recorded, err := s.repo.RecordBid(bid, func(lot models.Lot, sub *models.Subscription) (bool, error) {
		return validateBid(lot, sub, userID, amount)
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to record bid on lot %d by user %d: %w", lotID, userID, err)
	}

	utils.Info("bid recorded", map[string]interface{}{
		"lot_id":  lotID,
		"user_id": userID,
		"amount":  amount.String(),
		"bid_id":  recorded.ID,
	})
	return recorded, nil
}

// validateBid applies the auction rules against the state held by the
// repository and reports whether a token must be spent
func validateBid(lot models.Lot, sub *models.Subscription, userID int64, amount decimal.Decimal) (bool, error) {
	if !lot.Status.AcceptsBids() {
		return false, fmt.Errorf("%w - lot is %s", biddingerrors.ErrLotNotActive, lot.Status)
	}

	top := bidcalc.CurrentTop(lot)
	if top.IsPositive() {
		if amount.LessThanOrEqual(top) {
			return false, fmt.Errorf("%w - current highest bid is %s", biddingerrors.ErrBidTooLow, top.StringFixed(2))
		}
	} else if amount.LessThan(lot.BasePrice) {
		return false, fmt.Errorf("%w - base price is %s", biddingerrors.ErrBidTooLow, lot.BasePrice.StringFixed(2))
	}

	leading := top.IsPositive() && lot.WinnerID != nil && *lot.WinnerID == userID
	if leading {
		return false, nil
	}
	if sub == nil || sub.TokensAvailable <= 0 {
		return false, biddingerrors.ErrNoTokens
	}
	return true, nil
}

// GetLot returns a lot with its current leading bid
func (s *BiddingService) GetLot(lotID int64) (models.Lot, error) {
	if lotID <= 0 {
		return models.Lot{}, fmt.Errorf("service: %w - empty lot ID", biddingerrors.ErrInvalidLot)
	}

	lot, err := s.repo.GetLot(lotID)
	if err != nil {
		return models.Lot{}, fmt.Errorf("service: failed to get lot %d: %w", lotID, err)
	}
	return lot, nil
}

// GetLotsByProject returns every lot of a project
func (s *BiddingService) GetLotsByProject(projectID int64) ([]models.Lot, error) {
	lots, err := s.repo.GetLotsByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get lots of project %d: %w", projectID, err)
	}
	return lots, nil
}

// GetBidsByUser returns the user's bids, newest first. No bids is an empty list.
func (s *BiddingService) GetBidsByUser(userID int64) ([]models.Bid, error) {
	bids, err := s.repo.GetBidsByUser(userID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return []models.Bid{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %d: %w", userID, err)
	}
	return bids, nil
}

// GetActiveBids returns the user's bids on lots whose auction is still open
func (s *BiddingService) GetActiveBids(userID int64) ([]models.Bid, error) {
	bids, err := s.GetBidsByUser(userID)
	if err != nil {
		return nil, err
	}

	status := make(map[int64]models.AuctionStatus)
	active := make([]models.Bid, 0, len(bids))
	for _, b := range bids {
		st, ok := status[b.LotID]
		if !ok {
			lot, err := s.repo.GetLot(b.LotID)
			if err != nil {
				return nil, fmt.Errorf("service: failed to get lot %d: %w", b.LotID, err)
			}
			st = lot.Status
			status[b.LotID] = st
		}
		if st.AcceptsBids() {
			active = append(active, b)
		}
	}
	return active, nil
}

// CheckSubscription reports the user's remaining tokens for a project. A
// user without a subscription has none.
func (s *BiddingService) CheckSubscription(userID, projectID int64) (models.SubscriptionStatus, error) {
	sub, err := s.repo.GetSubscription(userID, projectID)
	if errors.Is(err, biddingerrors.ErrSubscriptionNotFound) {
		return models.SubscriptionStatus{}, nil
	}
	if err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("service: failed to check subscription of user %d: %w", userID, err)
	}
	return models.SubscriptionStatus{TokensAvailable: sub.TokensAvailable}, nil
}

// GetUser resolves the account behind a request
func (s *BiddingService) GetUser(userID int64) (models.User, error) {
	u, err := s.repo.GetUser(userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get user %d: %w", userID, err)
	}
	return u, nil
}
