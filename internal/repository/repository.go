package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"lot-auction/internal/biddingerrors"
	model "lot-auction/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// BidRule inspects the lot and the bidder's subscription while the write is
// held and reports whether the bid consumes a token. A missing subscription
// is passed as nil.
type BidRule func(lot model.Lot, sub *model.Subscription) (consumeToken bool, err error)

// AuctionDB defines the storage interface of the auction backend
type AuctionDB interface {
	GetLot(lotID int64) (model.Lot, error)
	GetLotsByProject(projectID int64) ([]model.Lot, error)
	RecordBid(bid model.Bid, rule BidRule) (model.Bid, error)
	GetBidsByUser(userID int64) ([]model.Bid, error)
	GetSubscription(userID, projectID int64) (model.Subscription, error)
	GetUser(userID int64) (model.User, error)
}

// Seeder loads fixture data into a store
type Seeder interface {
	AddLot(lot model.Lot) error
	AddSubscription(sub model.Subscription) error
	AddUser(u model.User) error
	CountLots() (int64, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu            sync.RWMutex
	lots          map[int64]model.Lot
	bids          map[int64][]model.Bid           // key: lotID -> bids in arrival order
	userLots      map[int64][]int64               // key: userID -> lots the user has bid on
	subscriptions map[[2]int64]model.Subscription // key: (userID, projectID)
	users         map[int64]model.User
	nextBidID     int64
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		lots:          make(map[int64]model.Lot),
		bids:          make(map[int64][]model.Bid),
		userLots:      make(map[int64][]int64),
		subscriptions: make(map[[2]int64]model.Subscription),
		users:         make(map[int64]model.User),
	}
}

// GetLot returns the lot with its last bid embedded
func (r *MemoryRepo) GetLot(lotID int64) (model.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lot, ok := r.lots[lotID]
	if !ok {
		return model.Lot{}, fmt.Errorf("get lot %d: %w", lotID, biddingerrors.ErrLotNotFound)
	}
	return r.withLastBid(lot), nil
}

// GetLotsByProject returns the lots of a project ordered by id
func (r *MemoryRepo) GetLotsByProject(projectID int64) ([]model.Lot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lots := make([]model.Lot, 0)
	for _, lot := range r.lots {
		if lot.ProjectID == projectID {
			lots = append(lots, r.withLastBid(lot))
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots, nil
}

// RecordBid stores bid if rule accepts it, makes the bidder the lot leader
// and consumes a token when the rule asks for it
func (r *MemoryRepo) RecordBid(bid model.Bid, rule BidRule) (model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lot, ok := r.lots[bid.LotID]
	if !ok {
		return model.Bid{}, fmt.Errorf("record bid for lot %d: %w", bid.LotID, biddingerrors.ErrLotNotFound)
	}

	subKey := [2]int64{bid.BidderID, lot.ProjectID}
	var sub *model.Subscription
	if s, ok := r.subscriptions[subKey]; ok {
		sub = &s
	}

	consume, err := rule(r.withLastBid(lot), sub)
	if err != nil {
		return model.Bid{}, err
	}
	if consume {
		if sub == nil || sub.TokensAvailable <= 0 {
			return model.Bid{}, fmt.Errorf("record bid for lot %d: %w", bid.LotID, biddingerrors.ErrNoTokens)
		}
		sub.TokensAvailable--
		r.subscriptions[subKey] = *sub
	}

	r.nextBidID++
	bid.ID = r.nextBidID
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}
	r.bids[bid.LotID] = append(r.bids[bid.LotID], bid)

	winner := bid.BidderID
	lot.WinnerID = &winner
	lot.WinningAmount.Decimal = bid.Amount
	lot.WinningAmount.Valid = true
	r.lots[lot.ID] = lot

	for _, id := range r.userLots[bid.BidderID] {
		if id == bid.LotID {
			return bid, nil
		}
	}
	r.userLots[bid.BidderID] = append(r.userLots[bid.BidderID], bid.LotID)
	return bid, nil
}

// GetBidsByUser returns every bid a user has placed, newest first
func (r *MemoryRepo) GetBidsByUser(userID int64) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lotIDs, ok := r.userLots[userID]
	if !ok || len(lotIDs) == 0 {
		return nil, fmt.Errorf("get bids for user %d: %w", userID, biddingerrors.ErrNoBids)
	}

	var bids []model.Bid
	for _, lotID := range lotIDs {
		for _, b := range r.bids[lotID] {
			if b.BidderID == userID {
				bids = append(bids, b)
			}
		}
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].ID > bids[j].ID })
	return bids, nil
}

// GetSubscription returns the user's subscription to a project
func (r *MemoryRepo) GetSubscription(userID, projectID int64) (model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscriptions[[2]int64{userID, projectID}]
	if !ok {
		return model.Subscription{}, fmt.Errorf("get subscription of user %d to project %d: %w", userID, projectID, biddingerrors.ErrSubscriptionNotFound)
	}
	return sub, nil
}

func (r *MemoryRepo) GetUser(userID int64) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %d: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

// AddLot adds or replaces a lot. Used for seeding and tests.
func (r *MemoryRepo) AddLot(lot model.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot.LastBid = nil
	r.lots[lot.ID] = lot
	return nil
}

// CountLots reports how many lots are stored
func (r *MemoryRepo) CountLots() (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.lots)), nil
}

// AddSubscription adds or replaces a subscription. Used for seeding and tests.
func (r *MemoryRepo) AddSubscription(sub model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[[2]int64{sub.UserID, sub.ProjectID}] = sub
	return nil
}

// AddUser adds or replaces a user. Used for seeding and tests.
func (r *MemoryRepo) AddUser(u model.User) error {
	if _, err := model.ParseRole(string(u.Role)); err != nil {
		return fmt.Errorf("add user %d: %w", u.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

// withLastBid embeds the most recent bid; callers hold the lock
func (r *MemoryRepo) withLastBid(lot model.Lot) model.Lot {
	bids := r.bids[lot.ID]
	if len(bids) == 0 {
		lot.LastBid = nil
		return lot
	}
	last := bids[len(bids)-1]
	lot.LastBid = &model.LastBid{Amount: last.Amount, BidderID: last.BidderID, CreatedAt: last.CreatedAt}
	return lot
}
