// Package synchronizer keeps a mounted lot view close to the server's truth
// by polling the lot on a fixed interval and refetching whenever the shared
// cache invalidates one of its queries.
package synchronizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"lot-auction/internal/cache"
	"lot-auction/internal/models"
	"lot-auction/utils"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the poll period of a lot detail view
const DefaultInterval = 3 * time.Second

var ErrAlreadyRunning = errors.New("synchronizer already running")

// LotSource is the part of the backend client the synchronizer reads from
type LotSource interface {
	GetLot(ctx context.Context, lotID int64) (models.Lot, error)
	CheckSubscription(ctx context.Context, projectID int64) (models.SubscriptionStatus, error)
}

// Snapshot is the latest known state of a lot view. Stale is set when the
// most recent lot poll failed and Lot is the last-known-good value.
type Snapshot struct {
	Lot          models.Lot
	Subscription *models.SubscriptionStatus
	FetchedAt    time.Time
	Stale        bool
	Err          error
}

// Config selects what a Synchronizer watches. A zero ProjectID is taken from
// the first lot snapshot; a zero ViewerID skips the token query.
type Config struct {
	LotID     int64
	ProjectID int64
	ViewerID  int64
	Interval  time.Duration
}

// Synchronizer polls one lot. It is started when a lot view mounts and
// stopped when it unmounts.
type Synchronizer struct {
	src   LotSource
	cache *cache.QueryCache
	clock clockwork.Clock
	cfg   Config

	updates chan Snapshot

	mu        sync.Mutex
	current   Snapshot
	hasLot    bool
	projectID int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithClock drives polling from clock instead of wall time
func WithClock(clock clockwork.Clock) Option {
	return func(s *Synchronizer) { s.clock = clock }
}

func New(src LotSource, c *cache.QueryCache, cfg Config, opts ...Option) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Synchronizer{
		src:       src,
		cache:     c,
		clock:     clockwork.NewRealClock(),
		cfg:       cfg,
		updates:   make(chan Snapshot, 1),
		projectID: cfg.ProjectID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates delivers snapshots as they change. Only the most recent unread
// snapshot is kept.
func (s *Synchronizer) Updates() <-chan Snapshot {
	return s.updates
}

// Current returns the latest snapshot and whether a lot has been fetched yet
func (s *Synchronizer) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasLot
}

// ProjectID returns the project the watched lot belongs to, once known
func (s *Synchronizer) ProjectID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// Start begins polling in the background. The first fetch is immediate.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	return nil
}

// Stop ends polling and waits for the loop to exit. Responses that resolve
// afterwards are discarded.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	lotKey := cache.LotKey(s.cfg.LotID)
	lotInvalidated, unsubscribeLot := s.cache.Subscribe(lotKey)
	unsubscribers := []func(){unsubscribeLot}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	utils.Debug("synchronizer: started", map[string]any{"lot_id": s.cfg.LotID, "interval": s.cfg.Interval.String()})

	var subInvalidated <-chan struct{}
	// the token query starts once the project is known, which may need the
	// first successful lot fetch
	watchSubscription := func() {
		if subInvalidated != nil || s.cfg.ViewerID == 0 {
			return
		}
		projectID := s.ProjectID()
		if projectID == 0 {
			return
		}
		ch, unsubscribe := s.cache.Subscribe(cache.SubscriptionKey(s.cfg.ViewerID, projectID))
		unsubscribers = append(unsubscribers, unsubscribe)
		subInvalidated = ch
		s.refreshSubscription(ctx, projectID)
	}

	s.seedFromCache(ctx)
	s.refreshLot(ctx)
	watchSubscription()

	for {
		select {
		case <-ctx.Done():
			utils.Debug("synchronizer: stopped", map[string]any{"lot_id": s.cfg.LotID})
			return
		case <-ticker.Chan():
			s.refreshLot(ctx)
			watchSubscription()
			// retry a token query that has never succeeded
			if subInvalidated != nil && !s.hasSubscription() {
				s.refreshSubscription(ctx, s.ProjectID())
			}
		case <-lotInvalidated:
			s.refreshLot(ctx)
			watchSubscription()
		case <-subInvalidated:
			s.refreshSubscription(ctx, s.ProjectID())
		}
	}
}

// seedFromCache publishes whatever the shared cache already holds for the
// lot and the viewer's tokens, carrying the entry's stale flag, so a view has
// something to show before its first poll resolves.
func (s *Synchronizer) seedFromCache(ctx context.Context) {
	lot, ok, err := cache.Get[models.Lot](ctx, s.cache, cache.LotKey(s.cfg.LotID))
	if err != nil {
		utils.Warn("synchronizer: cached lot unreadable", map[string]any{"lot_id": s.cfg.LotID, "error": err.Error()})
	}
	if !ok || ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.current.Lot = lot.Value
	s.current.FetchedAt = lot.UpdatedAt
	s.current.Stale = lot.Stale
	s.hasLot = true
	if s.projectID == 0 {
		s.projectID = lot.Value.ProjectID
	}
	projectID := s.projectID
	s.mu.Unlock()

	if s.cfg.ViewerID != 0 && projectID != 0 {
		sub, ok, err := cache.Get[models.SubscriptionStatus](ctx, s.cache, cache.SubscriptionKey(s.cfg.ViewerID, projectID))
		if err != nil {
			utils.Warn("synchronizer: cached subscription unreadable", map[string]any{"project_id": projectID, "error": err.Error()})
		}
		if ok && !sub.Stale {
			s.mu.Lock()
			s.current.Subscription = &sub.Value
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	snap := s.current
	s.mu.Unlock()

	utils.Debug("synchronizer: seeded from cache", map[string]any{"lot_id": s.cfg.LotID, "stale": snap.Stale})
	s.publish(snap)
}

func (s *Synchronizer) refreshLot(ctx context.Context) {
	lotID := s.cfg.LotID
	lot, err := cache.Fetch(ctx, s.cache, cache.LotKey(lotID), func(ctx context.Context) (models.Lot, error) {
		return s.src.GetLot(ctx, lotID)
	})
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if err != nil {
		s.current.Stale = true
		s.current.Err = err
	} else {
		s.current.Lot = lot
		s.current.FetchedAt = s.clock.Now()
		s.current.Stale = false
		s.current.Err = nil
		s.hasLot = true
		if s.projectID == 0 {
			s.projectID = lot.ProjectID
		}
	}
	snap, hasLot := s.current, s.hasLot
	s.mu.Unlock()

	if err != nil {
		utils.Warn("synchronizer: lot poll failed", map[string]any{"lot_id": lotID, "error": err.Error()})
	}
	if hasLot {
		s.publish(snap)
	}
}

func (s *Synchronizer) refreshSubscription(ctx context.Context, projectID int64) {
	status, err := cache.Fetch(ctx, s.cache, cache.SubscriptionKey(s.cfg.ViewerID, projectID), func(ctx context.Context) (models.SubscriptionStatus, error) {
		return s.src.CheckSubscription(ctx, projectID)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		utils.Warn("synchronizer: subscription check failed", map[string]any{"project_id": projectID, "error": err.Error()})
		return
	}

	s.mu.Lock()
	s.current.Subscription = &status
	snap, hasLot := s.current, s.hasLot
	s.mu.Unlock()

	if hasLot {
		s.publish(snap)
	}
}

func (s *Synchronizer) hasSubscription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Subscription != nil
}

// publish replaces any unread snapshot with snap. Only run calls it.
func (s *Synchronizer) publish(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
