package bidclient

import (
	"context"

	"lot-auction/internal/bidcalc"
	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/cache"
	"lot-auction/internal/models"
	"lot-auction/internal/synchronizer"
)

// Backend is what a lot view needs from the REST client
type Backend interface {
	synchronizer.LotSource
	BidPlacer
}

// LotView is a mounted lot detail view: one synchronizer plus the dialogs
// opened on it
type LotView struct {
	backend  Backend
	cache    *cache.QueryCache
	calc     *bidcalc.Calculator
	sync     *synchronizer.Synchronizer
	lotID    int64
	viewerID int64
}

func NewLotView(backend Backend, c *cache.QueryCache, calc *bidcalc.Calculator, cfg synchronizer.Config, opts ...synchronizer.Option) *LotView {
	return &LotView{
		backend:  backend,
		cache:    c,
		calc:     calc,
		sync:     synchronizer.New(backend, c, cfg, opts...),
		lotID:    cfg.LotID,
		viewerID: cfg.ViewerID,
	}
}

// Open mounts the view and starts polling
func (v *LotView) Open(ctx context.Context) error {
	return v.sync.Start(ctx)
}

// Close unmounts the view
func (v *LotView) Close() {
	v.sync.Stop()
}

func (v *LotView) Snapshots() <-chan synchronizer.Snapshot {
	return v.sync.Updates()
}

func (v *LotView) Current() (synchronizer.Snapshot, bool) {
	return v.sync.Current()
}

func (v *LotView) NewDialog() *Dialog {
	return NewDialog(v.backend, v.cache, v.calc, v.lotID, v.viewerID)
}

// Evaluate validates input against the latest snapshot
func (v *LotView) Evaluate(d *Dialog, input string) (Evaluation, error) {
	snap, ok := v.sync.Current()
	if !ok {
		return Evaluation{}, biddingerrors.ErrNoSnapshot
	}
	return d.Evaluate(snap, input), nil
}

// Submit sends input through d using the latest snapshot
func (v *LotView) Submit(ctx context.Context, d *Dialog, input string) (models.Bid, error) {
	snap, ok := v.sync.Current()
	if !ok {
		return models.Bid{}, biddingerrors.ErrNoSnapshot
	}
	return d.Submit(ctx, snap, input)
}
