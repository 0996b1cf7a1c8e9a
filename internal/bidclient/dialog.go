// Package bidclient implements the bid dialog of a lot view: local
// validation against the latest snapshot, a single-flight submit, and cache
// invalidation once the server accepts the bid.
package bidclient

import (
	"context"
	"fmt"
	"sync"

	"lot-auction/internal/bidcalc"
	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/cache"
	"lot-auction/internal/models"
	"lot-auction/internal/synchronizer"
	"lot-auction/utils"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=dialog.go -destination=mock_bidclient.go -package=bidclient

// BidPlacer submits a bid to the backend
type BidPlacer interface {
	PlaceBid(ctx context.Context, lotID int64, amount decimal.Decimal) (models.Bid, error)
}

// Invalidator marks cached queries stale
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...cache.Key) error
}

// State of a bid dialog
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Evaluation is the validation result for a candidate amount
type Evaluation struct {
	Quote     bidcalc.Quote
	Amount    decimal.Decimal
	CanSubmit bool
	Reason    error
}

// Dialog is one open bid dialog for a lot
type Dialog struct {
	placer      BidPlacer
	invalidator Invalidator
	calc        *bidcalc.Calculator
	lotID       int64
	viewerID    int64

	mu         sync.Mutex
	state      State
	input      string
	errMessage string
}

func NewDialog(placer BidPlacer, invalidator Invalidator, calc *bidcalc.Calculator, lotID, viewerID int64) *Dialog {
	return &Dialog{
		placer:      placer,
		invalidator: invalidator,
		calc:        calc,
		lotID:       lotID,
		viewerID:    viewerID,
	}
}

func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Input returns the last amount the user tried to submit
func (d *Dialog) Input() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// ErrorMessage is the server message of the last failed submit
func (d *Dialog) ErrorMessage() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errMessage
}

// Evaluate checks input against snap without contacting the server
func (d *Dialog) Evaluate(snap synchronizer.Snapshot, input string) Evaluation {
	lot := snap.Lot
	if lot.ID != d.lotID {
		return Evaluation{Reason: fmt.Errorf("%w: snapshot is for lot %d", biddingerrors.ErrNoSnapshot, lot.ID)}
	}

	quote, err := d.calc.Compute(lot, d.viewerID)
	if err != nil {
		return Evaluation{Reason: err}
	}
	ev := Evaluation{Quote: quote}

	if !lot.Status.AcceptsBids() {
		ev.Reason = fmt.Errorf("%w: auction is %s", biddingerrors.ErrLotNotActive, lot.Status)
		return ev
	}
	if !quote.IsLeader && (snap.Subscription == nil || !snap.Subscription.HasTokens()) {
		ev.Reason = biddingerrors.ErrNoTokens
		return ev
	}

	amount, err := bidcalc.ParseAmount(input)
	if err != nil {
		ev.Reason = err
		return ev
	}
	ev.Amount = amount

	if !quote.Accepts(amount) {
		if quote.IsLeader {
			ev.Reason = fmt.Errorf("%w: must exceed your current bid of %s", biddingerrors.ErrBidTooLow, quote.CurrentTopAmount.String())
		} else {
			ev.Reason = fmt.Errorf("%w: minimum bid is %s", biddingerrors.ErrBidTooLow, quote.MinimumNextBid.String())
		}
		return ev
	}

	ev.CanSubmit = true
	return ev
}

// Submit validates input against snap and, when valid, sends the bid. A
// call made while another is in flight returns ErrSubmissionInFlight without
// touching the network. Failures are never retried.
func (d *Dialog) Submit(ctx context.Context, snap synchronizer.Snapshot, input string) (models.Bid, error) {
	d.mu.Lock()
	switch d.state {
	case StateSubmitting:
		d.mu.Unlock()
		return models.Bid{}, biddingerrors.ErrSubmissionInFlight
	case StateClosed:
		d.mu.Unlock()
		return models.Bid{}, biddingerrors.ErrDialogClosed
	}

	d.input = input
	ev := d.Evaluate(snap, input)
	if !ev.CanSubmit {
		d.mu.Unlock()
		return models.Bid{}, ev.Reason
	}
	d.state = StateSubmitting
	d.errMessage = ""
	d.mu.Unlock()

	attempt := utils.GenerateID()
	fields := map[string]any{
		"attempt_id": attempt,
		"lot_id":     d.lotID,
		"viewer_id":  d.viewerID,
		"amount":     ev.Amount.String(),
		"is_leader":  ev.Quote.IsLeader,
	}

	bid, err := d.placer.PlaceBid(ctx, d.lotID, ev.Amount)
	if err != nil {
		d.mu.Lock()
		d.state = StateFailed
		d.errMessage = biddingerrors.UserMessage(err)
		d.mu.Unlock()

		fields["error"] = err.Error()
		utils.Warn("bidclient: bid rejected", fields)
		return models.Bid{}, err
	}

	d.mu.Lock()
	d.state = StateClosed
	d.mu.Unlock()

	utils.Info("bidclient: bid accepted", fields)

	if err := d.invalidator.Invalidate(ctx, d.affectedKeys(snap.Lot.ProjectID)...); err != nil {
		utils.Warn("bidclient: invalidation failed", map[string]any{"attempt_id": attempt, "error": err.Error()})
	}
	return bid, nil
}

// affectedKeys lists every query a new bid makes outdated
func (d *Dialog) affectedKeys(projectID int64) []cache.Key {
	return []cache.Key{
		cache.LotKey(d.lotID),
		cache.ProjectLotsKey(projectID),
		cache.MyBidsKey(d.viewerID),
		cache.ActiveBidsKey(d.viewerID),
		cache.SubscriptionKey(d.viewerID, projectID),
	}
}
