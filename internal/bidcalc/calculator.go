// Package bidcalc derives the minimum acceptable next bid from a lot snapshot.
package bidcalc

import (
	"fmt"
	"strings"

	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/models"

	"github.com/shopspring/decimal"
)

// Increment policies. The product runs on a single configured policy.
var (
	CentIncrement = decimal.New(1, -2)
	StepIncrement = decimal.NewFromInt(10000)

	DefaultIncrement = StepIncrement
)

// Quote is the bidding position of a viewer on a lot
type Quote struct {
	IsLeader         bool
	HasExistingBids  bool
	CurrentTopAmount decimal.Decimal
	MinimumNextBid   decimal.Decimal
}

// Accepts reports whether amount clears the quote. A leader only has to beat
// its own top amount.
func (q Quote) Accepts(amount decimal.Decimal) bool {
	if amount.GreaterThanOrEqual(q.MinimumNextBid) {
		return true
	}
	return q.IsLeader && amount.GreaterThan(q.CurrentTopAmount)
}

// Calculator computes quotes with a fixed minimum increment
type Calculator struct {
	increment decimal.Decimal
}

// NewCalculator returns a Calculator using increment, falling back to
// DefaultIncrement when increment is not positive.
func NewCalculator(increment decimal.Decimal) *Calculator {
	if !increment.IsPositive() {
		increment = DefaultIncrement
	}
	return &Calculator{increment: increment}
}

// Increment returns the configured minimum increment
func (c *Calculator) Increment() decimal.Decimal {
	return c.increment
}

// CurrentTop returns the leading amount of a lot snapshot: the embedded last
// bid, else the winning amount, else zero.
func CurrentTop(lot models.Lot) decimal.Decimal {
	if lot.LastBid != nil {
		return lot.LastBid.Amount
	}
	if lot.WinningAmount.Valid {
		return lot.WinningAmount.Decimal
	}
	return decimal.Zero
}

// Compute returns the quote of viewerID on lot
func (c *Calculator) Compute(lot models.Lot, viewerID int64) (Quote, error) {
	if !lot.BasePrice.IsPositive() {
		return Quote{}, fmt.Errorf("lot %d: %w", lot.ID, biddingerrors.ErrInvalidLot)
	}

	top := CurrentTop(lot)
	q := Quote{
		CurrentTopAmount: top,
		HasExistingBids:  top.IsPositive(),
		MinimumNextBid:   lot.BasePrice,
	}
	if q.HasExistingBids {
		q.MinimumNextBid = top.Add(c.increment)
		q.IsLeader = lot.WinnerID != nil && *lot.WinnerID == viewerID
	}
	return q, nil
}

// ParseAmount parses a candidate amount typed by the user
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", biddingerrors.ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", biddingerrors.ErrInvalidAmount, raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", biddingerrors.ErrInvalidAmount)
	}
	return amount, nil
}
