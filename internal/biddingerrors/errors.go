package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrLotNotFound          = errors.New("lot not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoBids               = errors.New("no bids found")
)

// business logic errors
var (
	ErrInvalidBid    = errors.New("invalid bid")
	ErrInvalidID     = errors.New("invalid identifier")
	ErrInvalidAmount = errors.New("invalid bid amount")
	ErrInvalidLot    = errors.New("lot has no valid base price")
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrLotNotActive  = errors.New("lot auction is not active")
	ErrNoTokens      = errors.New("no tokens available")
	ErrForbidden     = errors.New("action not allowed for role")
)

// client-side workflow errors
var (
	ErrSubmissionInFlight = errors.New("bid submission already in progress")
	ErrDialogClosed       = errors.New("bid dialog already closed")
	ErrNoSnapshot         = errors.New("no lot snapshot available yet")
)

// ServerError is a rejection or transport failure reported by the backend.
// Message is shown to the user verbatim.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the text to surface for err. Server messages are passed
// through untouched; everything else uses its error string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
