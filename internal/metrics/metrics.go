package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lot-auction/internal/biddingerrors"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auction_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	bidsPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bid attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveRequest records one served request. route is the matched pattern,
// not the raw path.
func ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveBid counts a bid attempt under the outcome err maps to
func ObserveBid(err error) {
	bidsPlaced.WithLabelValues(Outcome(err)).Inc()
}

// Outcome names the result of a bid attempt
func Outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, biddingerrors.ErrNoTokens):
		return "no_tokens"
	case errors.Is(err, biddingerrors.ErrLotNotActive):
		return "not_active"
	case errors.Is(err, biddingerrors.ErrLotNotFound):
		return "unknown_lot"
	case errors.Is(err, biddingerrors.ErrInvalidBid), errors.Is(err, biddingerrors.ErrInvalidAmount):
		return "invalid"
	default:
		return "error"
	}
}
