// Package api is the REST client for the auction backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/models"
	"lot-auction/utils"

	"github.com/shopspring/decimal"
)

// PlaceBidRequest is the body of POST /pujas
type PlaceBidRequest struct {
	LotID  int64           `json:"id_lote"`
	Amount decimal.Decimal `json:"monto_puja"`
}

// MarshalJSON writes the amount as a JSON number, which is what the backend
// contract expects.
func (r PlaceBidRequest) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"id_lote":%d,"monto_puja":%s}`, r.LotID, r.Amount.String())), nil
}

// Client talks to the auction backend on behalf of one viewer
type Client struct {
	baseURL   string
	authToken string
	viewerID  int64
	http      *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets an overall request timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithAuthToken sends the token as a bearer credential
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// NewClient creates a Client for viewerID against baseURL
func NewClient(baseURL string, viewerID int64, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		viewerID: viewerID,
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ViewerID returns the identity the client acts for
func (c *Client) ViewerID() int64 {
	return c.viewerID
}

// GetLot fetches a lot snapshot: GET /lotes/:id
func (c *Client) GetLot(ctx context.Context, lotID int64) (models.Lot, error) {
	var lot models.Lot
	if err := c.do(ctx, http.MethodGet, "/lotes/"+strconv.FormatInt(lotID, 10), nil, &lot); err != nil {
		return models.Lot{}, fmt.Errorf("get lot %d: %w", lotID, err)
	}
	return lot, nil
}

// GetLotsByProject fetches the lot list of a project
func (c *Client) GetLotsByProject(ctx context.Context, projectID int64) ([]models.Lot, error) {
	var lots []models.Lot
	if err := c.do(ctx, http.MethodGet, "/lotes/proyecto/"+strconv.FormatInt(projectID, 10), nil, &lots); err != nil {
		return nil, fmt.Errorf("get lots for project %d: %w", projectID, err)
	}
	return lots, nil
}

// PlaceBid submits a bid: POST /pujas
func (c *Client) PlaceBid(ctx context.Context, lotID int64, amount decimal.Decimal) (models.Bid, error) {
	var bid models.Bid
	req := PlaceBidRequest{LotID: lotID, Amount: amount}
	if err := c.do(ctx, http.MethodPost, "/pujas", req, &bid); err != nil {
		return models.Bid{}, fmt.Errorf("place bid on lot %d: %w", lotID, err)
	}
	return bid, nil
}

// CheckSubscription fetches the viewer's token balance for a project
func (c *Client) CheckSubscription(ctx context.Context, projectID int64) (models.SubscriptionStatus, error) {
	var status models.SubscriptionStatus
	if err := c.do(ctx, http.MethodGet, "/suscripciones/check/"+strconv.FormatInt(projectID, 10), nil, &status); err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("check subscription for project %d: %w", projectID, err)
	}
	return status, nil
}

// GetMyBids fetches the viewer's bid history
func (c *Client) GetMyBids(ctx context.Context) ([]models.Bid, error) {
	var bids []models.Bid
	if err := c.do(ctx, http.MethodGet, "/pujas/mis-pujas", nil, &bids); err != nil {
		return nil, fmt.Errorf("get my bids: %w", err)
	}
	return bids, nil
}

// GetMyActiveBids fetches the viewer's bids on lots still open
func (c *Client) GetMyActiveBids(ctx context.Context) ([]models.Bid, error) {
	var bids []models.Bid
	if err := c.do(ctx, http.MethodGet, "/pujas/activas", nil, &bids); err != nil {
		return nil, fmt.Errorf("get my active bids: %w", err)
	}
	return bids, nil
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.viewerID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(c.viewerID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &biddingerrors.ServerError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &biddingerrors.ServerError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &biddingerrors.ServerError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		utils.Warn("api: undecodable response", map[string]any{"method": method, "path": path, "error": err.Error()})
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// unwrap returns the data field of a {status, message, data} envelope, or
// the body itself when it is not enveloped.
func unwrap(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || len(env.Data) == 0 {
		return raw
	}
	return env.Data
}

func errorMessage(status int, raw []byte) string {
	var p errorPayload
	if err := json.Unmarshal(raw, &p); err == nil {
		if p.Error != "" {
			return p.Error
		}
		if p.Message != "" {
			return p.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}
