package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AuctionStatus is the lifecycle state of a lot's bidding process
type AuctionStatus string

const (
	AuctionPending AuctionStatus = "pendiente"
	AuctionActive  AuctionStatus = "activa"
	AuctionClosed  AuctionStatus = "finalizada"
)

// Valid reports whether s is one of the known auction states
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionPending, AuctionActive, AuctionClosed:
		return true
	}
	return false
}

// AcceptsBids reports whether a lot in this state takes new bids
func (s AuctionStatus) AcceptsBids() bool {
	return s == AuctionActive
}

// ParseAuctionStatus converts the wire value into an AuctionStatus
func ParseAuctionStatus(raw string) (AuctionStatus, error) {
	s := AuctionStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown auction status %q", raw)
	}
	return s, nil
}

// LastBid is the leading bid as embedded in a lot snapshot
type LastBid struct {
	Amount    decimal.Decimal `json:"monto"`
	BidderID  int64           `json:"id_usuario"`
	CreatedAt time.Time       `json:"fecha_puja"`
}

// Lot represents an auctioned parcel of a project
type Lot struct {
	ID            int64                       `json:"id" gorm:"primaryKey"`
	Name          string                      `json:"nombre_lote"`
	BasePrice     decimal.Decimal             `json:"precio_base" gorm:"type:decimal(18,2)"`
	Status        AuctionStatus               `json:"estado_subasta" gorm:"type:varchar(16);index"`
	ClosesAt      *time.Time                  `json:"fecha_fin_subasta,omitempty"`
	ProjectID     int64                       `json:"id_proyecto" gorm:"index"`
	WinnerID      *int64                      `json:"id_ganador"`
	WinningAmount decimal.NullDecimal         `json:"monto_ganador_lote" gorm:"type:decimal(18,2)"`
	LastBid       *LastBid                    `json:"ultima_puja,omitempty" gorm:"-"`
	Images        datatypes.JSONSlice[string] `json:"imagenes,omitempty"`
}

// TableName keeps the backend table aligned with the REST resource name
func (Lot) TableName() string { return "lotes" }

// Bid represents a bidder's offer on a lot
type Bid struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	LotID     int64           `json:"id_lote" gorm:"index"`
	BidderID  int64           `json:"id_usuario" gorm:"index"`
	Amount    decimal.Decimal `json:"monto_puja" gorm:"type:decimal(18,2)"`
	CreatedAt time.Time       `json:"fecha_puja"`
}

func (Bid) TableName() string { return "pujas" }

// Subscription is a bidder's participation grant for a project
type Subscription struct {
	ID              int64 `json:"id" gorm:"primaryKey"`
	UserID          int64 `json:"id_usuario" gorm:"uniqueIndex:idx_suscripcion_usuario_proyecto"`
	ProjectID       int64 `json:"id_proyecto" gorm:"uniqueIndex:idx_suscripcion_usuario_proyecto"`
	TokensAvailable int   `json:"tokens_disponibles"`
}

func (Subscription) TableName() string { return "suscripciones" }

// SubscriptionStatus is the subscription-check payload the client gates on
type SubscriptionStatus struct {
	TokensAvailable int `json:"tokens_disponibles"`
}

// HasTokens reports whether at least one bid credit is left
func (s SubscriptionStatus) HasTokens() bool {
	return s.TokensAvailable > 0
}

// User represents a platform account
type User struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"nombre"`
	Role Role   `json:"rol" gorm:"type:varchar(16)"`
}

func (User) TableName() string { return "usuarios" }
