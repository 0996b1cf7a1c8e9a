package helpers

import "github.com/shopspring/decimal"

// Request/Response DTOs
type PlaceBidRequest struct {
	LotID  int64           `json:"id_lote" binding:"required,gt=0"`
	Amount decimal.Decimal `json:"monto_puja"`
}

type BidResponse struct {
	ID        int64           `json:"id"`
	LotID     int64           `json:"id_lote"`
	UserID    int64           `json:"id_usuario"`
	Amount    decimal.Decimal `json:"monto_puja"`
	CreatedAt string          `json:"fecha_puja"`
}
