package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Price is positive and Stock never negative.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
}
