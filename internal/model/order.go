package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order links one customer to a set of distinct products.
// TotalAmount is the sum of the linked products' prices when the order was placed.
type Order struct {
	ID          int64           `json:"id"`
	CustomerID  int64           `json:"customer_id"`
	Customer    *Customer       `json:"customer,omitempty"`
	Products    []Product       `json:"products,omitempty"`
	OrderDate   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}
