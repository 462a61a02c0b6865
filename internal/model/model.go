// Package model contains the CRM domain types shared across layers.
// No persistence tags and no business logic here.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is a point-in-time CRM summary.
type Report struct {
	TotalCustomers int             `json:"total_customers"`
	TotalOrders    int             `json:"total_orders"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Source         string          `json:"source"`
}
