package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
)

// OrderFilter narrows order listings. Zero values are ignored.
type OrderFilter struct {
	TotalAmountGte *decimal.Decimal
	TotalAmountLte *decimal.Decimal
	TotalAmountGt  *decimal.Decimal
	OrderDateGte   *time.Time
	OrderDateLte   *time.Time
	CustomerID     *int64
	CustomerName   string
	CustomerEmail  string
	ProductName    string
	ProductID      *int64
	// ProductCount matches orders linking exactly this many products.
	ProductCount *int
}

// OrderRepository is data access for orders and their product links.
// Returned orders carry Customer and Products populated.
type OrderRepository interface {
	// Create stores the order row and its product links atomically.
	Create(ctx context.Context, o *model.Order, productIDs []int64) (*model.Order, error)

	FindByID(ctx context.Context, id int64) (*model.Order, error)
	List(ctx context.Context, f OrderFilter, s Sort, pq PageQuery) (*PageResult[model.Order], error)
	Count(ctx context.Context) (int, error)
	SumRevenue(ctx context.Context) (decimal.Decimal, error)
}
