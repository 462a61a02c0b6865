package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
)

// ProductFilter narrows product listings. Zero values are ignored.
type ProductFilter struct {
	Name     string
	PriceGte *decimal.Decimal
	PriceLte *decimal.Decimal
	Stock    *int
	StockGte *int
	StockLte *int
	// LowStockBelow keeps products whose stock is strictly under the value.
	LowStockBelow *int
}

// ProductRepository is data access for products.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) (*model.Product, error)
	FindByID(ctx context.Context, id int64) (*model.Product, error)

	// FindByIDs returns the products that exist among ids, keyed by ID.
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)

	List(ctx context.Context, f ProductFilter, s Sort, pq PageQuery) (*PageResult[model.Product], error)

	// RestockBelow adds amount to every product with stock < threshold in a
	// single statement and returns the updated rows.
	RestockBelow(ctx context.Context, threshold, amount int) ([]model.Product, error)
}
