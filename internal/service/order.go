package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
	"crmapi/internal/repository"
)

// OrderInput is the create payload. OrderDate defaults to now.
type OrderInput struct {
	CustomerID int64      `json:"customer_id"`
	ProductIDs []int64    `json:"product_ids"`
	OrderDate  *time.Time `json:"order_date,omitempty"`
}

type OrderService interface {
	// Create stores an order whose total is the sum of its distinct
	// products' prices.
	Create(ctx context.Context, in OrderInput) (*model.Order, error)

	Get(ctx context.Context, id int64) (*model.Order, error)
	List(ctx context.Context, f OrderFilter, p ListParams) (*ListResult[model.Order], error)
	ListByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
}

type orderService struct {
	orders    repository.OrderRepository
	customers repository.CustomerRepository
	products  repository.ProductRepository
	now       func() time.Time
}

func NewOrderService(orders repository.OrderRepository, customers repository.CustomerRepository, products repository.ProductRepository) OrderService {
	return &orderService{
		orders:    orders,
		customers: customers,
		products:  products,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) Create(ctx context.Context, in OrderInput) (*model.Order, error) {
	if _, err := s.customers.FindByID(ctx, in.CustomerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Customer", ErrCustomerNotFound, in.CustomerID)
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	ids := distinct(in.ProductIDs)
	if len(ids) == 0 {
		return nil, invalid("productIds", ErrNoProducts, "At least one product must be selected")
	}

	found, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	total := decimal.Zero
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			return nil, notFound("Product", ErrProductNotFound, id)
		}
		total = total.Add(p.Price)
	}

	date := s.now()
	if in.OrderDate != nil {
		date = *in.OrderDate
	}

	o, err := s.orders.Create(ctx, &model.Order{
		CustomerID:  in.CustomerID,
		OrderDate:   date,
		TotalAmount: total.Round(2),
	}, ids)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (s *orderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	if id <= 0 {
		return nil, ErrIDRequired
	}
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Order", ErrOrderNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

func (s *orderService) List(ctx context.Context, f OrderFilter, p ListParams) (*ListResult[model.Order], error) {
	sort, page := p.query()
	res, err := s.orders.List(ctx, f, sort, page)
	if err != nil {
		return nil, err
	}
	return &ListResult[model.Order]{Items: res.Items, Total: res.Total}, nil
}

func (s *orderService) ListByCustomer(ctx context.Context, customerID int64) ([]model.Order, error) {
	res, err := s.orders.List(ctx, OrderFilter{CustomerID: &customerID}, repository.Sort{}, repository.PageQuery{})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// distinct drops repeated IDs, keeping first-seen order.
func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
