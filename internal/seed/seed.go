// Package seed loads a small sample data set for local development.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
	"crmapi/internal/service"
)

var sampleCustomers = []service.CustomerInput{
	{Name: "John Doe", Email: "john@example.com", Phone: "+1234567890"},
	{Name: "Jane Smith", Email: "jane@example.com", Phone: "123-456-7890"},
	{Name: "Bob Johnson", Email: "bob@example.com"},
	{Name: "Alice Williams", Email: "alice@example.com", Phone: "+9876543210"},
	{Name: "Charlie Brown", Email: "charlie@example.com", Phone: "987-654-3210"},
}

type productSeed struct {
	name  string
	price string
	stock int
}

var sampleProducts = []productSeed{
	{"Laptop", "999.99", 10},
	{"Mouse", "25.50", 50},
	{"Keyboard", "75.00", 30},
	{"Monitor", "299.99", 15},
	{"Headphones", "89.99", 25},
	{"Webcam", "65.00", 20},
}

// sampleOrders pairs a customer email with product names.
var sampleOrders = []struct {
	email    string
	products []string
}{
	{"john@example.com", []string{"Laptop", "Mouse"}},
	{"jane@example.com", []string{"Keyboard", "Headphones"}},
}

// Result counts the rows a run created.
type Result struct {
	Customers int `json:"customers"`
	Products  int `json:"products"`
	Orders    int `json:"orders"`
}

type Seeder struct {
	customers service.CustomerService
	products  service.ProductService
	orders    service.OrderService
	logger    *slog.Logger
}

func New(c service.CustomerService, p service.ProductService, o service.OrderService, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{customers: c, products: p, orders: o, logger: logger.With("component", "seed")}
}

// Run is idempotent: customers are matched by email, products by name, and a
// sample order is only placed for a customer with no orders yet.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	byEmail, err := s.seedCustomers(ctx, res)
	if err != nil {
		return nil, err
	}
	byName, err := s.seedProducts(ctx, res)
	if err != nil {
		return nil, err
	}

	for _, o := range sampleOrders {
		c, ok := byEmail[o.email]
		if !ok {
			continue
		}
		existing, err := s.orders.ListByCustomer(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list orders for %s: %w", c.Email, err)
		}
		if len(existing) > 0 {
			s.logger.Info("order already exists", "customer", c.Name)
			continue
		}

		ids := make([]int64, 0, len(o.products))
		for _, name := range o.products {
			if p, ok := byName[name]; ok {
				ids = append(ids, p.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		created, err := s.orders.Create(ctx, service.OrderInput{CustomerID: c.ID, ProductIDs: ids})
		if err != nil {
			return nil, fmt.Errorf("create order for %s: %w", c.Email, err)
		}
		res.Orders++
		s.logger.Info("created order", "customer", c.Name, "total_amount", created.TotalAmount.StringFixed(2))
	}

	return res, nil
}

func (s *Seeder) seedCustomers(ctx context.Context, res *Result) (map[string]model.Customer, error) {
	all, err := s.customers.List(ctx, service.CustomerFilter{}, service.ListParams{})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	byEmail := make(map[string]model.Customer, len(all.Items))
	for _, c := range all.Items {
		byEmail[c.Email] = c
	}

	for _, in := range sampleCustomers {
		if c, ok := byEmail[in.Email]; ok {
			s.logger.Info("customer already exists", "name", c.Name)
			continue
		}
		c, err := s.customers.Create(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("create customer %s: %w", in.Email, err)
		}
		byEmail[c.Email] = *c
		res.Customers++
		s.logger.Info("created customer", "name", c.Name)
	}
	return byEmail, nil
}

func (s *Seeder) seedProducts(ctx context.Context, res *Result) (map[string]model.Product, error) {
	all, err := s.products.List(ctx, service.ProductFilter{}, service.ListParams{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	byName := make(map[string]model.Product, len(all.Items))
	for _, p := range all.Items {
		byName[p.Name] = p
	}

	for _, ps := range sampleProducts {
		if _, ok := byName[ps.name]; ok {
			s.logger.Info("product already exists", "name", ps.name)
			continue
		}
		stock := ps.stock
		p, err := s.products.Create(ctx, service.ProductInput{
			Name:  ps.name,
			Price: decimal.RequireFromString(ps.price),
			Stock: &stock,
		})
		if err != nil {
			return nil, fmt.Errorf("create product %s: %w", ps.name, err)
		}
		byName[p.Name] = *p
		res.Products++
		s.logger.Info("created product", "name", p.Name, "price", p.Price.StringFixed(2))
	}
	return byName, nil
}
