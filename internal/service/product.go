package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"crmapi/internal/model"
	"crmapi/internal/repository"
)

const (
	LowStockThreshold = 10
	RestockAmount     = 10
)

// ProductInput is the create payload. A nil Stock means 0.
type ProductInput struct {
	Name  string          `json:"name" validate:"required,max=255"`
	Price decimal.Decimal `json:"price"`
	Stock *int            `json:"stock"`
}

// RestockResult is the outcome of a low-stock sweep.
type RestockResult struct {
	Products []model.Product `json:"updated_products"`
	Message  string          `json:"message"`
}

type ProductService interface {
	Create(ctx context.Context, in ProductInput) (*model.Product, error)
	Get(ctx context.Context, id int64) (*model.Product, error)
	List(ctx context.Context, f ProductFilter, p ListParams) (*ListResult[model.Product], error)

	// RestockLow adds RestockAmount to every product under LowStockThreshold.
	RestockLow(ctx context.Context) (*RestockResult, error)
}

type productService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) ProductService {
	return &productService{repo: repo}
}

func (s *productService) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkStruct(in); err != nil {
		return nil, err
	}
	if !in.Price.IsPositive() {
		return nil, invalid("price", ErrInvalidPrice, "Price must be positive")
	}
	stock := 0
	if in.Stock != nil {
		stock = *in.Stock
	}
	if stock < 0 {
		return nil, invalid("stock", ErrInvalidStock, "Stock cannot be negative")
	}

	p, err := s.repo.Create(ctx, &model.Product{Name: in.Name, Price: in.Price.Round(2), Stock: stock})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *productService) Get(ctx context.Context, id int64) (*model.Product, error) {
	if id <= 0 {
		return nil, ErrIDRequired
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Product", ErrProductNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *productService) List(ctx context.Context, f ProductFilter, p ListParams) (*ListResult[model.Product], error) {
	sort, page := p.query()
	res, err := s.repo.List(ctx, f, sort, page)
	if err != nil {
		return nil, err
	}
	return &ListResult[model.Product]{Items: res.Items, Total: res.Total}, nil
}

func (s *productService) RestockLow(ctx context.Context) (*RestockResult, error) {
	updated, err := s.repo.RestockBelow(ctx, LowStockThreshold, RestockAmount)
	if err != nil {
		return nil, fmt.Errorf("restock low products: %w", err)
	}
	msg := "No low-stock products found"
	if len(updated) > 0 {
		msg = fmt.Sprintf("Successfully updated %d low-stock products", len(updated))
	}
	return &RestockResult{Products: updated, Message: msg}, nil
}
