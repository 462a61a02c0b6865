package repository

import (
	"context"
	"time"

	"crmapi/internal/model"
)

// CustomerFilter narrows customer listings. Zero values are ignored.
type CustomerFilter struct {
	Name         string // case-insensitive contains
	Email        string // case-insensitive contains
	PhonePattern string // phone prefix, e.g. "+1"
	CreatedAtGte *time.Time
	CreatedAtLte *time.Time
}

// CustomerRepository is data access for customers.
type CustomerRepository interface {
	Create(ctx context.Context, c *model.Customer) (*model.Customer, error)

	// CreateBatch inserts all customers in one transaction; either all rows
	// are stored or none.
	CreateBatch(ctx context.Context, cs []model.Customer) ([]model.Customer, error)

	FindByID(ctx context.Context, id int64) (*model.Customer, error)

	// ExistingEmails returns which of emails are already taken.
	ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)

	List(ctx context.Context, f CustomerFilter, s Sort, pq PageQuery) (*PageResult[model.Customer], error)
	Count(ctx context.Context) (int, error)

	// DeleteInactive removes customers with no order placed on or after since.
	DeleteInactive(ctx context.Context, since time.Time) (int64, error)
}
