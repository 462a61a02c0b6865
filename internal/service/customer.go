package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmapi/internal/model"
	"crmapi/internal/repository"
)

// CustomerInput is the create payload. An empty Phone means none.
type CustomerInput struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,max=20,crm_phone"`
}

func (in *CustomerInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
}

func (in CustomerInput) model() *model.Customer {
	c := &model.Customer{Name: in.Name, Email: in.Email}
	if in.Phone != "" {
		p := in.Phone
		c.Phone = &p
	}
	return c
}

// BulkCreateResult reports a partially successful batch. Errors are indexed
// from 1 in input order, e.g. "Customer 2: Invalid phone format".
type BulkCreateResult struct {
	Customers    []model.Customer `json:"customers"`
	Errors       []string         `json:"errors"`
	SuccessCount int              `json:"success_count"`
}

type CustomerService interface {
	Create(ctx context.Context, in CustomerInput) (*model.Customer, error)

	// BulkCreate validates every input, skips the invalid ones and stores
	// the rest in a single transaction.
	BulkCreate(ctx context.Context, inputs []CustomerInput) (*BulkCreateResult, error)

	Get(ctx context.Context, id int64) (*model.Customer, error)
	List(ctx context.Context, f CustomerFilter, p ListParams) (*ListResult[model.Customer], error)
	Count(ctx context.Context) (int, error)

	// PurgeInactive deletes customers without an order since the cutoff.
	PurgeInactive(ctx context.Context, since time.Time) (int64, error)
}

type customerService struct {
	repo repository.CustomerRepository
}

func NewCustomerService(repo repository.CustomerRepository) CustomerService {
	return &customerService{repo: repo}
}

func (s *customerService) Create(ctx context.Context, in CustomerInput) (*model.Customer, error) {
	in.normalize()
	if in.Email != "" {
		taken, err := s.repo.ExistingEmails(ctx, []string{in.Email})
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if taken[in.Email] {
			return nil, invalid("email", ErrEmailExists, "Email already exists")
		}
	}
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	c, err := s.repo.Create(ctx, in.model())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalid("email", ErrEmailExists, "Email already exists")
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func (s *customerService) BulkCreate(ctx context.Context, inputs []CustomerInput) (*BulkCreateResult, error) {
	res := &BulkCreateResult{Customers: []model.Customer{}, Errors: []string{}}
	if len(inputs) == 0 {
		return res, nil
	}

	emails := make([]string, 0, len(inputs))
	for i := range inputs {
		inputs[i].normalize()
		if inputs[i].Email != "" {
			emails = append(emails, inputs[i].Email)
		}
	}
	taken, err := s.repo.ExistingEmails(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("check emails: %w", err)
	}

	valid := make([]model.Customer, 0, len(inputs))
	for i, in := range inputs {
		if in.Email != "" && taken[in.Email] {
			res.Errors = append(res.Errors, fmt.Sprintf("Customer %d: Email '%s' already exists", i+1, in.Email))
			continue
		}
		if err := checkStruct(in); err != nil {
			msg := err.Error()
			if errors.Is(err, ErrInvalidPhone) {
				msg = "Invalid phone format"
			}
			res.Errors = append(res.Errors, fmt.Sprintf("Customer %d: %s", i+1, msg))
			continue
		}
		taken[in.Email] = true
		valid = append(valid, *in.model())
	}

	if len(valid) == 0 {
		return res, nil
	}

	created, err := s.repo.CreateBatch(ctx, valid)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalid("email", ErrEmailExists, "Email already exists")
		}
		return nil, fmt.Errorf("create customers: %w", err)
	}
	res.Customers = created
	res.SuccessCount = len(created)
	return res, nil
}

func (s *customerService) Get(ctx context.Context, id int64) (*model.Customer, error) {
	if id <= 0 {
		return nil, ErrIDRequired
	}
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Customer", ErrCustomerNotFound, id)
		}
		return nil, err
	}
	return c, nil
}

func (s *customerService) List(ctx context.Context, f CustomerFilter, p ListParams) (*ListResult[model.Customer], error) {
	sort, page := p.query()
	res, err := s.repo.List(ctx, f, sort, page)
	if err != nil {
		return nil, err
	}
	return &ListResult[model.Customer]{Items: res.Items, Total: res.Total}, nil
}

func (s *customerService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *customerService) PurgeInactive(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.repo.DeleteInactive(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("delete inactive customers: %w", err)
	}
	return n, nil
}
