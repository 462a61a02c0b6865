package postgres

import (
	"context"
	"database/sql"
	"time"

	"crmapi/internal/database"
	"crmapi/internal/model"
	"crmapi/internal/repository"
)

const customerColumns = `id, name, email, phone, created_at`

var customerSortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

// CustomerPostgres is a PostgreSQL implementation of repository.CustomerRepository.
type CustomerPostgres struct {
	db *sql.DB
}

func NewCustomerPostgres(db *sql.DB) *CustomerPostgres {
	return &CustomerPostgres{db: db}
}

var _ repository.CustomerRepository = (*CustomerPostgres)(nil)

func scanCustomer(s scanner) (model.Customer, error) {
	var (
		c     model.Customer
		phone sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Email, &phone, &c.CreatedAt); err != nil {
		return model.Customer{}, err
	}
	c.Phone = stringPtr(phone)
	return c, nil
}

const insertCustomer = `
	INSERT INTO customers (name, email, phone)
	VALUES ($1, $2, $3)
	RETURNING ` + customerColumns

func (r *CustomerPostgres) Create(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	row := r.db.QueryRowContext(ctx, insertCustomer, c.Name, c.Email, nullString(c.Phone))
	out, err := scanCustomer(row)
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *CustomerPostgres) CreateBatch(ctx context.Context, cs []model.Customer) ([]model.Customer, error) {
	out := make([]model.Customer, 0, len(cs))
	if len(cs) == 0 {
		return out, nil
	}

	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertCustomer)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range cs {
			stored, err := scanCustomer(stmt.QueryRowContext(ctx, c.Name, c.Email, nullString(c.Phone)))
			if err != nil {
				return mapError(err)
			}
			out = append(out, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CustomerPostgres) FindByID(ctx context.Context, id int64) (*model.Customer, error) {
	const q = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	c, err := scanCustomer(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (r *CustomerPostgres) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(emails) == 0 {
		return found, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT email FROM customers WHERE email = ANY($1)`, emails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		found[email] = true
	}
	return found, rows.Err()
}

func customerWhere(f repository.CustomerFilter) *where {
	w := &where{}
	if f.Name != "" {
		w.add(`name ILIKE $%d`, contains(f.Name))
	}
	if f.Email != "" {
		w.add(`email ILIKE $%d`, contains(f.Email))
	}
	if f.PhonePattern != "" {
		w.add(`phone LIKE $%d`, prefix(f.PhonePattern))
	}
	if f.CreatedAtGte != nil {
		w.add(`created_at >= $%d`, *f.CreatedAtGte)
	}
	if f.CreatedAtLte != nil {
		w.add(`created_at <= $%d`, *f.CreatedAtLte)
	}
	return w
}

func (r *CustomerPostgres) List(ctx context.Context, f repository.CustomerFilter, s repository.Sort, pq repository.PageQuery) (*repository.PageResult[model.Customer], error) {
	w := customerWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + customerColumns + ` FROM customers` + w.String() +
		orderBy(s, customerSortColumns, "id ASC") + w.page(pq)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Customer]{Items: items, Total: total}, nil
}

func (r *CustomerPostgres) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	return n, err
}

// DeleteInactive only considers customers created before since, so a fresh
// customer without orders yet is kept.
func (r *CustomerPostgres) DeleteInactive(ctx context.Context, since time.Time) (int64, error) {
	const q = `
		DELETE FROM customers c
		WHERE c.created_at < $1
		  AND NOT EXISTS (
		    SELECT 1 FROM orders o
		    WHERE o.customer_id = c.id AND o.order_date >= $1
		  )`
	res, err := r.db.ExecContext(ctx, q, since)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
