package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"crmapi/internal/database"
	"crmapi/internal/model"
	"crmapi/internal/repository"
)

const orderSelect = `
	SELECT o.id, o.customer_id, o.order_date, o.total_amount, o.created_at,
	       c.id, c.name, c.email, c.phone, c.created_at
	FROM orders o
	JOIN customers c ON c.id = o.customer_id`

var orderSortColumns = map[string]string{
	"id":           "o.id",
	"order_date":   "o.order_date",
	"total_amount": "o.total_amount",
	"created_at":   "o.created_at",
}

// OrderPostgres is a PostgreSQL implementation of repository.OrderRepository.
type OrderPostgres struct {
	db *sql.DB
}

func NewOrderPostgres(db *sql.DB) *OrderPostgres {
	return &OrderPostgres{db: db}
}

var _ repository.OrderRepository = (*OrderPostgres)(nil)

func scanOrder(s scanner) (model.Order, error) {
	var (
		o     model.Order
		c     model.Customer
		phone sql.NullString
	)
	if err := s.Scan(
		&o.ID, &o.CustomerID, &o.OrderDate, &o.TotalAmount, &o.CreatedAt,
		&c.ID, &c.Name, &c.Email, &phone, &c.CreatedAt,
	); err != nil {
		return model.Order{}, err
	}
	c.Phone = stringPtr(phone)
	o.Customer = &c
	return o, nil
}

func (r *OrderPostgres) Create(ctx context.Context, o *model.Order, productIDs []int64) (*model.Order, error) {
	var id int64
	err := database.RunInTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		const insertOrder = `
			INSERT INTO orders (customer_id, order_date, total_amount)
			VALUES ($1, $2, $3)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, insertOrder, o.CustomerID, o.OrderDate, o.TotalAmount).Scan(&id); err != nil {
			return mapError(err)
		}

		const link = `INSERT INTO order_products (order_id, product_id) VALUES ($1, $2)`
		for _, pid := range productIDs {
			if _, err := tx.ExecContext(ctx, link, id, pid); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *OrderPostgres) FindByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	orders := []model.Order{o}
	if err := r.attachProducts(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachProducts loads the product links of orders in one query.
func (r *OrderPostgres) attachProducts(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Products = make([]model.Product, 0)
	}

	// One array parameter keeps large result sets under the bind limit.
	const q = `
		SELECT op.order_id, p.id, p.name, p.price, p.stock, p.created_at
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = ANY($1)
		ORDER BY op.order_id, p.id`
	rows, err := r.db.QueryContext(ctx, q, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			p       model.Product
		)
		if err := rows.Scan(&orderID, &p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
			return err
		}
		if i, ok := index[orderID]; ok {
			orders[i].Products = append(orders[i].Products, p)
		}
	}
	return rows.Err()
}

func orderWhere(f repository.OrderFilter) *where {
	w := &where{}
	if f.TotalAmountGte != nil {
		w.add(`o.total_amount >= $%d`, *f.TotalAmountGte)
	}
	if f.TotalAmountLte != nil {
		w.add(`o.total_amount <= $%d`, *f.TotalAmountLte)
	}
	if f.TotalAmountGt != nil {
		w.add(`o.total_amount > $%d`, *f.TotalAmountGt)
	}
	if f.OrderDateGte != nil {
		w.add(`o.order_date >= $%d`, *f.OrderDateGte)
	}
	if f.OrderDateLte != nil {
		w.add(`o.order_date <= $%d`, *f.OrderDateLte)
	}
	if f.CustomerID != nil {
		w.add(`o.customer_id = $%d`, *f.CustomerID)
	}
	if f.CustomerName != "" {
		w.add(`c.name ILIKE $%d`, contains(f.CustomerName))
	}
	if f.CustomerEmail != "" {
		w.add(`c.email ILIKE $%d`, contains(f.CustomerEmail))
	}
	if f.ProductName != "" {
		w.add(`EXISTS (SELECT 1 FROM order_products op JOIN products p ON p.id = op.product_id
			WHERE op.order_id = o.id AND p.name ILIKE $%d)`, contains(f.ProductName))
	}
	if f.ProductID != nil {
		w.add(`EXISTS (SELECT 1 FROM order_products op WHERE op.order_id = o.id AND op.product_id = $%d)`, *f.ProductID)
	}
	if f.ProductCount != nil {
		w.add(`(SELECT COUNT(*) FROM order_products op WHERE op.order_id = o.id) = $%d`, *f.ProductCount)
	}
	return w
}

func (r *OrderPostgres) List(ctx context.Context, f repository.OrderFilter, s repository.Sort, pq repository.PageQuery) (*repository.PageResult[model.Order], error) {
	w := orderWhere(f)

	countQ := `SELECT COUNT(*) FROM orders o JOIN customers c ON c.id = o.customer_id` + w.String()
	var total int
	if err := r.db.QueryRowContext(ctx, countQ, w.args...).Scan(&total); err != nil {
		return nil, err
	}

	q := orderSelect + w.String() + orderBy(s, orderSortColumns, "o.id ASC") + w.page(pq)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.attachProducts(ctx, items); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Order]{Items: items, Total: total}, nil
}

func (r *OrderPostgres) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (r *OrderPostgres) SumRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_amount), 0) FROM orders`).Scan(&total)
	return total, err
}
