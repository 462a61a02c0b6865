package postgres

import (
	"context"
	"database/sql"
	"sort"

	"crmapi/internal/model"
	"crmapi/internal/repository"
)

const productColumns = `id, name, price, stock, created_at`

var productSortColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"price":      "price",
	"stock":      "stock",
	"created_at": "created_at",
}

// ProductPostgres is a PostgreSQL implementation of repository.ProductRepository.
type ProductPostgres struct {
	db *sql.DB
}

func NewProductPostgres(db *sql.DB) *ProductPostgres {
	return &ProductPostgres{db: db}
}

var _ repository.ProductRepository = (*ProductPostgres)(nil)

func scanProduct(s scanner) (model.Product, error) {
	var p model.Product
	if err := s.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func scanProducts(rows *sql.Rows) ([]model.Product, error) {
	defer rows.Close()
	items := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *ProductPostgres) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	const q = `
		INSERT INTO products (name, price, stock)
		VALUES ($1, $2, $3)
		RETURNING ` + productColumns
	out, err := scanProduct(r.db.QueryRowContext(ctx, q, p.Name, p.Price, p.Stock))
	if err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *ProductPostgres) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *ProductPostgres) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	found := make(map[int64]model.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	q := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	items, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	for _, p := range items {
		found[p.ID] = p
	}
	return found, nil
}

func productWhere(f repository.ProductFilter) *where {
	w := &where{}
	if f.Name != "" {
		w.add(`name ILIKE $%d`, contains(f.Name))
	}
	if f.PriceGte != nil {
		w.add(`price >= $%d`, *f.PriceGte)
	}
	if f.PriceLte != nil {
		w.add(`price <= $%d`, *f.PriceLte)
	}
	if f.Stock != nil {
		w.add(`stock = $%d`, *f.Stock)
	}
	if f.StockGte != nil {
		w.add(`stock >= $%d`, *f.StockGte)
	}
	if f.StockLte != nil {
		w.add(`stock <= $%d`, *f.StockLte)
	}
	if f.LowStockBelow != nil {
		w.add(`stock < $%d`, *f.LowStockBelow)
	}
	return w
}

func (r *ProductPostgres) List(ctx context.Context, f repository.ProductFilter, s repository.Sort, pq repository.PageQuery) (*repository.PageResult[model.Product], error) {
	w := productWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + productColumns + ` FROM products` + w.String() +
		orderBy(s, productSortColumns, "id ASC") + w.page(pq)
	rows, err := r.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	items, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Product]{Items: items, Total: total}, nil
}

func (r *ProductPostgres) RestockBelow(ctx context.Context, threshold, amount int) ([]model.Product, error) {
	const q = `
		UPDATE products
		SET stock = stock + $1
		WHERE stock < $2
		RETURNING ` + productColumns
	rows, err := r.db.QueryContext(ctx, q, amount, threshold)
	if err != nil {
		return nil, err
	}
	items, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
