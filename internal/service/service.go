// Package service holds the CRM use cases. Handlers, GraphQL resolvers and
// background jobs all go through it; none of them touch repositories directly.
package service

import "crmapi/internal/repository"

// Filter aliases let callers build queries without importing repository.
type (
	CustomerFilter = repository.CustomerFilter
	ProductFilter  = repository.ProductFilter
	OrderFilter    = repository.OrderFilter
)

// ListParams is pagination plus an optional "-field" style ordering.
// Limit <= 0 returns every matching row.
type ListParams struct {
	OrderBy string
	Limit   int
	Offset  int
}

func (p ListParams) query() (repository.Sort, repository.PageQuery) {
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return repository.ParseSort(p.OrderBy), repository.PageQuery{Limit: p.Limit, Offset: offset}
}

// ListResult is the service-level page DTO.
type ListResult[T any] struct {
	Items []T `json:"data"`
	Total int `json:"total"`
}
