package gql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crmapi/internal/repository"
	"crmapi/internal/service"
)

func argString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func argInt(m map[string]interface{}, key string) *int {
	if i, ok := m[key].(int); ok {
		return &i
	}
	return nil
}

func argBool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func argDecimal(m map[string]interface{}, key string) *decimal.Decimal {
	if d, ok := m[key].(decimal.Decimal); ok {
		return &d
	}
	return nil
}

func argTime(m map[string]interface{}, key string) *time.Time {
	if t, ok := m[key].(time.Time); ok {
		return &t
	}
	return nil
}

func argMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// parseID accepts the numeric string or int forms an ID argument arrives in.
func parseID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ID %q", id)
		}
		return n, nil
	case int:
		return int64(id), nil
	case int64:
		return id, nil
	}
	return 0, fmt.Errorf("invalid ID %v", v)
}

// sortable lists the orderBy fields each entity accepts, in snake_case.
var sortable = map[string]map[string]bool{
	"customer": {"id": true, "name": true, "email": true, "created_at": true},
	"product":  {"id": true, "name": true, "price": true, "stock": true, "created_at": true},
	"order":    {"id": true, "order_date": true, "total_amount": true, "created_at": true},
}

// checkOrderBy rejects unknown ordering fields instead of silently ignoring them.
func checkOrderBy(entity, orderBy string) error {
	if orderBy == "" {
		return nil
	}
	s := repository.ParseSort(orderBy)
	if !sortable[entity][s.Field] {
		return fmt.Errorf("Cannot resolve keyword '%s' into field", strings.TrimPrefix(orderBy, "-"))
	}
	return nil
}

func customerFilter(m map[string]interface{}) repository.CustomerFilter {
	return repository.CustomerFilter{
		Name:         argString(m, "name"),
		Email:        argString(m, "email"),
		PhonePattern: argString(m, "phonePattern"),
		CreatedAtGte: argTime(m, "createdAtGte"),
		CreatedAtLte: argTime(m, "createdAtLte"),
	}
}

// highValueAbove is the highValue filter's exclusive lower bound.
var highValueAbove = decimal.NewFromInt(500)

func productFilter(m map[string]interface{}) repository.ProductFilter {
	f := repository.ProductFilter{
		Name:     argString(m, "name"),
		PriceGte: argDecimal(m, "priceGte"),
		PriceLte: argDecimal(m, "priceLte"),
		Stock:    argInt(m, "stock"),
		StockGte: argInt(m, "stockGte"),
		StockLte: argInt(m, "stockLte"),
	}
	if argBool(m, "lowStock") {
		n := service.LowStockThreshold
		f.LowStockBelow = &n
	}
	return f
}

func orderFilter(m map[string]interface{}) (repository.OrderFilter, error) {
	f := repository.OrderFilter{
		TotalAmountGte: argDecimal(m, "totalAmountGte"),
		TotalAmountLte: argDecimal(m, "totalAmountLte"),
		OrderDateGte:   argTime(m, "orderDateGte"),
		OrderDateLte:   argTime(m, "orderDateLte"),
		CustomerName:   argString(m, "customerName"),
		CustomerEmail:  argString(m, "customerEmail"),
		ProductName:    argString(m, "productName"),
	}
	if v, ok := m["productId"]; ok && v != nil {
		id, err := parseID(v)
		if err != nil {
			return f, err
		}
		f.ProductID = &id
	}
	if n := argInt(m, "productCount"); n != nil && *n > 0 {
		f.ProductCount = n
	}
	if argBool(m, "highValue") {
		v := highValueAbove
		f.TotalAmountGt = &v
	}
	return f, nil
}
