package gql

import (
	"errors"

	"github.com/graphql-go/graphql"

	"crmapi/internal/model"
	"crmapi/internal/service"
)

func asCustomer(src interface{}) (*model.Customer, bool) {
	switch c := src.(type) {
	case *model.Customer:
		return c, c != nil
	case model.Customer:
		return &c, true
	}
	return nil, false
}

func asProduct(src interface{}) (*model.Product, bool) {
	switch p := src.(type) {
	case *model.Product:
		return p, p != nil
	case model.Product:
		return &p, true
	}
	return nil, false
}

func asOrder(src interface{}) (*model.Order, bool) {
	switch o := src.(type) {
	case *model.Order:
		return o, o != nil
	case model.Order:
		return &o, true
	}
	return nil, false
}

// types holds the object types of one schema. They reference each other
// (Customer.orders, Order.customer), so fields are thunks.
type types struct {
	svc Services

	customer *graphql.Object
	product  *graphql.Object
	order    *graphql.Object
}

func newTypes(svc Services) *types {
	t := &types{svc: svc}
	t.customer = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Customer",
		Fields: graphql.FieldsThunk(t.customerFields),
	})
	t.product = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Product",
		Fields: graphql.FieldsThunk(t.productFields),
	})
	t.order = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Order",
		Fields: graphql.FieldsThunk(t.orderFields),
	})
	return t
}

func (t *types) customerFields() graphql.Fields {
	field := func(typ graphql.Output, get func(c *model.Customer) interface{}) *graphql.Field {
		return &graphql.Field{
			Type: typ,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				c, ok := asCustomer(p.Source)
				if !ok {
					return nil, nil
				}
				return get(c), nil
			},
		}
	}
	return graphql.Fields{
		"id":    field(graphql.NewNonNull(graphql.ID), func(c *model.Customer) interface{} { return c.ID }),
		"name":  field(graphql.NewNonNull(graphql.String), func(c *model.Customer) interface{} { return c.Name }),
		"email": field(graphql.NewNonNull(graphql.String), func(c *model.Customer) interface{} { return c.Email }),
		"phone": field(graphql.String, func(c *model.Customer) interface{} {
			if c.Phone == nil {
				return nil
			}
			return *c.Phone
		}),
		"createdAt": field(graphql.DateTime, func(c *model.Customer) interface{} { return c.CreatedAt }),
		"orders": &graphql.Field{
			Type: graphql.NewList(t.order),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				c, ok := asCustomer(p.Source)
				if !ok {
					return nil, nil
				}
				return t.svc.Orders.ListByCustomer(p.Context, c.ID)
			},
		},
	}
}

func (t *types) productFields() graphql.Fields {
	field := func(typ graphql.Output, get func(p *model.Product) interface{}) *graphql.Field {
		return &graphql.Field{
			Type: typ,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				pr, ok := asProduct(p.Source)
				if !ok {
					return nil, nil
				}
				return get(pr), nil
			},
		}
	}
	return graphql.Fields{
		"id":        field(graphql.NewNonNull(graphql.ID), func(p *model.Product) interface{} { return p.ID }),
		"name":      field(graphql.NewNonNull(graphql.String), func(p *model.Product) interface{} { return p.Name }),
		"price":     field(graphql.NewNonNull(Decimal), func(p *model.Product) interface{} { return p.Price }),
		"stock":     field(graphql.NewNonNull(graphql.Int), func(p *model.Product) interface{} { return p.Stock }),
		"createdAt": field(graphql.DateTime, func(p *model.Product) interface{} { return p.CreatedAt }),
		"orders": &graphql.Field{
			Type: graphql.NewList(t.order),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				pr, ok := asProduct(p.Source)
				if !ok {
					return nil, nil
				}
				id := pr.ID
				res, err := t.svc.Orders.List(p.Context, service.OrderFilter{ProductID: &id}, service.ListParams{})
				if err != nil {
					return nil, err
				}
				return res.Items, nil
			},
		},
	}
}

func (t *types) orderFields() graphql.Fields {
	field := func(typ graphql.Output, get func(o *model.Order) interface{}) *graphql.Field {
		return &graphql.Field{
			Type: typ,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				o, ok := asOrder(p.Source)
				if !ok {
					return nil, nil
				}
				return get(o), nil
			},
		}
	}
	return graphql.Fields{
		"id":          field(graphql.NewNonNull(graphql.ID), func(o *model.Order) interface{} { return o.ID }),
		"customerId":  field(graphql.NewNonNull(graphql.ID), func(o *model.Order) interface{} { return o.CustomerID }),
		"orderDate":   field(graphql.DateTime, func(o *model.Order) interface{} { return o.OrderDate }),
		"totalAmount": field(graphql.NewNonNull(Decimal), func(o *model.Order) interface{} { return o.TotalAmount }),
		"createdAt":   field(graphql.DateTime, func(o *model.Order) interface{} { return o.CreatedAt }),
		"customer": &graphql.Field{
			Type: t.customer,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				o, ok := asOrder(p.Source)
				if !ok {
					return nil, nil
				}
				if o.Customer != nil {
					return o.Customer, nil
				}
				c, err := t.svc.Customers.Get(p.Context, o.CustomerID)
				if errors.Is(err, service.ErrCustomerNotFound) {
					return nil, nil
				}
				return c, err
			},
		},
		"products": field(graphql.NewList(t.product), func(o *model.Order) interface{} {
			if o.Products == nil {
				return []model.Product{}
			}
			return o.Products
		}),
	}
}

var customerInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "CustomerInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"name":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"email": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"phone": &graphql.InputObjectFieldConfig{Type: graphql.String},
	},
})

var productInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "ProductInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"name":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"price": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(Decimal)},
		"stock": &graphql.InputObjectFieldConfig{Type: graphql.Int},
	},
})

var orderInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "OrderInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"customerId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
		"productIds": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID)))},
		"orderDate":  &graphql.InputObjectFieldConfig{Type: graphql.DateTime},
	},
})

// Filter fields shared by the filter* queries (as an input object) and the
// all* connections (as flat arguments).
var (
	customerFilterFields = graphql.InputObjectConfigFieldMap{
		"name":         &graphql.InputObjectFieldConfig{Type: graphql.String},
		"email":        &graphql.InputObjectFieldConfig{Type: graphql.String},
		"createdAtGte": &graphql.InputObjectFieldConfig{Type: graphql.DateTime},
		"createdAtLte": &graphql.InputObjectFieldConfig{Type: graphql.DateTime},
		"phonePattern": &graphql.InputObjectFieldConfig{Type: graphql.String},
	}
	productFilterFields = graphql.InputObjectConfigFieldMap{
		"name":     &graphql.InputObjectFieldConfig{Type: graphql.String},
		"priceGte": &graphql.InputObjectFieldConfig{Type: Decimal},
		"priceLte": &graphql.InputObjectFieldConfig{Type: Decimal},
		"stockGte": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"stockLte": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"lowStock": &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	}
	orderFilterFields = graphql.InputObjectConfigFieldMap{
		"totalAmountGte": &graphql.InputObjectFieldConfig{Type: Decimal},
		"totalAmountLte": &graphql.InputObjectFieldConfig{Type: Decimal},
		"orderDateGte":   &graphql.InputObjectFieldConfig{Type: graphql.DateTime},
		"orderDateLte":   &graphql.InputObjectFieldConfig{Type: graphql.DateTime},
		"customerName":   &graphql.InputObjectFieldConfig{Type: graphql.String},
		"customerEmail":  &graphql.InputObjectFieldConfig{Type: graphql.String},
		"productName":    &graphql.InputObjectFieldConfig{Type: graphql.String},
		"productId":      &graphql.InputObjectFieldConfig{Type: graphql.ID},
		"highValue":      &graphql.InputObjectFieldConfig{Type: graphql.Boolean},
	}
)

var (
	customerFilterInput = graphql.NewInputObject(graphql.InputObjectConfig{Name: "CustomerFilterInput", Fields: customerFilterFields})
	productFilterInput  = graphql.NewInputObject(graphql.InputObjectConfig{Name: "ProductFilterInput", Fields: productFilterFields})
	orderFilterInput    = graphql.NewInputObject(graphql.InputObjectConfig{Name: "OrderFilterInput", Fields: orderFilterFields})
)

// flatArgs turns filter fields into top-level arguments, plus any extras.
func flatArgs(fields graphql.InputObjectConfigFieldMap, extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	args := withConnectionArgs(extra)
	for name, f := range fields {
		args[name] = &graphql.ArgumentConfig{Type: f.Type}
	}
	return args
}
