// Package gql defines the CRM GraphQL schema on top of the service layer and
// a small client jobs use to call it over HTTP.
package gql

import (
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"

	"crmapi/internal/model"
	"crmapi/internal/service"
)

// Services are the use cases resolvers call into.
type Services struct {
	Customers service.CustomerService
	Products  service.ProductService
	Orders    service.OrderService
}

// NewSchema builds the query and mutation roots.
func NewSchema(svc Services) (graphql.Schema, error) {
	t := newTypes(svc)
	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    t.query(),
		Mutation: t.mutation(),
	})
}

func idArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
	}
}

func filterArgs(input *graphql.InputObject) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"filter":  &graphql.ArgumentConfig{Type: input},
		"orderBy": &graphql.ArgumentConfig{Type: graphql.String},
	}
}

func orderByArg(args map[string]interface{}) string {
	return argString(args, "orderBy")
}

func (t *types) query() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"hello": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return "Hello, CRM GraphQL!", nil
				},
			},

			"customers": &graphql.Field{
				Type: graphql.NewList(t.customer),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := t.svc.Customers.List(p.Context, service.CustomerFilter{}, service.ListParams{})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},
			"products": &graphql.Field{
				Type: graphql.NewList(t.product),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := t.svc.Products.List(p.Context, service.ProductFilter{}, service.ListParams{})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},
			"orders": &graphql.Field{
				Type: graphql.NewList(t.order),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := t.svc.Orders.List(p.Context, service.OrderFilter{}, service.ListParams{})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},

			"customer": &graphql.Field{
				Type: t.customer,
				Args: idArgs(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					c, err := t.svc.Customers.Get(p.Context, id)
					if errors.Is(err, service.ErrCustomerNotFound) {
						return nil, nil
					}
					return c, err
				},
			},
			"product": &graphql.Field{
				Type: t.product,
				Args: idArgs(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					pr, err := t.svc.Products.Get(p.Context, id)
					if errors.Is(err, service.ErrProductNotFound) {
						return nil, nil
					}
					return pr, err
				},
			},
			"order": &graphql.Field{
				Type: t.order,
				Args: idArgs(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					o, err := t.svc.Orders.Get(p.Context, id)
					if errors.Is(err, service.ErrOrderNotFound) {
						return nil, nil
					}
					return o, err
				},
			},

			"allCustomers": &graphql.Field{
				Type: newConnection("Customer", t.customer),
				Args: flatArgs(customerFilterFields, nil),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("customer", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					pr, err := parsePageArgs("allCustomers", p.Args)
					if err != nil {
						return nil, err
					}
					f := customerFilter(p.Args)
					return paginate(pr, orderByArg(p.Args), func(lp service.ListParams) (*service.ListResult[model.Customer], error) {
						return t.svc.Customers.List(p.Context, f, lp)
					})
				},
			},
			"allProducts": &graphql.Field{
				Type: newConnection("Product", t.product),
				Args: flatArgs(productFilterFields, graphql.FieldConfigArgument{
					"stock": &graphql.ArgumentConfig{Type: graphql.Int},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("product", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					pr, err := parsePageArgs("allProducts", p.Args)
					if err != nil {
						return nil, err
					}
					f := productFilter(p.Args)
					return paginate(pr, orderByArg(p.Args), func(lp service.ListParams) (*service.ListResult[model.Product], error) {
						return t.svc.Products.List(p.Context, f, lp)
					})
				},
			},
			"allOrders": &graphql.Field{
				Type: newConnection("Order", t.order),
				Args: flatArgs(orderFilterFields, graphql.FieldConfigArgument{
					"productCount": &graphql.ArgumentConfig{Type: graphql.Int},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("order", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					pr, err := parsePageArgs("allOrders", p.Args)
					if err != nil {
						return nil, err
					}
					f, err := orderFilter(p.Args)
					if err != nil {
						return nil, err
					}
					return paginate(pr, orderByArg(p.Args), func(lp service.ListParams) (*service.ListResult[model.Order], error) {
						return t.svc.Orders.List(p.Context, f, lp)
					})
				},
			},

			"filterCustomers": &graphql.Field{
				Type: graphql.NewList(t.customer),
				Args: filterArgs(customerFilterInput),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("customer", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					f := customerFilter(argMap(p.Args, "filter"))
					res, err := t.svc.Customers.List(p.Context, f, service.ListParams{OrderBy: orderByArg(p.Args)})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},
			"filterProducts": &graphql.Field{
				Type: graphql.NewList(t.product),
				Args: filterArgs(productFilterInput),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("product", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					f := productFilter(argMap(p.Args, "filter"))
					res, err := t.svc.Products.List(p.Context, f, service.ListParams{OrderBy: orderByArg(p.Args)})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},
			"filterOrders": &graphql.Field{
				Type: graphql.NewList(t.order),
				Args: filterArgs(orderFilterInput),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := checkOrderBy("order", orderByArg(p.Args)); err != nil {
						return nil, err
					}
					f, err := orderFilter(argMap(p.Args, "filter"))
					if err != nil {
						return nil, err
					}
					res, err := t.svc.Orders.List(p.Context, f, service.ListParams{OrderBy: orderByArg(p.Args)})
					if err != nil {
						return nil, err
					}
					return res.Items, nil
				},
			},
		},
	})
}

func payload(name string, fields graphql.Fields) *graphql.Object {
	fields["message"] = &graphql.Field{Type: graphql.String}
	fields["success"] = &graphql.Field{Type: graphql.Boolean}
	return graphql.NewObject(graphql.ObjectConfig{Name: name, Fields: fields})
}

func failed(err error, entity string) map[string]interface{} {
	var ve *service.ValidationError
	msg := fmt.Sprintf("Error creating %s: %v", entity, err)
	if errors.As(err, &ve) {
		msg = ve.Message
	}
	return map[string]interface{}{"message": msg, "success": false}
}

func customerInputFrom(m map[string]interface{}) service.CustomerInput {
	return service.CustomerInput{
		Name:  argString(m, "name"),
		Email: argString(m, "email"),
		Phone: argString(m, "phone"),
	}
}

func (t *types) mutation() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createCustomer": &graphql.Field{
				Type: payload("CreateCustomerPayload", graphql.Fields{
					"customer": &graphql.Field{Type: t.customer},
				}),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(customerInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, err := t.svc.Customers.Create(p.Context, customerInputFrom(argMap(p.Args, "input")))
					if err != nil {
						return failed(err, "customer"), nil
					}
					return map[string]interface{}{
						"customer": c,
						"message":  "Customer created successfully",
						"success":  true,
					}, nil
				},
			},

			"bulkCreateCustomers": &graphql.Field{
				Type: graphql.NewObject(graphql.ObjectConfig{
					Name: "BulkCreateCustomersPayload",
					Fields: graphql.Fields{
						"customers":    &graphql.Field{Type: graphql.NewList(t.customer)},
						"errors":       &graphql.Field{Type: graphql.NewList(graphql.String)},
						"successCount": &graphql.Field{Type: graphql.Int},
					},
				}),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(customerInput)))},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["input"].([]interface{})
					inputs := make([]service.CustomerInput, 0, len(raw))
					for _, r := range raw {
						m, _ := r.(map[string]interface{})
						inputs = append(inputs, customerInputFrom(m))
					}
					res, err := t.svc.Customers.BulkCreate(p.Context, inputs)
					if err != nil {
						return map[string]interface{}{
							"customers":    []model.Customer{},
							"errors":       []string{service.UserMessage(err)},
							"successCount": 0,
						}, nil
					}
					return map[string]interface{}{
						"customers":    res.Customers,
						"errors":       res.Errors,
						"successCount": res.SuccessCount,
					}, nil
				},
			},

			"createProduct": &graphql.Field{
				Type: payload("CreateProductPayload", graphql.Fields{
					"product": &graphql.Field{Type: t.product},
				}),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(productInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in := argMap(p.Args, "input")
					pi := service.ProductInput{Name: argString(in, "name"), Stock: argInt(in, "stock")}
					if d := argDecimal(in, "price"); d != nil {
						pi.Price = *d
					}
					pr, err := t.svc.Products.Create(p.Context, pi)
					if err != nil {
						return failed(err, "product"), nil
					}
					return map[string]interface{}{
						"product": pr,
						"message": "Product created successfully",
						"success": true,
					}, nil
				},
			},

			"createOrder": &graphql.Field{
				Type: payload("CreateOrderPayload", graphql.Fields{
					"order": &graphql.Field{Type: t.order},
				}),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(orderInput)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					in := argMap(p.Args, "input")
					customerID, err := parseID(in["customerId"])
					if err != nil {
						return map[string]interface{}{
							"message": fmt.Sprintf("Customer with ID %v does not exist", in["customerId"]),
							"success": false,
						}, nil
					}
					oi := service.OrderInput{CustomerID: customerID, OrderDate: argTime(in, "orderDate")}
					raw, _ := in["productIds"].([]interface{})
					for _, r := range raw {
						id, err := parseID(r)
						if err != nil {
							return map[string]interface{}{
								"message": fmt.Sprintf("Product with ID %v does not exist", r),
								"success": false,
							}, nil
						}
						oi.ProductIDs = append(oi.ProductIDs, id)
					}
					o, err := t.svc.Orders.Create(p.Context, oi)
					if err != nil {
						return failed(err, "order"), nil
					}
					return map[string]interface{}{
						"order":   o,
						"message": "Order created successfully",
						"success": true,
					}, nil
				},
			},

			"updateLowStockProducts": &graphql.Field{
				Type: payload("UpdateLowStockProductsPayload", graphql.Fields{
					"updatedProducts": &graphql.Field{Type: graphql.NewList(t.product)},
					"count":           &graphql.Field{Type: graphql.Int},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					res, err := t.svc.Products.RestockLow(p.Context)
					if err != nil {
						return map[string]interface{}{
							"updatedProducts": []model.Product{},
							"message":         fmt.Sprintf("Error updating low stock products: %v", err),
							"success":         false,
							"count":           0,
						}, nil
					}
					return map[string]interface{}{
						"updatedProducts": res.Products,
						"message":         res.Message,
						"success":         true,
						"count":           len(res.Products),
					}, nil
				},
			},
		},
	})
}
