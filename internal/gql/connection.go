package gql

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"

	"crmapi/internal/service"
)

// MaxPageSize caps first/last on connection fields.
const MaxPageSize = 100

const cursorPrefix = "arrayconnection:"

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

func decodeCursor(c string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(c)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, fmt.Errorf("invalid cursor %q", c)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid cursor %q", c)
	}
	return n, nil
}

var pageInfoType = graphql.NewObject(graphql.ObjectConfig{
	Name: "PageInfo",
	Fields: graphql.Fields{
		"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		"startCursor":     &graphql.Field{Type: graphql.String},
		"endCursor":       &graphql.Field{Type: graphql.String},
	},
})

var connectionArgs = graphql.FieldConfigArgument{
	"first":   &graphql.ArgumentConfig{Type: graphql.Int},
	"last":    &graphql.ArgumentConfig{Type: graphql.Int},
	"after":   &graphql.ArgumentConfig{Type: graphql.String},
	"before":  &graphql.ArgumentConfig{Type: graphql.String},
	"offset":  &graphql.ArgumentConfig{Type: graphql.Int},
	"orderBy": &graphql.ArgumentConfig{Type: graphql.String},
}

func withConnectionArgs(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	out := graphql.FieldConfigArgument{}
	for k, v := range connectionArgs {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func newConnection(name string, node *graphql.Object) *graphql.Object {
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: node},
		},
	})
	return graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Connection",
		Fields: graphql.Fields{
			"edges":      &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(edge))},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(pageInfoType)},
			"totalCount": &graphql.Field{Type: graphql.Int},
		},
	})
}

// window is the [start, end) slice of a result set a connection returns.
type window struct {
	start, end int
}

// pageRequest is the decoded set of pagination arguments.
type pageRequest struct {
	first, last   *int
	after, before *int
	offset        int
	field         string
}

func parsePageArgs(field string, args map[string]interface{}) (pageRequest, error) {
	pr := pageRequest{first: argInt(args, "first"), last: argInt(args, "last"), field: field}
	for _, n := range []*int{pr.first, pr.last} {
		if n == nil {
			continue
		}
		if *n < 0 {
			return pr, fmt.Errorf("first and last must be non-negative on the `%s` connection", field)
		}
		if *n > MaxPageSize {
			return pr, fmt.Errorf("Requesting %d records on the `%s` connection exceeds the limit of %d records", *n, field, MaxPageSize)
		}
	}
	if off := argInt(args, "offset"); off != nil && *off > 0 {
		pr.offset = *off
	}
	if c, ok := args["after"].(string); ok && c != "" {
		n, err := decodeCursor(c)
		if err != nil {
			return pr, err
		}
		pr.after = &n
	}
	if c, ok := args["before"].(string); ok && c != "" {
		n, err := decodeCursor(c)
		if err != nil {
			return pr, err
		}
		pr.before = &n
	}
	return pr, nil
}

// needsTotal reports whether the window depends on the result size.
func (pr pageRequest) needsTotal() bool {
	return pr.last != nil
}

// slice computes the window for a result set of total rows.
func (pr pageRequest) slice(total int) window {
	start := pr.offset
	if pr.after != nil {
		start = *pr.after + 1 + pr.offset
	}
	end := total
	if pr.before != nil && *pr.before < end {
		end = *pr.before
	}
	if pr.first != nil && start+*pr.first < end {
		end = start + *pr.first
	}
	if pr.first == nil && pr.last == nil && start+MaxPageSize < end {
		end = start + MaxPageSize
	}
	if pr.last != nil && end-*pr.last > start {
		start = end - *pr.last
	}
	if start > total {
		start = total
	}
	if end < start {
		end = start
	}
	return window{start: start, end: end}
}

// limit is the number of rows to fetch from start when total is unknown.
func (pr pageRequest) limit() int {
	n := MaxPageSize
	if pr.first != nil {
		n = *pr.first
	}
	if pr.before != nil {
		start := pr.offset
		if pr.after != nil {
			start = *pr.after + 1 + pr.offset
		}
		if span := *pr.before - start; span < n {
			n = max(span, 0)
		}
	}
	return n
}

func connectionResult[T any](items []T, w window, total int) map[string]interface{} {
	edges := make([]map[string]interface{}, 0, len(items))
	for i, it := range items {
		edges = append(edges, map[string]interface{}{
			"cursor": encodeCursor(w.start + i),
			"node":   it,
		})
	}
	info := map[string]interface{}{
		"hasNextPage":     w.start+len(items) < total,
		"hasPreviousPage": w.start > 0,
		"startCursor":     nil,
		"endCursor":       nil,
	}
	if len(edges) > 0 {
		info["startCursor"] = edges[0]["cursor"]
		info["endCursor"] = edges[len(edges)-1]["cursor"]
	}
	return map[string]interface{}{
		"edges":      edges,
		"pageInfo":   info,
		"totalCount": total,
	}
}

type fetchFunc[T any] func(p service.ListParams) (*service.ListResult[T], error)

// paginate resolves a connection field. A `last` window needs the total
// first, so it costs one extra query.
func paginate[T any](pr pageRequest, orderBy string, fetch fetchFunc[T]) (map[string]interface{}, error) {
	if pr.needsTotal() {
		head, err := fetch(service.ListParams{OrderBy: orderBy, Limit: 1})
		if err != nil {
			return nil, err
		}
		w := pr.slice(head.Total)
		if w.end == w.start {
			return connectionResult([]T{}, w, head.Total), nil
		}
		res, err := fetch(service.ListParams{OrderBy: orderBy, Limit: w.end - w.start, Offset: w.start})
		if err != nil {
			return nil, err
		}
		return connectionResult(res.Items, w, res.Total), nil
	}

	start := pr.offset
	if pr.after != nil {
		start = *pr.after + 1 + pr.offset
	}
	n := pr.limit()
	if n == 0 {
		head, err := fetch(service.ListParams{OrderBy: orderBy, Limit: 1})
		if err != nil {
			return nil, err
		}
		return connectionResult([]T{}, window{start: start, end: start}, head.Total), nil
	}
	res, err := fetch(service.ListParams{OrderBy: orderBy, Limit: n, Offset: start})
	if err != nil {
		return nil, err
	}
	return connectionResult(res.Items, window{start: start, end: start + len(res.Items)}, res.Total), nil
}
