// Package repository declares the persistence contracts for the CRM.
// Implementations live in subpackages (postgres). No business logic here.
package repository

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// PageQuery holds limit/offset pagination parameters. Limit <= 0 means no limit.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}

// Sort names a column and direction. Implementations whitelist Field and
// fall back to their default ordering for anything unknown.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort accepts "name", "-created_at" or "-createdAt".
func ParseSort(s string) Sort {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sort{}
	}
	desc := strings.HasPrefix(s, "-")
	return Sort{Field: toSnake(strings.TrimPrefix(s, "-")), Desc: desc}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
