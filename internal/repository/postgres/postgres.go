// Package postgres implements the repository contracts on database/sql.
// Queries are parameterized; dynamic filters only ever append placeholders.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"crmapi/internal/repository"
)

const uniqueViolation = "23505"

type scanner interface {
	Scan(dest ...any) error
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// where accumulates AND-ed conditions. Each condition carries exactly one %d
// verb that is replaced with the next placeholder index.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

// bind appends arg and returns its placeholder.
func (w *where) bind(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page renders LIMIT/OFFSET, binding values onto w. Non-positive limits page nothing.
func (w *where) page(pq repository.PageQuery) string {
	if pq.Limit <= 0 {
		if pq.Offset > 0 {
			return " OFFSET " + w.bind(pq.Offset)
		}
		return ""
	}
	limit := w.bind(pq.Limit)
	offset := w.bind(pq.Offset)
	return fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
}

// orderBy picks a whitelisted column; unknown fields use fallback.
// The id tiebreaker keeps pagination stable.
func orderBy(s repository.Sort, columns map[string]string, fallback string) string {
	col, ok := columns[s.Field]
	if !ok {
		return " ORDER BY " + fallback
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s", col, dir, idTiebreak(columns))
}

func idTiebreak(columns map[string]string) string {
	if col, ok := columns["id"]; ok {
		return col + " ASC"
	}
	return "1"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func contains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func prefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
