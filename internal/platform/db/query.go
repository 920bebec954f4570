package db

import (
	"fmt"
	"strings"
)

// Query accumulates WHERE fragments and their positional arguments for a
// single-table SELECT.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []any
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Arg registers v and returns its placeholder ("$3").
func (q *Query) Arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// Where appends a clause. Each "?" in clause is replaced by the placeholder
// of the matching argument.
func (q *Query) Where(clause string, args ...any) {
	var b strings.Builder
	i := 0
	for _, r := range clause {
		if r == '?' && i < len(args) {
			b.WriteString(q.Arg(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	q.where = append(q.where, b.String())
}

// Eq is shorthand for "column = value".
func (q *Query) Eq(column string, v any) {
	q.Where(column+" = ?", v)
}

// Contains adds a case-insensitive substring match.
func (q *Query) Contains(column, s string) {
	q.Where(column+" ILIKE ?", "%"+escapeLike(s)+"%")
}

// ContainsAny matches s as a substring of any of columns.
func (q *Query) ContainsAny(columns []string, s string) {
	p := q.Arg("%" + escapeLike(s) + "%")
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE " + p
	}
	q.where = append(q.where, "("+strings.Join(parts, " OR ")+")")
}

func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

// SelectSQL returns the unpaginated data query.
func (q *Query) SelectSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// DataSQL returns the data query with LIMIT/OFFSET placeholders following
// the filter arguments.
func (q *Query) DataSQL() string {
	n := len(q.args)
	return q.SelectSQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}

func (q *Query) Args() []any {
	return q.args
}

func (q *Query) DataArgs(limit, offset int) []any {
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
