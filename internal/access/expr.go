// ABOUTME: Composable SQL predicate nodes used for access filters
// ABOUTME: Each node renders a parenthesized fragment plus its bound arguments

package access

import (
	"strings"

	"github.com/2389/chartguard/internal/store"
)

// Expr is a predicate that renders to a SQL fragment with "?" placeholders.
// Any Expr can be passed where a store.Condition is expected.
type Expr interface {
	store.Condition
}

type constExpr bool

// True returns a predicate every row satisfies.
func True() Expr { return constExpr(true) }

// False returns a predicate no row satisfies.
func False() Expr { return constExpr(false) }

func (e constExpr) ToSQL() (string, []any) {
	if e {
		return "1 = 1", nil
	}
	return "1 = 0", nil
}

type inExpr struct {
	column string
	query  string
	args   []any
}

// In returns "column IN (query)" with args bound to the subquery.
func In(column, query string, args ...any) Expr {
	return inExpr{column: column, query: query, args: args}
}

func (e inExpr) ToSQL() (string, []any) {
	return e.column + " IN (" + e.query + ")", append([]any(nil), e.args...)
}

type eqExpr struct {
	column string
	value  any
}

// Eq returns "column = ?" bound to value.
func Eq(column string, value any) Expr {
	return eqExpr{column: column, value: value}
}

func (e eqExpr) ToSQL() (string, []any) {
	return e.column + " = ?", []any{e.value}
}

type joinExpr struct {
	op    string
	parts []Expr
	empty constExpr
}

// Or matches when any part does. With no parts it matches nothing.
func Or(parts ...Expr) Expr {
	return joinExpr{op: " OR ", parts: parts, empty: false}
}

// And matches when every part does. With no parts it matches everything.
func And(parts ...Expr) Expr {
	return joinExpr{op: " AND ", parts: parts, empty: true}
}

func (e joinExpr) ToSQL() (string, []any) {
	switch len(e.parts) {
	case 0:
		return e.empty.ToSQL()
	case 1:
		return e.parts[0].ToSQL()
	}

	frags := make([]string, 0, len(e.parts))
	var args []any
	for _, p := range e.parts {
		frag, a := p.ToSQL()
		frags = append(frags, "("+frag+")")
		args = append(args, a...)
	}
	return strings.Join(frags, e.op), args
}
