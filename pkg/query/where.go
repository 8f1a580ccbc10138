package query

import (
	"github.com/bobboyms/dbcore/pkg/sql"
	"github.com/cockroachdb/errors"
)

// Row is a decoded table row keyed by column name, the shape every access
// path (full scan, hash probe, B+Tree range) produces before WHERE
// filtering and ORDER BY/LIMIT are applied.
type Row map[string]interface{}

// Predicate reports whether row satisfies a compiled WHERE clause.
type Predicate func(row Row) bool

// CompileWhere turns a parsed WHERE expression into a closure evaluated
// once per row, rather than walking the AST on every row of every scan.
// Errors are wrapped with cockroachdb/errors so a malformed or
// type-mismatched clause keeps the offending SQL fragment attached to the
// error chain instead of collapsing into a bare message.
func CompileWhere(expr sql.Expr) (Predicate, error) {
	if expr == nil {
		return func(Row) bool { return true }, nil
	}
	return compileExpr(expr)
}

func compileExpr(expr sql.Expr) (Predicate, error) {
	switch e := expr.(type) {
	case *sql.BinaryExpr:
		return compileBinary(e)
	case *sql.InExpr:
		return compileIn(e)
	default:
		return nil, errors.Newf("query: unsupported WHERE expression of type %T", expr)
	}
}

// compileIn handles `col [NOT] IN (v1, v2, ...)`. A subquery-backed IN must
// already have been resolved into a literal Values list by the caller
// (pkg/engine evaluates the subquery before compiling WHERE) — CompileWhere
// itself has no database to run one against.
func compileIn(e *sql.InExpr) (Predicate, error) {
	col, ok := e.Left.(*sql.ColumnRef)
	if !ok {
		return nil, errors.Newf("query: IN's left side must be a column, got %T", e.Left)
	}
	if e.Sub != nil {
		return nil, errors.Newf("query: IN subquery for column %q was not resolved before compiling WHERE", col.Name)
	}

	wants := make([]interface{}, len(e.Values))
	for i, v := range e.Values {
		lit, ok := v.(*sql.Literal)
		if !ok {
			return nil, errors.Newf("query: IN list for column %q must contain literals, got %T", col.Name, v)
		}
		wants[i] = lit.Value
	}

	name, not := col.Name, e.Not
	return func(row Row) bool {
		got, present := row[name]
		if !present {
			return false
		}
		for _, w := range wants {
			if cmp, ok := compareValues(got, w); ok && cmp == 0 {
				return !not
			}
		}
		return not
	}, nil
}

func compileBinary(e *sql.BinaryExpr) (Predicate, error) {
	switch e.Op {
	case sql.AND:
		left, err := compileExpr(e.Left)
		if err != nil {
			return nil, errors.Wrapf(err, "query: left side of AND")
		}
		right, err := compileExpr(e.Right)
		if err != nil {
			return nil, errors.Wrapf(err, "query: right side of AND")
		}
		return func(row Row) bool { return left(row) && right(row) }, nil

	case sql.OR:
		left, err := compileExpr(e.Left)
		if err != nil {
			return nil, errors.Wrapf(err, "query: left side of OR")
		}
		right, err := compileExpr(e.Right)
		if err != nil {
			return nil, errors.Wrapf(err, "query: right side of OR")
		}
		return func(row Row) bool { return left(row) || right(row) }, nil

	default:
		return compileComparison(e)
	}
}

func compileComparison(e *sql.BinaryExpr) (Predicate, error) {
	col, ok := e.Left.(*sql.ColumnRef)
	if !ok {
		return nil, errors.Newf("query: WHERE comparison must have a column on the left, got %T", e.Left)
	}
	op, name := e.Op, col.Name

	// A JOIN's ON clause compares two columns (from the left and right
	// tables of the join) rather than a column against a literal.
	if rcol, ok := e.Right.(*sql.ColumnRef); ok {
		rname := rcol.Name
		return func(row Row) bool {
			got, presentL := row[name]
			want, presentR := row[rname]
			if !presentL || !presentR {
				return false
			}
			cmp, comparable := compareValues(got, want)
			if !comparable {
				return false
			}
			return applyOp(op, cmp)
		}, nil
	}

	lit, ok := e.Right.(*sql.Literal)
	if !ok {
		return nil, errors.Newf("query: WHERE comparison for column %q must compare against a literal or column, got %T", col.Name, e.Right)
	}
	want := lit.Value

	return func(row Row) bool {
		got, present := row[name]
		if !present {
			return false
		}
		cmp, comparable := compareValues(got, want)
		if !comparable {
			return false
		}
		return applyOp(op, cmp)
	}, nil
}

func applyOp(op sql.TokenKind, cmp int) bool {
	switch op {
	case sql.EQ:
		return cmp == 0
	case sql.NEQ:
		return cmp != 0
	case sql.GT:
		return cmp > 0
	case sql.GTE:
		return cmp >= 0
	case sql.LT:
		return cmp < 0
	case sql.LTE:
		return cmp <= 0
	default:
		return false
	}
}

// compareValues compares two decoded SQL values of possibly differing but
// compatible Go types (int64 vs float64 literals, for instance), returning
// ok=false when the two are not meaningfully comparable.
func compareValues(a, b interface{}) (cmp int, ok bool) {
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}

	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		if ab == bb {
			return 0, true
		}
		return -1, true
	}

	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
