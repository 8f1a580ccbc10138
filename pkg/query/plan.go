package query

import (
	"sort"

	"github.com/bobboyms/dbcore/pkg/sql"
)

// AccessPath names how a SELECT's rows should be fetched before WHERE
// filtering, the choice pkg/engine's planner makes once per prepared
// statement rather than once per row.
type AccessPath int

const (
	// AccessFullScan walks every row in the table.
	AccessFullScan AccessPath = iota
	// AccessHashProbe looks up one equality match via a hash index.
	AccessHashProbe
	// AccessBTreeRange walks a contiguous key range via a B+Tree index.
	AccessBTreeRange
)

func (a AccessPath) String() string {
	switch a {
	case AccessHashProbe:
		return "hash_probe"
	case AccessBTreeRange:
		return "btree_range"
	default:
		return "full_scan"
	}
}

// Plan is the access-path decision for one SELECT, computed once against a
// prepared statement's WHERE shape and cached on its PreparedStatement so
// repeated executions (with different bound parameter values but the same
// WHERE structure) don't redo ChoosePath's work.
type Plan struct {
	AccessPath  AccessPath
	IndexColumn string
}

// IndexedColumn describes one column this table has an index over, as seen
// by the planner — it doesn't need to know anything about the index's
// internal structure, just its kind.
type IndexedColumn struct {
	Column string
	Kind   string // "hash" or "btree"
}

// ChoosePath inspects a WHERE clause's top-level comparison (or the first
// AND-conjunct's) against the table's indexed columns and picks the
// cheapest access path available: an equality match on a hash-indexed
// column wins outright, a range or equality on a B+Tree-indexed column
// uses the tree, and anything else falls back to a full scan.
func ChoosePath(where sql.Expr, indexed []IndexedColumn) (AccessPath, string) {
	byColumn := make(map[string]string, len(indexed))
	for _, ic := range indexed {
		byColumn[ic.Column] = ic.Kind
	}

	col, op := leadingComparison(where)
	if col == "" {
		return AccessFullScan, ""
	}
	kind, ok := byColumn[col]
	if !ok {
		return AccessFullScan, ""
	}

	switch kind {
	case "hash":
		if op == sql.EQ {
			return AccessHashProbe, col
		}
		return AccessFullScan, ""
	case "btree":
		switch op {
		case sql.EQ, sql.GT, sql.GTE, sql.LT, sql.LTE, sql.BETWEEN:
			return AccessBTreeRange, col
		}
	}
	return AccessFullScan, ""
}

// leadingComparison extracts the first column/operator pair from a WHERE
// clause's outermost comparison, descending through AND conjuncts (an OR
// makes no single column safe to seek on, so that case is left as a full
// scan).
func leadingComparison(expr sql.Expr) (string, sql.TokenKind) {
	be, ok := expr.(*sql.BinaryExpr)
	if !ok {
		return "", 0
	}
	if be.Op == sql.AND {
		if col, op := leadingComparison(be.Left); col != "" {
			return col, op
		}
		return leadingComparison(be.Right)
	}
	col, ok := be.Left.(*sql.ColumnRef)
	if !ok {
		return "", 0
	}
	return col.Name, be.Op
}

// ApplyOrderBy sorts rows in place by a single column, ascending unless
// desc is set. Comparable values follow the same numeric/string/bool rules
// as CompileWhere's comparisons.
func ApplyOrderBy(rows []Row, column string, desc bool) {
	if column == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, ok := compareValues(rows[i][column], rows[j][column])
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// ApplyLimitOffset slices rows per a SELECT's LIMIT/OFFSET, per the
// teacher's convention that OFFSET past the end yields an empty result
// rather than an error.
func ApplyLimitOffset(rows []Row, hasLimit bool, limit, offset int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if hasLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
