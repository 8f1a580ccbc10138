package query

import (
	"fmt"

	"github.com/bobboyms/dbcore/pkg/columnar"
)

// Aggregate computes one SELECT aggregate function (COUNT/SUM/AVG/MIN/MAX)
// over a materialized row set, building a transient columnar.ColumnStore
// from the named column so the same numerically-stable Sum/Average logic
// backs both a one-off aggregate query and a long-lived columnar table.
func Aggregate(rows []Row, fn, column string) (interface{}, error) {
	if fn == "COUNT" && column == "*" {
		return int64(len(rows)), nil
	}

	store := columnar.NewColumnStore[float64]("agg", rows, func(r Row) (float64, bool) {
		v, ok := r[column]
		if !ok {
			return 0, false
		}
		f, ok := asFloat(v)
		return f, ok
	})

	switch fn {
	case "COUNT":
		return int64(store.Count()), nil
	case "SUM":
		return store.Sum(), nil
	case "AVG":
		return store.Average(), nil
	case "MIN":
		v, ok := store.Min()
		if !ok {
			return nil, nil
		}
		return v, nil
	case "MAX":
		v, ok := store.Max()
		if !ok {
			return nil, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("query: unsupported aggregate function %q", fn)
	}
}
