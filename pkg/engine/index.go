package engine

import (
	"errors"

	"github.com/bobboyms/dbcore/pkg/catalog"
	"github.com/bobboyms/dbcore/pkg/index"
	"github.com/bobboyms/dbcore/pkg/query"
	"github.com/bobboyms/dbcore/pkg/sql"
	"github.com/bobboyms/dbcore/pkg/storage"
	"github.com/bobboyms/dbcore/pkg/types"
)

// errStopScan aborts an eng.Scan early without surfacing an error to the
// caller; used by AnalyzeIndexes to cap how many rows it samples.
var errStopScan = errors.New("engine: sample limit reached")

// buildIndexes creates one hash index per primary/unique column declared in
// schema and backfills it from eng's current rows, so a table opened from
// an existing catalog (Open) gets the same indexes a freshly created one
// does. Auto-indexing beyond primary/unique columns is left to the
// advisor (AnalyzeIndexes) rather than decided here.
func buildIndexes(schema catalog.TableSchema, eng storage.Engine) (map[string]*index.HashIndex, error) {
	idx := make(map[string]*index.HashIndex)
	for _, col := range schema.Columns {
		if col.Primary || col.Unique {
			idx[col.Name] = index.NewHashIndex()
		}
	}
	if len(idx) == 0 {
		return idx, nil
	}

	err := eng.Scan(func(id storage.RowHandle, payload []byte) error {
		row, err := decodeRow(payload)
		if err != nil {
			return err
		}
		for col, hi := range idx {
			hi.Add(comparableKey(row[col]), index.RowRef(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// indexedColumns reports table's indexed columns to query.ChoosePath.
func (db *DB) indexedColumns(table string) []query.IndexedColumn {
	db.mu.RLock()
	defer db.mu.RUnlock()
	byTable := db.indexes[table]
	cols := make([]query.IndexedColumn, 0, len(byTable))
	for col := range byTable {
		cols = append(cols, query.IndexedColumn{Column: col, Kind: "hash"})
	}
	return cols
}

func (db *DB) hashIndexFor(table, col string) *index.HashIndex {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.indexes[table][col]
}

// indexInsert adds row's indexed columns to table's hash indexes under id.
func (db *DB) indexInsert(table string, row query.Row, id storage.RowHandle) {
	db.mu.RLock()
	idx := db.indexes[table]
	db.mu.RUnlock()
	for col, hi := range idx {
		hi.Add(comparableKey(row[col]), index.RowRef(id))
	}
}

// indexUpdate moves the indexed-column entries for a row from oldID to
// newID, reflecting both whatever columns Update's SET clause changed and
// the append-only engine's forwarding-by-append move to a new row handle.
func (db *DB) indexUpdate(table string, oldRow, newRow query.Row, oldID, newID storage.RowHandle) {
	db.mu.RLock()
	idx := db.indexes[table]
	db.mu.RUnlock()
	for col, hi := range idx {
		hi.Remove(comparableKey(oldRow[col]), index.RowRef(oldID))
		hi.Add(comparableKey(newRow[col]), index.RowRef(newID))
	}
}

// indexDelete removes row's indexed columns from table's hash indexes.
func (db *DB) indexDelete(table string, row query.Row, id storage.RowHandle) {
	db.mu.RLock()
	idx := db.indexes[table]
	db.mu.RUnlock()
	for col, hi := range idx {
		hi.Remove(comparableKey(row[col]), index.RowRef(id))
	}
}

// comparableKey converts a decoded row value into the key type pkg/index
// and pkg/btree key on, or nil if v's Go type has no Comparable mapping
// (callers treat a nil key as "skip", matching HashIndex.Add's own rule).
func comparableKey(v interface{}) types.Comparable {
	switch val := v.(type) {
	case int64:
		return types.IntKey(val)
	case int32:
		return types.IntKey(int64(val))
	case int:
		return types.IntKey(int64(val))
	case float64:
		return types.FloatKey(val)
	case string:
		return types.VarcharKey(val)
	case bool:
		return types.BoolKey(val)
	default:
		return nil
	}
}

// bumpWhereFreq records that a SELECT against table led with a comparison
// on col, feeding index.AnalyzeAndCreateIndexes's frequency heuristic.
func (db *DB) bumpWhereFreq(table, col string) {
	if col == "" {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	byCol := db.whereFreq[table]
	if byCol == nil {
		byCol = make(map[string]int)
		db.whereFreq[table] = byCol
	}
	byCol[col]++
}

func (db *DB) queryFrequency(table string) map[string]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]int, len(db.whereFreq[table]))
	for col, n := range db.whereFreq[table] {
		out[col] = n
	}
	return out
}

// AnalyzeIndexes samples up to sampleSize rows (0 means every row) from
// table and asks the auto-indexing advisor which columns look worth
// indexing, combining the sampled selectivity with this table's observed
// WHERE frequency. It only recommends — PRAGMA index_advisor surfaces the
// verdicts, nothing here builds an index automatically.
func (db *DB) AnalyzeIndexes(table string, sampleSize int) ([]index.Recommendation, error) {
	eng, err := db.lookupEngine(table)
	if err != nil {
		return nil, err
	}

	samples := make(map[string][]interface{})
	var order []string
	n := 0
	err = eng.Scan(func(_ storage.RowHandle, payload []byte) error {
		if sampleSize > 0 && n >= sampleSize {
			return errStopScan
		}
		row, err := decodeRow(payload)
		if err != nil {
			return err
		}
		for col, v := range row {
			if _, seen := samples[col]; !seen {
				order = append(order, col)
			}
			samples[col] = append(samples[col], v)
		}
		n++
		return nil
	})
	if err != nil && err != errStopScan {
		return nil, err
	}

	cols := make([]index.ColumnSample, 0, len(order))
	for _, col := range order {
		cols = append(cols, index.ColumnSample{Column: col, Values: samples[col]})
	}
	return index.AnalyzeAndCreateIndexes(cols, db.queryFrequency(table)), nil
}

// eqValue extracts the literal value compared for equality against col in
// where, descending through AND conjuncts the same way query.ChoosePath's
// leadingComparison does. Returns ok=false if col never appears in an
// equality comparison (an OR branch, a different operator, or a comparison
// against another expression entirely).
func eqValue(where sql.Expr, col string) (interface{}, bool) {
	be, ok := where.(*sql.BinaryExpr)
	if !ok {
		return nil, false
	}
	if be.Op == sql.AND {
		if v, ok := eqValue(be.Left, col); ok {
			return v, true
		}
		return eqValue(be.Right, col)
	}
	if be.Op != sql.EQ {
		return nil, false
	}
	ref, ok := be.Left.(*sql.ColumnRef)
	if !ok || ref.Name != col {
		return nil, false
	}
	v, err := literalValue(be.Right)
	if err != nil {
		return nil, false
	}
	return v, true
}

// leadingColumn reports the column named in where's outermost comparison
// (or its first AND-conjunct's), regardless of operator or whether that
// column is indexed — unlike query.ChoosePath, which only reports a
// column it can actually act on. AnalyzeIndexes needs the unfiltered
// version: a column worth recommending an index for is, almost by
// definition, one that isn't indexed yet.
func leadingColumn(where sql.Expr) string {
	be, ok := where.(*sql.BinaryExpr)
	if !ok {
		return ""
	}
	if be.Op == sql.AND {
		if col := leadingColumn(be.Left); col != "" {
			return col
		}
		return leadingColumn(be.Right)
	}
	ref, ok := be.Left.(*sql.ColumnRef)
	if !ok {
		return ""
	}
	return ref.Name
}
