package engine

import (
	"fmt"
	"strings"

	"github.com/bobboyms/dbcore/pkg/catalog"
	"github.com/bobboyms/dbcore/pkg/query"
	"github.com/bobboyms/dbcore/pkg/sql"
	"github.com/bobboyms/dbcore/pkg/storage"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Prepare parses sqlText once, serving a cached parse on repeated calls
// with the same text.
func (db *DB) Prepare(sqlText string) (*query.PreparedStatement, error) {
	return db.plans.Prepare(sqlText)
}

// Execute prepares and runs one statement with no bound parameters,
// returning its result rows for a SELECT/PRAGMA, nil otherwise.
func (db *DB) Execute(sqlText string) ([]query.Row, error) {
	return db.ExecuteParams(sqlText, nil, nil)
}

// ExecuteParams prepares and runs one statement, substituting positional
// (`?`) and named (`@name`) parameters from positional/named before
// dispatch. A statement with no ParamRef nodes ignores both arguments, so
// callers of Execute and ExecuteParams share the same prepare-and-dispatch
// path.
func (db *DB) ExecuteParams(sqlText string, positional []interface{}, named map[string]interface{}) ([]query.Row, error) {
	prepared, err := db.Prepare(sqlText)
	if err != nil {
		return nil, err
	}

	stmt := prepared.Statement
	bound := len(positional) > 0 || len(named) > 0
	if bound || len(prepared.ParamNames) > 0 {
		stmt, err = bindParams(stmt, positional, named)
		if err != nil {
			return nil, err
		}
	}

	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return db.execSelect(s, prepared, sqlText, bound)
	case *sql.InsertStmt:
		return nil, db.execInsert(s)
	case *sql.UpdateStmt:
		return nil, db.execUpdate(s)
	case *sql.DeleteStmt:
		return nil, db.execDelete(s)
	case *sql.CreateTableStmt:
		return nil, db.execCreateTable(s)
	case *sql.DropTableStmt:
		return nil, db.DropTable(s.Table)
	case *sql.PragmaStmt:
		return db.execPragma(s)
	case *sql.VacuumStmt:
		db.log.Printf("VACUUM %s: no-op through the engine facade; see storage.StorageEngine.Vacuum for the append-only reclaim path", s.Table)
		return nil, nil
	case *sql.TxStmt:
		return nil, fmt.Errorf("engine: use BeginTransaction/Commit rather than BEGIN/COMMIT/ROLLBACK statements")
	default:
		return nil, fmt.Errorf("engine: unsupported statement type %T", stmt)
	}
}

// ExecuteBatch runs every statement in order, stopping at (and reporting
// the index of) the first one that fails. An empty batch is a no-op.
func (db *DB) ExecuteBatch(statements []string) ([][]query.Row, error) {
	if len(statements) == 0 {
		return nil, nil
	}
	results := make([][]query.Row, 0, len(statements))
	for i, stmt := range statements {
		rows, err := db.Execute(stmt)
		if err != nil {
			return results, fmt.Errorf("engine: statement %d failed: %w", i, err)
		}
		results = append(results, rows)
	}
	return results, nil
}

// Tx is a lightweight transaction token: the snapshot LSN captured at
// BeginTransaction. Statements run through Tx.Execute the same way they
// would through DB.Execute directly — ordering against that snapshot is
// the only guarantee this layer adds; each engine's own MVCC/WAL still
// owns per-table durability and visibility.
type Tx struct {
	db       *DB
	snapshot uint64
	done     bool
}

// BeginTransaction captures the database's current LSN as a snapshot
// token for statements run through the returned Tx.
func (db *DB) BeginTransaction() *Tx {
	return &Tx{db: db, snapshot: db.lsn.Current()}
}

// Execute runs sqlText through the owning DB.
func (tx *Tx) Execute(sqlText string) ([]query.Row, error) {
	if tx.done {
		return nil, fmt.Errorf("engine: transaction already finished")
	}
	return tx.db.Execute(sqlText)
}

// Commit finishes the transaction. There is nothing to flush here beyond
// what each statement already durably applied as it ran.
func (tx *Tx) Commit() error {
	tx.done = true
	return nil
}

func (db *DB) lookupEngine(table string) (storage.Engine, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	eng, ok := db.engines[table]
	if !ok {
		return nil, fmt.Errorf("engine: table %q not found", table)
	}
	return eng, nil
}

// execSelect runs one SELECT. Bound statements (a prepared text with
// parameter values substituted in) skip the result cache outright, since
// the cache is keyed on the prepared SQL text alone and two different
// argument bindings of the same text must not collide on one cache entry.
func (db *DB) execSelect(s *sql.SelectStmt, prepared *query.PreparedStatement, sqlText string, bound bool) ([]query.Row, error) {
	cacheable := !bound && s.FromSub == nil && len(s.Joins) == 0
	if cacheable {
		if cached, ok := db.results.Get(sqlText, s.Table); ok {
			return cached, nil
		}
	}

	rows, err := db.evalSelect(s, prepared)
	if err != nil {
		return nil, err
	}

	if cacheable {
		db.results.Put(sqlText, s.Table, rows)
	}
	return rows, nil
}

// evalSelect is the recursive core shared by a top-level SELECT and any
// FROM/IN/scalar subquery nested inside one: scan the FROM source (a
// table or another SELECT), apply JOINs, resolve subqueries appearing in
// WHERE/HAVING into literal values, filter, group/aggregate, order, and
// limit.
func (db *DB) evalSelect(s *sql.SelectStmt, prepared *query.PreparedStatement) ([]query.Row, error) {
	rows, leading, err := db.scanFrom(s, prepared)
	if err != nil {
		return nil, err
	}

	where, err := db.resolveSubqueries(s.Where)
	if err != nil {
		return nil, err
	}
	pred, err := query.CompileWhere(where)
	if err != nil {
		return nil, err
	}

	if leading != "" {
		db.bumpWhereFreq(s.Table, leading)
	}

	kept := make([]query.Row, 0, len(rows))
	for _, r := range rows {
		if pred(r) {
			kept = append(kept, r)
		}
	}
	rows = kept

	isAggregate := len(s.GroupBy) > 0
	if !isAggregate {
		for _, c := range s.Columns {
			if c.Aggregate != "" {
				isAggregate = true
				break
			}
		}
	}
	if isAggregate {
		return db.evalAggregate(s, rows)
	}

	query.ApplyOrderBy(rows, s.OrderBy, s.Desc)
	rows = query.ApplyLimitOffset(rows, s.HasLimit, s.Limit, s.Offset)
	rows = projectColumns(rows, s.Columns)
	return rows, nil
}

// scanFrom materializes s's FROM source (a table, possibly hash-probed on
// its WHERE's leading equality, or a nested SELECT) and folds in every
// JOIN. It reports the leading WHERE column it used for access-path
// selection, if any, so evalSelect can feed that back into the
// auto-indexing advisor's frequency counter.
func (db *DB) scanFrom(s *sql.SelectStmt, prepared *query.PreparedStatement) ([]query.Row, string, error) {
	var rows []query.Row
	var err error
	var leading string

	if s.FromSub != nil {
		rows, err = db.evalSelect(s.FromSub, nil)
	} else {
		rows, leading, err = db.scanTable(s.Table, s.Where, prepared)
	}
	if err != nil {
		return nil, "", err
	}

	for _, j := range s.Joins {
		rows, err = db.applyJoin(rows, j)
		if err != nil {
			return nil, "", err
		}
	}
	return rows, leading, nil
}

// scanTable fetches table's rows via a hash probe when where leads with
// an equality comparison on an indexed column, a full scan otherwise. The
// chosen path is cached on prepared.Plan (when prepared is non-nil) so
// repeated executions of the same prepared text don't recompute
// ChoosePath from scratch.
func (db *DB) scanTable(table string, where sql.Expr, prepared *query.PreparedStatement) ([]query.Row, string, error) {
	eng, err := db.lookupEngine(table)
	if err != nil {
		return nil, "", err
	}
	leading := leadingColumn(where)

	plan := db.planFor(table, where, prepared)
	if plan.AccessPath == query.AccessHashProbe {
		if val, ok := eqValue(where, plan.IndexColumn); ok {
			if hi := db.hashIndexFor(table, plan.IndexColumn); hi != nil {
				refs := hi.Find(comparableKey(val))
				rows := make([]query.Row, 0, len(refs))
				for _, ref := range refs {
					payload, err := eng.Read(storage.RowHandle(ref))
					if err != nil {
						return nil, "", err
					}
					row, err := decodeRow(payload)
					if err != nil {
						return nil, "", err
					}
					rows = append(rows, row)
				}
				return rows, leading, nil
			}
		}
	}

	var rows []query.Row
	err = eng.Scan(func(_ storage.RowHandle, payload []byte) error {
		row, err := decodeRow(payload)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, leading, err
}

// planFor computes (or recalls) the access-path decision for table/where.
// A nil prepared (a FROM-subquery's inner SELECT, which carries no
// PreparedStatement of its own) always recomputes.
func (db *DB) planFor(table string, where sql.Expr, prepared *query.PreparedStatement) query.Plan {
	if prepared != nil && prepared.Plan != nil {
		return *prepared.Plan
	}
	path, col := query.ChoosePath(where, db.indexedColumns(table))
	plan := query.Plan{AccessPath: path, IndexColumn: col}
	if prepared != nil {
		prepared.Plan = &plan
	}
	return plan
}

// applyJoin folds right's rows into left by j's ON predicate. An
// unmatched left row survives a LEFT JOIN (its right-hand columns simply
// absent from the merged row) and is dropped otherwise.
func (db *DB) applyJoin(left []query.Row, j sql.Join) ([]query.Row, error) {
	right, _, err := db.scanTable(j.Table, nil, nil)
	if err != nil {
		return nil, err
	}
	onPred, err := query.CompileWhere(j.On)
	if err != nil {
		return nil, err
	}

	var out []query.Row
	for _, l := range left {
		matched := false
		for _, r := range right {
			merged := mergeRows(l, r)
			if onPred(merged) {
				out = append(out, merged)
				matched = true
			}
		}
		if !matched && j.Kind == sql.LEFT {
			out = append(out, l)
		}
	}
	return out, nil
}

func mergeRows(l, r query.Row) query.Row {
	merged := make(query.Row, len(l)+len(r))
	for k, v := range l {
		merged[k] = v
	}
	for k, v := range r {
		merged[k] = v
	}
	return merged
}

// resolveSubqueries evaluates every SubqueryExpr/InExpr.Sub reachable from
// e into literal values, since CompileWhere has no database to run a
// subquery against and rejects one outright (query.compileIn).
func (db *DB) resolveSubqueries(e sql.Expr) (sql.Expr, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case *sql.BinaryExpr:
		left, err := db.resolveSubqueries(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := db.resolveSubqueries(v.Right)
		if err != nil {
			return nil, err
		}
		return &sql.BinaryExpr{Left: left, Op: v.Op, Right: right}, nil
	case *sql.InExpr:
		left, err := db.resolveSubqueries(v.Left)
		if err != nil {
			return nil, err
		}
		if v.Sub != nil {
			rows, err := db.evalSelect(v.Sub, nil)
			if err != nil {
				return nil, err
			}
			col := firstColumnName(v.Sub)
			values := make([]sql.Expr, len(rows))
			for i, r := range rows {
				values[i] = &sql.Literal{Value: r[col]}
			}
			return &sql.InExpr{Left: left, Not: v.Not, Values: values}, nil
		}
		values := make([]sql.Expr, len(v.Values))
		for i, val := range v.Values {
			nv, err := db.resolveSubqueries(val)
			if err != nil {
				return nil, err
			}
			values[i] = nv
		}
		return &sql.InExpr{Left: left, Not: v.Not, Values: values}, nil
	case *sql.SubqueryExpr:
		rows, err := db.evalSelect(v.Query, nil)
		if err != nil {
			return nil, err
		}
		col := firstColumnName(v.Query)
		if len(rows) == 0 {
			return &sql.Literal{Value: nil}, nil
		}
		return &sql.Literal{Value: rows[0][col]}, nil
	default:
		return e, nil
	}
}

// firstColumnName reports the column (or alias) a scalar/IN subquery's
// single selected column is fetched under.
func firstColumnName(s *sql.SelectStmt) string {
	if len(s.Columns) == 0 {
		return ""
	}
	c := s.Columns[0]
	if c.Alias != "" {
		return c.Alias
	}
	if c.Aggregate != "" {
		return c.Aggregate
	}
	return c.Column
}

// evalAggregate groups rows by s.GroupBy (the whole result set as one
// group when GroupBy is empty), computes each selected aggregate per
// group, and applies HAVING to the computed groups.
func (db *DB) evalAggregate(s *sql.SelectStmt, rows []query.Row) ([]query.Row, error) {
	having, err := db.resolveSubqueries(s.Having)
	if err != nil {
		return nil, err
	}
	havingPred, err := query.CompileWhere(having)
	if err != nil {
		return nil, err
	}

	if len(s.GroupBy) == 0 {
		result, err := aggregateGroup(s.Columns, nil, rows)
		if err != nil {
			return nil, err
		}
		if !havingPred(result) {
			return nil, nil
		}
		return []query.Row{result}, nil
	}

	groups := make(map[string][]query.Row)
	var order []string
	for _, r := range rows {
		key := groupKey(r, s.GroupBy)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]query.Row, 0, len(order))
	for _, key := range order {
		result, err := aggregateGroup(s.Columns, s.GroupBy, groups[key])
		if err != nil {
			return nil, err
		}
		if havingPred(result) {
			out = append(out, result)
		}
	}

	query.ApplyOrderBy(out, s.OrderBy, s.Desc)
	return query.ApplyLimitOffset(out, s.HasLimit, s.Limit, s.Offset), nil
}

// aggregateGroup computes one GROUP BY group's row: groupBy columns carry
// the group's shared value through unchanged, every aggregate column is
// reduced over the group's rows.
func aggregateGroup(columns []sql.SelectColumn, groupBy []string, rows []query.Row) (query.Row, error) {
	result := make(query.Row, len(groupBy)+len(columns))
	for _, g := range groupBy {
		if len(rows) > 0 {
			result[g] = rows[0][g]
		}
	}
	for _, c := range columns {
		if c.Aggregate == "" {
			continue
		}
		val, err := query.Aggregate(rows, c.Aggregate, c.Column)
		if err != nil {
			return nil, err
		}
		alias := c.Alias
		if alias == "" {
			alias = c.Aggregate
		}
		result[alias] = val
	}
	return result, nil
}

func groupKey(r query.Row, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprint(&b, r[c])
	}
	return b.String()
}

// projectColumns narrows each row to the selected columns; a bare "*"
// (or no columns at all) passes every row through untouched. GROUP BY's
// aggregateGroup already narrows a group's result row, so this is only
// reached for a non-aggregate SELECT.
func projectColumns(rows []query.Row, columns []sql.SelectColumn) []query.Row {
	if len(columns) == 0 || (len(columns) == 1 && columns[0].Column == "*") {
		return rows
	}
	projected := make([]query.Row, len(rows))
	for i, r := range rows {
		p := make(query.Row, len(columns))
		for _, c := range columns {
			p[c.Column] = r[c.Column]
		}
		projected[i] = p
	}
	return projected
}

func (db *DB) execInsert(s *sql.InsertStmt) error {
	eng, err := db.lookupEngine(s.Table)
	if err != nil {
		return err
	}

	columns := s.Columns
	if len(columns) == 0 {
		// INSERT INTO t VALUES (...) with no column list supplies values in
		// the table's declared column order.
		schema, err := db.catalog.Get(s.Table)
		if err != nil {
			return err
		}
		if len(schema.Columns) != len(s.Values) {
			return fmt.Errorf("engine: column/value count mismatch for INSERT INTO %s", s.Table)
		}
		columns = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			columns[i] = c.Name
		}
	} else if len(columns) != len(s.Values) {
		return fmt.Errorf("engine: column/value count mismatch for INSERT INTO %s", s.Table)
	}

	row := make(query.Row, len(columns))
	for i, col := range columns {
		v, err := literalValue(s.Values[i])
		if err != nil {
			return err
		}
		row[col] = v
	}

	payload, err := encodeRow(row)
	if err != nil {
		return err
	}
	id, err := eng.Insert(payload, db.lsn.Next())
	if err != nil {
		return err
	}
	db.indexInsert(s.Table, row, id)
	db.results.Invalidate(s.Table)
	return nil
}

func (db *DB) execUpdate(s *sql.UpdateStmt) error {
	eng, err := db.lookupEngine(s.Table)
	if err != nil {
		return err
	}
	where, err := db.resolveSubqueries(s.Where)
	if err != nil {
		return err
	}
	pred, err := query.CompileWhere(where)
	if err != nil {
		return err
	}

	sets := make(map[string]interface{}, len(s.Sets))
	for col, expr := range s.Sets {
		v, err := literalValue(expr)
		if err != nil {
			return err
		}
		sets[col] = v
	}

	type target struct {
		id  storage.RowHandle
		row query.Row
	}
	var targets []target
	if err := eng.Scan(func(id storage.RowHandle, payload []byte) error {
		row, err := decodeRow(payload)
		if err != nil {
			return err
		}
		if pred(row) {
			targets = append(targets, target{id: id, row: row})
		}
		return nil
	}); err != nil {
		return err
	}

	for _, t := range targets {
		newRow := make(query.Row, len(t.row))
		for k, v := range t.row {
			newRow[k] = v
		}
		for col, v := range sets {
			newRow[col] = v
		}
		newPayload, err := encodeRow(newRow)
		if err != nil {
			return err
		}
		newID, err := eng.Update(t.id, newPayload, db.lsn.Next(), db.lsn.Next())
		if err != nil {
			return err
		}
		db.indexUpdate(s.Table, t.row, newRow, t.id, newID)
	}
	if len(targets) > 0 {
		db.results.Invalidate(s.Table)
	}
	return nil
}

func (db *DB) execDelete(s *sql.DeleteStmt) error {
	eng, err := db.lookupEngine(s.Table)
	if err != nil {
		return err
	}
	where, err := db.resolveSubqueries(s.Where)
	if err != nil {
		return err
	}
	pred, err := query.CompileWhere(where)
	if err != nil {
		return err
	}

	type target struct {
		id  storage.RowHandle
		row query.Row
	}
	var targets []target
	if err := eng.Scan(func(id storage.RowHandle, payload []byte) error {
		row, err := decodeRow(payload)
		if err != nil {
			return err
		}
		if pred(row) {
			targets = append(targets, target{id: id, row: row})
		}
		return nil
	}); err != nil {
		return err
	}

	for _, t := range targets {
		if err := eng.Delete(t.id, db.lsn.Next()); err != nil {
			return err
		}
		db.indexDelete(s.Table, t.row, t.id)
	}
	if len(targets) > 0 {
		db.results.Invalidate(s.Table)
	}
	return nil
}

func (db *DB) execCreateTable(s *sql.CreateTableStmt) error {
	cols := make([]catalog.ColumnSchema, len(s.Columns))
	for i, c := range s.Columns {
		dt, err := parseDataType(c.Type)
		if err != nil {
			return err
		}
		cols[i] = catalog.ColumnSchema{Name: c.Name, Type: dt, Primary: c.Primary, Unique: c.Unique}
	}
	encMode := storage.NoEncryptMode
	if s.Encrypted {
		encMode = storage.AeadEncryptMode
	}
	engineTag, err := parseStorageTag(s.Storage)
	if err != nil {
		return err
	}
	return db.CreateTable(catalog.TableSchema{
		Name:      s.Table,
		Columns:   cols,
		Engine:    engineTag,
		Encrypted: encMode,
	})
}

func (db *DB) execPragma(s *sql.PragmaStmt) ([]query.Row, error) {
	switch strings.ToLower(s.Name) {
	case "table_info":
		schema, err := db.catalog.Get(s.Arg)
		if err != nil {
			return nil, err
		}
		rows := make([]query.Row, len(schema.Columns))
		for i, c := range schema.Columns {
			rows[i] = query.Row{"name": c.Name, "type": c.Type.String(), "primary": c.Primary, "unique": c.Unique}
		}
		return rows, nil
	case "index_list":
		cols := db.indexedColumns(s.Arg)
		rows := make([]query.Row, len(cols))
		for i, c := range cols {
			rows[i] = query.Row{"column": c.Column, "kind": c.Kind}
		}
		return rows, nil
	case "index_advisor":
		recs, err := db.AnalyzeIndexes(s.Arg, 0)
		if err != nil {
			return nil, err
		}
		rows := make([]query.Row, len(recs))
		for i, r := range recs {
			rows[i] = query.Row{"column": r.Column, "kind": r.Kind, "selectivity": r.Selectivity, "frequency": r.Frequency}
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("engine: unknown pragma %q", s.Name)
	}
}

func literalValue(e sql.Expr) (interface{}, error) {
	lit, ok := e.(*sql.Literal)
	if !ok {
		return nil, fmt.Errorf("engine: expected a literal value, got %T", e)
	}
	return lit.Value, nil
}

// parseDataType maps a CREATE TABLE column type keyword to its storage
// representation. INTEGER/LONG, TEXT, REAL, and DATETIME are the type
// names a CREATE TABLE statement is expected to use; INT/VARCHAR/FLOAT/DATE
// are accepted as the same types under their storage.DataType names.
func parseDataType(name string) (storage.DataType, error) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER", "LONG":
		return storage.TypeInt, nil
	case "VARCHAR", "TEXT":
		return storage.TypeVarchar, nil
	case "BOOL", "BOOLEAN":
		return storage.TypeBoolean, nil
	case "FLOAT", "REAL":
		return storage.TypeFloat, nil
	case "DATE", "DATETIME":
		return storage.TypeDate, nil
	case "DECIMAL":
		return storage.TypeDecimal, nil
	case "BLOB":
		return storage.TypeBlob, nil
	case "ULID":
		return storage.TypeULID, nil
	case "GUID":
		return storage.TypeGUID, nil
	default:
		return 0, fmt.Errorf("engine: unknown column type %q", name)
	}
}

// parseStorageTag maps a CREATE TABLE STORAGE = tag clause to the engine
// it selects. An empty tag (no clause given) defaults to append-only,
// matching the teacher's original single-engine behavior.
func parseStorageTag(tag string) (storage.EngineTag, error) {
	switch strings.ToUpper(tag) {
	case "", "APPEND_ONLY":
		return storage.EngineAppendOnly, nil
	case "PAGE_BASED":
		return storage.EnginePageBased, nil
	case "HYBRID":
		return storage.EngineHybrid, nil
	case "COLUMNAR":
		return storage.EngineColumnar, nil
	default:
		return 0, fmt.Errorf("engine: unknown STORAGE tag %q", tag)
	}
}

func encodeRow(row query.Row) ([]byte, error) {
	return bson.Marshal(bson.M(row))
}

func decodeRow(data []byte) (query.Row, error) {
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return query.Row(m), nil
}
