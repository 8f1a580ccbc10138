package engine

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/dbcore/pkg/catalog"
	"github.com/bobboyms/dbcore/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	db, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExecute_CreateInsertSelect(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Execute("CREATE TABLE users (id INT, name VARCHAR, age INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Execute(`INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)`); err != nil {
		t.Fatalf("INSERT alice: %v", err)
	}
	if _, err := db.Execute(`INSERT INTO users (id, name, age) VALUES (2, 'bob', 25)`); err != nil {
		t.Fatalf("INSERT bob: %v", err)
	}

	rows, err := db.Execute("SELECT * FROM users WHERE age > 26")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row with age > 26, got %d: %v", len(rows), rows)
	}
	if rows[0]["name"] != "alice" {
		t.Fatalf("expected alice, got %v", rows[0]["name"])
	}
}

func TestExecute_UpdateThenDelete(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Execute("CREATE TABLE items (id INT, qty INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Execute("INSERT INTO items (id, qty) VALUES (1, 10)"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	if _, err := db.Execute("UPDATE items SET qty = 99 WHERE id = 1"); err != nil {
		t.Fatalf("UPDATE: %v", err)
	}
	rows, err := db.Execute("SELECT * FROM items WHERE id = 1")
	if err != nil {
		t.Fatalf("SELECT after update: %v", err)
	}
	if len(rows) != 1 || rows[0]["qty"] != int32(99) && rows[0]["qty"] != int64(99) {
		t.Fatalf("expected qty updated to 99, got %v", rows)
	}

	if _, err := db.Execute("DELETE FROM items WHERE id = 1"); err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	rows, err = db.Execute("SELECT * FROM items WHERE id = 1")
	if err != nil {
		t.Fatalf("SELECT after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(rows))
	}
}

func TestExecute_AggregateCount(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Execute("CREATE TABLE events (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.Execute("INSERT INTO events (id) VALUES (1)"); err != nil {
			t.Fatalf("INSERT: %v", err)
		}
	}

	rows, err := db.Execute("SELECT COUNT(*) FROM events")
	if err != nil {
		t.Fatalf("SELECT COUNT: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one aggregate row, got %d", len(rows))
	}
}

func TestExecuteBatch_StopsAtFirstFailure(t *testing.T) {
	db := openTestDB(t)

	_, err := db.ExecuteBatch([]string{
		"CREATE TABLE t (id INT)",
		"INSERT INTO t (id) VALUES (1)",
		"SELECT * FROM nope",
	})
	if err == nil {
		t.Fatal("expected ExecuteBatch to fail on the unknown table")
	}
}

func TestBeginTransaction_ExecutesThroughTx(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}

	tx := db.BeginTransaction()
	if _, err := tx.Execute("INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("tx Execute: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := tx.Execute("INSERT INTO t (id) VALUES (2)"); err == nil {
		t.Fatal("expected Execute after Commit to fail")
	}

	rows, err := db.Execute("SELECT * FROM t")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row inserted through tx, got %d", len(rows))
	}
}

func TestCreateTable_DirectAPI_SupportsPageBasedEngine(t *testing.T) {
	db := openTestDB(t)

	err := db.CreateTable(catalog.TableSchema{
		Name: "paged",
		Columns: []catalog.ColumnSchema{
			{Name: "id", Type: storage.TypeInt, Primary: true},
		},
		Engine: storage.EnginePageBased,
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, err := db.Execute(`INSERT INTO paged (id) VALUES (1)`); err != nil {
		t.Fatalf("INSERT into page-based table: %v", err)
	}
	rows, err := db.Execute("SELECT * FROM paged")
	if err != nil {
		t.Fatalf("SELECT from page-based table: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestDropTable_RemovesEngineAndInvalidatesCache(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE gone (id INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Execute("INSERT INTO gone (id) VALUES (1)"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}
	if _, err := db.Execute("DROP TABLE gone"); err != nil {
		t.Fatalf("DROP TABLE: %v", err)
	}
	if _, err := db.Execute("SELECT * FROM gone"); err == nil {
		t.Fatal("expected SELECT against a dropped table to fail")
	}
}

// TestExecute_CreateInsertSelect_SpecScenarioS1 runs the create+insert+select
// walkthrough verbatim: the literal type keywords (INTEGER/TEXT), the
// column-less VALUES form, and a PRIMARY KEY equality lookup.
func TestExecute_CreateInsertSelect_SpecScenarioS1(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Execute("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Execute("INSERT INTO t VALUES (1,'Alice')"); err != nil {
		t.Fatalf("INSERT 1: %v", err)
	}
	if _, err := db.Execute("INSERT INTO t VALUES (2,'Bob')"); err != nil {
		t.Fatalf("INSERT 2: %v", err)
	}

	rows, err := db.Execute("SELECT * FROM t WHERE id = 2")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "Bob" {
		t.Fatalf("expected [{id:2 name:Bob}], got %v", rows)
	}
}

func TestExecute_Join(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR)"); err != nil {
		t.Fatalf("CREATE users: %v", err)
	}
	if _, err := db.Execute("CREATE TABLE orders (id INT, user_id INT, total INT)"); err != nil {
		t.Fatalf("CREATE orders: %v", err)
	}
	if _, err := db.Execute("INSERT INTO users (id, name) VALUES (1, 'alice')"); err != nil {
		t.Fatalf("INSERT user: %v", err)
	}
	if _, err := db.Execute("INSERT INTO orders (id, user_id, total) VALUES (100, 1, 50)"); err != nil {
		t.Fatalf("INSERT order: %v", err)
	}

	rows, err := db.Execute("SELECT name, total FROM orders JOIN users ON user_id = id WHERE total = 50")
	if err != nil {
		t.Fatalf("SELECT with JOIN: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "alice" {
		t.Fatalf("expected joined row for alice, got %v", rows)
	}
}

func TestExecute_GroupByHaving(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE sales (region VARCHAR, amount INT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	inserts := []string{
		"INSERT INTO sales (region, amount) VALUES ('east', 10)",
		"INSERT INTO sales (region, amount) VALUES ('east', 20)",
		"INSERT INTO sales (region, amount) VALUES ('west', 5)",
	}
	for _, ins := range inserts {
		if _, err := db.Execute(ins); err != nil {
			t.Fatalf("INSERT: %v", err)
		}
	}

	rows, err := db.Execute("SELECT region, SUM(amount) FROM sales GROUP BY region HAVING SUM(amount) > 15")
	if err != nil {
		t.Fatalf("SELECT GROUP BY/HAVING: %v", err)
	}
	if len(rows) != 1 || rows[0]["region"] != "east" {
		t.Fatalf("expected only the east region to clear the HAVING threshold, got %v", rows)
	}
}

func TestExecute_WhereInSubquery(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE users (id INT PRIMARY KEY, active BOOL)"); err != nil {
		t.Fatalf("CREATE users: %v", err)
	}
	if _, err := db.Execute("CREATE TABLE orders (id INT, user_id INT)"); err != nil {
		t.Fatalf("CREATE orders: %v", err)
	}
	if _, err := db.Execute("INSERT INTO users (id, active) VALUES (1, true)"); err != nil {
		t.Fatalf("INSERT user 1: %v", err)
	}
	if _, err := db.Execute("INSERT INTO users (id, active) VALUES (2, false)"); err != nil {
		t.Fatalf("INSERT user 2: %v", err)
	}
	if _, err := db.Execute("INSERT INTO orders (id, user_id) VALUES (100, 1)"); err != nil {
		t.Fatalf("INSERT order for active user: %v", err)
	}
	if _, err := db.Execute("INSERT INTO orders (id, user_id) VALUES (101, 2)"); err != nil {
		t.Fatalf("INSERT order for inactive user: %v", err)
	}

	rows, err := db.Execute("SELECT id FROM orders WHERE user_id IN (SELECT id FROM users WHERE active = true)")
	if err != nil {
		t.Fatalf("SELECT with IN subquery: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != int32(100) && rows[0]["id"] != int64(100) {
		t.Fatalf("expected only order 100 (active user), got %v", rows)
	}
}

func TestExecuteParams_PositionalAndNamed(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE users (id INT PRIMARY KEY, email VARCHAR)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := db.Execute("INSERT INTO users (id, email) VALUES (1, 'a@example.com')"); err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	rows, err := db.ExecuteParams("SELECT id FROM users WHERE id = ?", []interface{}{int64(1)}, nil)
	if err != nil {
		t.Fatalf("ExecuteParams positional: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for positional param, got %v", rows)
	}

	rows, err = db.ExecuteParams("SELECT id FROM users WHERE email = @email", nil, map[string]interface{}{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("ExecuteParams named: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row for named param, got %v", rows)
	}

	if _, err := db.Execute("SELECT id FROM users WHERE id = ?"); err == nil {
		t.Fatal("expected Execute to fail when a prepared parameter is never bound")
	}
}

func TestExecute_CreateTableWithStorageClause(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE cold (id INT PRIMARY KEY) STORAGE = PAGE_BASED"); err != nil {
		t.Fatalf("CREATE TABLE with STORAGE clause: %v", err)
	}
	if _, err := db.Execute("INSERT INTO cold (id) VALUES (1)"); err != nil {
		t.Fatalf("INSERT into page-based table via STORAGE clause: %v", err)
	}
	rows, err := db.Execute("SELECT * FROM cold")
	if err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestExecute_PragmaIndexList(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE users (id INT PRIMARY KEY, email VARCHAR UNIQUE)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	rows, err := db.Execute("PRAGMA index_list(users)")
	if err != nil {
		t.Fatalf("PRAGMA index_list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected a hash index for each of id (primary) and email (unique), got %v", rows)
	}
}

func TestExecute_PragmaTableInfo(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Execute("CREATE TABLE p (id INT, name VARCHAR)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	rows, err := db.Execute("PRAGMA table_info(p)")
	if err != nil {
		t.Fatalf("PRAGMA: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 column rows, got %d", len(rows))
	}
}
