package query

import (
	"testing"

	"github.com/bobboyms/dbcore/pkg/sql"
)

func parseWhere(t *testing.T, src string) sql.Expr {
	t.Helper()
	program := sql.Parse("SELECT * FROM t WHERE " + src)
	if len(program.Errors) > 0 {
		t.Fatalf("parse error: %s", program.Errors[0].Message)
	}
	stmt, ok := program.Statements[0].(*sql.SelectStmt)
	if !ok {
		t.Fatalf("expected *sql.SelectStmt, got %T", program.Statements[0])
	}
	return stmt.Where
}

func TestCompileWhere_SimpleEquality(t *testing.T) {
	pred, err := CompileWhere(parseWhere(t, "age = 30"))
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if !pred(Row{"age": int64(30)}) {
		t.Fatal("expected row with age=30 to match age = 30")
	}
	if pred(Row{"age": int64(31)}) {
		t.Fatal("expected row with age=31 not to match age = 30")
	}
}

func TestCompileWhere_And(t *testing.T) {
	pred, err := CompileWhere(parseWhere(t, "age > 18 AND age < 65"))
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if !pred(Row{"age": int64(30)}) {
		t.Fatal("expected age=30 to satisfy 18 < age < 65")
	}
	if pred(Row{"age": int64(10)}) {
		t.Fatal("expected age=10 not to satisfy age > 18")
	}
}

func TestCompileWhere_MissingColumn_NoMatch(t *testing.T) {
	pred, err := CompileWhere(parseWhere(t, "missing = 1"))
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if pred(Row{"age": int64(1)}) {
		t.Fatal("expected a row lacking the compared column never to match")
	}
}

func TestCompileWhere_NilExpr_MatchesEverything(t *testing.T) {
	pred, err := CompileWhere(nil)
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if !pred(Row{}) {
		t.Fatal("expected a nil WHERE clause to match every row")
	}
}

func TestCompileWhere_In(t *testing.T) {
	pred, err := CompileWhere(parseWhere(t, "status IN ('open', 'pending')"))
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if !pred(Row{"status": "open"}) {
		t.Fatal("expected status=open to match IN ('open', 'pending')")
	}
	if pred(Row{"status": "closed"}) {
		t.Fatal("expected status=closed not to match IN ('open', 'pending')")
	}
}

func TestCompileWhere_NotIn(t *testing.T) {
	pred, err := CompileWhere(parseWhere(t, "status IN ('open', 'pending')"))
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	_ = pred

	notExpr := parseWhere(t, "status NOT IN ('open', 'pending')")
	notPred, err := CompileWhere(notExpr)
	if err != nil {
		t.Fatalf("CompileWhere: %v", err)
	}
	if notPred(Row{"status": "open"}) {
		t.Fatal("expected status=open not to match NOT IN ('open', 'pending')")
	}
	if !notPred(Row{"status": "closed"}) {
		t.Fatal("expected status=closed to match NOT IN ('open', 'pending')")
	}
}

func TestCompileWhere_InSubquery_RejectedUnresolved(t *testing.T) {
	expr := parseWhere(t, "id IN (SELECT id FROM other)")
	if _, err := CompileWhere(expr); err == nil {
		t.Fatal("expected an error compiling an unresolved IN subquery")
	}
}
