package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/dbcore/pkg/storage"
	"github.com/bobboyms/dbcore/pkg/types"
	"github.com/bobboyms/dbcore/pkg/wal"
)

func newWriteTestEngine(t *testing.T) *storage.StorageEngine {
	t.Helper()
	dir := t.TempDir()
	tableMgr := storage.NewTableMenager()
	if err := tableMgr.NewTable("users", []storage.Index{
		{Name: "id", Primary: true, Type: storage.TypeInt},
	}, 3, storage.EngineAppendOnly, storage.NoEncryptMode, filepath.Join(dir, "users")); err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	opts := wal.DefaultOptions()
	opts.SyncPolicy = wal.SyncEveryWrite
	walWriter, err := wal.NewWALWriter(filepath.Join(dir, "wal.log"), opts)
	if err != nil {
		t.Fatalf("NewWALWriter failed: %v", err)
	}

	se, err := storage.NewStorageEngine(tableMgr, walWriter)
	if err != nil {
		t.Fatalf("NewStorageEngine failed: %v", err)
	}
	return se
}

func TestWriteTransaction_CommitAppliesAllOps(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	wtx := se.BeginWriteTransaction()
	if err := wtx.Put("users", "id", types.IntKey(1), `{"id":1}`); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := wtx.Put("users", "id", types.IntKey(2), `{"id":2}`); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	for _, id := range []int{1, 2} {
		_, found, err := se.Get("users", "id", types.IntKey(id))
		if err != nil || !found {
			t.Fatalf("expected id=%d to be visible after commit, found=%v err=%v", id, found, err)
		}
	}
}

func TestWriteTransaction_Rollback_DiscardsOps(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	wtx := se.BeginWriteTransaction()
	if err := wtx.Put("users", "id", types.IntKey(1), `{"id":1}`); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := wtx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	_, found, err := se.Get("users", "id", types.IntKey(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("rolled-back write should not be visible")
	}
}

func TestWriteTransaction_PutAfterCommit_Errors(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	wtx := se.BeginWriteTransaction()
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := wtx.Put("users", "id", types.IntKey(1), `{}`); err == nil {
		t.Fatal("expected error writing to an already-committed transaction")
	}
}

func TestWriteTransaction_Put_UnknownIndex_FailsFast(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	wtx := se.BeginWriteTransaction()
	if err := wtx.Put("users", "ghost", types.IntKey(1), `{}`); err == nil {
		t.Fatal("expected error for unknown index")
	}
}

func TestWriteTransaction_Del(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	if err := se.Put("users", "id", types.IntKey(1), `{"id":1}`); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	wtx := se.BeginWriteTransaction()
	if err := wtx.Del("users", "id", types.IntKey(1)); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	_, found, err := se.Get("users", "id", types.IntKey(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected row deleted by committed write transaction to be invisible")
	}
}

func TestWriteTransaction_EmptyCommit_IsNoop(t *testing.T) {
	se := newWriteTestEngine(t)
	defer se.Close()

	wtx := se.BeginWriteTransaction()
	if err := wtx.Commit(); err != nil {
		t.Fatalf("empty commit should succeed: %v", err)
	}
}
