package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/bobboyms/dbcore/pkg/storage"
	"github.com/bobboyms/dbcore/pkg/types"
)

func TestCursor_SeekAndIterate(t *testing.T) {
	dir := t.TempDir()
	tableMgr := storage.NewTableMenager()
	if err := tableMgr.NewTable("users", []storage.Index{
		{Name: "id", Primary: true, Type: storage.TypeInt},
	}, 3, storage.EngineAppendOnly, storage.NoEncryptMode, filepath.Join(dir, "users")); err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	se, err := storage.NewStorageEngine(tableMgr, nil)
	if err != nil {
		t.Fatalf("NewStorageEngine failed: %v", err)
	}
	defer se.Close()

	for i := 1; i <= 10; i++ {
		if err := se.Put("users", "id", types.IntKey(i), `{"id":1}`); err != nil {
			t.Fatalf("put %d failed: %v", i, err)
		}
	}

	table, err := tableMgr.GetTableByName("users")
	if err != nil {
		t.Fatalf("GetTableByName failed: %v", err)
	}
	index, err := table.GetIndex("id")
	if err != nil {
		t.Fatalf("GetIndex failed: %v", err)
	}

	c := se.Cursor(index.Tree)
	c.Seek(types.IntKey(5))
	defer c.Close()

	count := 0
	var lastKey int
	for c.Valid() {
		k := c.Key().(types.IntKey)
		if int(k) < 5 {
			t.Fatalf("cursor seeked to key before 5: got %d", k)
		}
		lastKey = int(k)
		count++
		c.Next()
	}

	if count != 6 { // 5..10 inclusive
		t.Fatalf("expected 6 entries from seek(5) to end, got %d", count)
	}
	if lastKey != 10 {
		t.Fatalf("expected last key 10, got %d", lastKey)
	}
}

func TestCursor_SeekNil_StartsAtBeginning(t *testing.T) {
	dir := t.TempDir()
	tableMgr := storage.NewTableMenager()
	if err := tableMgr.NewTable("users", []storage.Index{
		{Name: "id", Primary: true, Type: storage.TypeInt},
	}, 3, storage.EngineAppendOnly, storage.NoEncryptMode, filepath.Join(dir, "users")); err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	se, _ := storage.NewStorageEngine(tableMgr, nil)
	defer se.Close()

	for i := 1; i <= 3; i++ {
		se.Put("users", "id", types.IntKey(i), `{}`)
	}

	table, _ := tableMgr.GetTableByName("users")
	index, _ := table.GetIndex("id")

	c := se.Cursor(index.Tree)
	c.Seek(nil)
	defer c.Close()

	if !c.Valid() {
		t.Fatal("expected cursor to be valid at start of non-empty tree")
	}
	if k := c.Key().(types.IntKey); k != 1 {
		t.Fatalf("expected first key 1, got %d", k)
	}
}

func TestCursor_EmptyTree_NotValid(t *testing.T) {
	dir := t.TempDir()
	tableMgr := storage.NewTableMenager()
	tableMgr.NewTable("users", []storage.Index{
		{Name: "id", Primary: true, Type: storage.TypeInt},
	}, 3, storage.EngineAppendOnly, storage.NoEncryptMode, filepath.Join(dir, "users"))
	se, _ := storage.NewStorageEngine(tableMgr, nil)
	defer se.Close()

	table, _ := tableMgr.GetTableByName("users")
	index, _ := table.GetIndex("id")

	c := se.Cursor(index.Tree)
	c.Seek(nil)
	defer c.Close()

	if c.Valid() {
		t.Fatal("expected cursor over empty tree to be invalid")
	}
}
