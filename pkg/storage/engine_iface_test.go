package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func exerciseEngine(t *testing.T, e Engine) {
	t.Helper()

	id, err := e.Insert([]byte("hello"), 1)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := e.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}

	newID, err := e.Update(id, []byte("world"), 2, 3)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = e.Read(newID)
	if err != nil {
		t.Fatalf("Read after update: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("expected 'world', got %q", got)
	}

	visited := make(map[RowHandle][]byte)
	if err := e.Scan(func(id RowHandle, payload []byte) error {
		visited[id] = payload
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(visited) != 1 {
		t.Fatalf("expected exactly one live row visited, got %d", len(visited))
	}

	if err := e.Delete(newID, 4); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := e.Read(newID); err == nil {
		t.Fatal("expected reading a deleted row to fail")
	}

	_ = e.GetMetrics()
	tok := e.BeginTransaction()
	if err := e.Commit(tok); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestAppendOnlyTableEngine_SatisfiesEngine(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenAppendOnlyTableEngine("appendonly-test", filepath.Join(dir, "table"), nil)
	if err != nil {
		t.Fatalf("OpenAppendOnlyTableEngine: %v", err)
	}
	defer e.Close()

	exerciseEngine(t, e)
}

func TestPageEngineAdapter_SatisfiesEngine(t *testing.T) {
	dir := t.TempDir()
	base, err := OpenPageBasedEngine(filepath.Join(dir, "table.pages"), nil, 16, 0)
	if err != nil {
		t.Fatalf("OpenPageBasedEngine: %v", err)
	}
	defer base.Close()

	exerciseEngine(t, NewPageEngineAdapter("page-test", base))
}

func TestHybridEngineAdapter_SatisfiesEngine(t *testing.T) {
	dir := t.TempDir()
	base, err := OpenHybridEngine("hybrid-test", dir, nil, 16, 0, HybridOptions{FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("OpenHybridEngine: %v", err)
	}
	defer base.Close()

	exerciseEngine(t, NewHybridEngineAdapter(base))
}
