package page_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bobboyms/dbcore/pkg/page"
)

func TestPageCache_ReadMiss_FillsFromIO(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()

	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	want := fillPage(0x7A)
	if err := io.WritePage(0, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	cache := page.NewPageCache(io, 4)
	got, err := cache.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("expected cache miss to load the page from disk")
	}
}

func TestPageCache_WriteThenRead_ReflectsWriteBeforeFlush(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()
	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	cache := page.NewPageCache(io, 4)
	want := fillPage(0x5C)
	if err := cache.Write(0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := cache.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("expected read to see uncommitted write")
	}
}

func TestPageCache_EvictionFlushesDirtyPages(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()
	if err := io.Truncate(3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	cache := page.NewPageCache(io, 1)
	if err := cache.Write(0, fillPage(0x01)); err != nil {
		t.Fatalf("Write(0): %v", err)
	}
	// Forces eviction of page 0, which must flush to disk first.
	if err := cache.Write(1, fillPage(0x02)); err != nil {
		t.Fatalf("Write(1): %v", err)
	}

	got, err := io.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage(0) directly from IO: %v", err)
	}
	if !bytes.Equal(got, fillPage(0x01)) {
		t.Fatal("expected evicted dirty page to have been flushed to disk")
	}
}

func TestPageCache_FlushDirty_ClearsDirtyFlagWithoutEviction(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()
	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	cache := page.NewPageCache(io, 4)
	if err := cache.Write(0, fillPage(0x9D)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cache.FlushDirty(); err != nil {
		t.Fatalf("FlushDirty: %v", err)
	}

	got, err := io.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, fillPage(0x9D)) {
		t.Fatal("expected FlushDirty to persist the page to disk")
	}
}
