package storage

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobboyms/dbcore/pkg/heap"
	"github.com/bobboyms/dbcore/pkg/wal"
)

func newTestBulkImporter(t *testing.T) (*BulkImporter, *heap.HeapManager) {
	t.Helper()
	dir := t.TempDir()

	hm, err := heap.NewHeapManager(filepath.Join(dir, "bulk.heap"))
	if err != nil {
		t.Fatalf("NewHeapManager: %v", err)
	}
	t.Cleanup(func() { hm.Close() })

	opts := wal.DefaultOptions()
	opts.SyncPolicy = wal.SyncEveryWrite
	ww, err := wal.NewWALWriter(filepath.Join(dir, "bulk.wal"), opts)
	if err != nil {
		t.Fatalf("NewWALWriter: %v", err)
	}
	t.Cleanup(func() { ww.Close() })

	var lsn atomic.Uint64
	bi, err := NewBulkImporter([]byte("0123456789abcdef0123456789abcdef"), 4, ww, hm, func() uint64 { return lsn.Add(1) })
	if err != nil {
		t.Fatalf("NewBulkImporter: %v", err)
	}
	return bi, hm
}

func TestBulkImporter_CompleteBulkImport_WritesOneHeapRecord(t *testing.T) {
	bi, hm := newTestBulkImporter(t)

	rows := [][]byte{[]byte("row-1"), []byte("row-2"), []byte("row-3")}
	for _, r := range rows {
		if err := bi.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if bi.Pending() == 0 {
		t.Fatal("expected pending bytes before CompleteBulkImport")
	}

	offset, err := bi.CompleteBulkImport()
	if err != nil {
		t.Fatalf("CompleteBulkImport: %v", err)
	}
	if bi.Pending() != 0 {
		t.Fatalf("expected empty buffer after CompleteBulkImport, got %d pending", bi.Pending())
	}

	doc, hdr, err := hm.Read(offset)
	if err != nil {
		t.Fatalf("heap Read: %v", err)
	}
	if !hdr.Valid {
		t.Fatal("expected the bulk-imported record to be valid")
	}
	if len(doc) == 0 {
		t.Fatal("expected a non-empty encrypted blob in the heap")
	}
}

func TestBulkImporter_CompleteBulkImport_EmptyBatchIsNoOp(t *testing.T) {
	bi, _ := newTestBulkImporter(t)

	offset, err := bi.CompleteBulkImport()
	if err != nil {
		t.Fatalf("CompleteBulkImport on empty batch: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected offset 0 for an empty batch, got %d", offset)
	}
}

func TestBulkImporter_CompleteBulkImportAsync(t *testing.T) {
	bi, hm := newTestBulkImporter(t)

	if err := bi.Write([]byte("async-row")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	offsets, errs := bi.CompleteBulkImportAsync(ctx)
	select {
	case err := <-errs:
		t.Fatalf("CompleteBulkImportAsync failed: %v", err)
	case offset := <-offsets:
		doc, hdr, err := hm.Read(offset)
		if err != nil {
			t.Fatalf("heap Read: %v", err)
		}
		if !hdr.Valid || len(doc) == 0 {
			t.Fatal("expected a valid, non-empty encrypted blob in the heap")
		}
	case <-time.After(time.Second):
		t.Fatal("CompleteBulkImportAsync never completed")
	}
}
