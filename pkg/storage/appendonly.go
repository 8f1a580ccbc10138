package storage

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bobboyms/dbcore/pkg/crypto"
	"github.com/bobboyms/dbcore/pkg/heap"
)

// AppendOnlyTableEngine adapts the teacher's segment-rotated heap to the
// uniform per-table Engine surface: one table, one heap, rows addressed by
// their heap offset instead of a primary-key lookup through the catalog's
// index trees. Updates follow the same version-chain idiom the heap already
// supports (old offset tombstoned, new version written with PrevOffset set
// to it), they just aren't driven through an index Replace here.
type AppendOnlyTableEngine struct {
	mu       sync.RWMutex
	instance string
	heap     *heap.HeapManager

	inserts      atomic.Uint64
	updates      atomic.Uint64
	deletes      atomic.Uint64
	materialized atomic.Uint64
	compactions  atomic.Uint64
}

// OpenAppendOnlyTableEngine opens (or creates) the heap segment set rooted
// at path and wraps it for Engine-style row addressing. A non-nil key wires
// an AEAD encryptor into the heap, so every document this engine writes
// from now on is encrypted at rest and transparently decrypted on Read/Scan.
func OpenAppendOnlyTableEngine(instance, path string, key []byte) (*AppendOnlyTableEngine, error) {
	hm, err := heap.NewHeapManager(path)
	if err != nil {
		return nil, err
	}
	if len(key) > 0 {
		enc, err := crypto.NewEncryptor(key)
		if err != nil {
			return nil, fmt.Errorf("appendonly: building encryptor: %w", err)
		}
		hm.SetEncryptor(enc)
	}
	return &AppendOnlyTableEngine{instance: instance, heap: hm}, nil
}

func (e *AppendOnlyTableEngine) BeginTransaction() uint64 { return 0 }
func (e *AppendOnlyTableEngine) Commit(uint64) error      { return nil }

func (e *AppendOnlyTableEngine) Insert(payload []byte, createLSN uint64) (RowHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	offset, err := e.heap.Write(payload, createLSN, -1)
	if err != nil {
		return 0, err
	}
	e.inserts.Add(1)
	engineOpsTotal.WithLabelValues(e.instance, "insert").Inc()
	return RowHandle(offset), nil
}

func (e *AppendOnlyTableEngine) Read(id RowHandle) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, hdr, err := e.heap.Read(int64(id))
	if err != nil {
		return nil, err
	}
	if !hdr.Valid {
		return nil, fmt.Errorf("appendonly: row at offset %d is deleted", int64(id))
	}
	return doc, nil
}

// Update marks the current version deleted and appends a new version
// chained to it via PrevOffset, returning the new offset as the row's
// handle from now on — the same forwarding-by-append shape the page-based
// engine expresses with slot directories instead of a flat log.
func (e *AppendOnlyTableEngine) Update(id RowHandle, payload []byte, deleteLSN, newCreateLSN uint64) (RowHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.heap.Delete(int64(id), deleteLSN); err != nil {
		return 0, err
	}
	newOffset, err := e.heap.Write(payload, newCreateLSN, int64(id))
	if err != nil {
		return 0, err
	}
	e.updates.Add(1)
	engineOpsTotal.WithLabelValues(e.instance, "update").Inc()
	return RowHandle(newOffset), nil
}

func (e *AppendOnlyTableEngine) Delete(id RowHandle, deleteLSN uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.heap.Delete(int64(id), deleteLSN); err != nil {
		return err
	}
	e.deletes.Add(1)
	engineOpsTotal.WithLabelValues(e.instance, "delete").Inc()
	return nil
}

func (e *AppendOnlyTableEngine) Scan(fn func(id RowHandle, payload []byte) error) error {
	e.mu.RLock()
	iter, err := e.heap.NewIterator()
	e.mu.RUnlock()
	if err != nil {
		return err
	}
	defer iter.Close()

	for {
		doc, hdr, offset, err := iter.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !hdr.Valid {
			continue
		}
		if err := fn(RowHandle(offset), doc); err != nil {
			return err
		}
	}
}

func (e *AppendOnlyTableEngine) GetMetrics() Metrics {
	return Metrics{
		Inserts:      e.inserts.Load(),
		Updates:      e.updates.Load(),
		Deletes:      e.deletes.Load(),
		Materialized: e.materialized.Load(),
		Compactions:  e.compactions.Load(),
	}
}

func (e *AppendOnlyTableEngine) Close() error {
	return e.heap.Close()
}
