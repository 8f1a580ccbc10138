package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	dbErrors "github.com/bobboyms/dbcore/pkg/errors"
	"github.com/bobboyms/dbcore/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// HybridRowID is a logical row identifier stable across the WAL-only phase
// of a row's life and its eventual materialization into page storage; it
// never changes, unlike the PageBasedEngine's own RowID which can move when
// a row is forwarded.
type HybridRowID uint64

// hybridRowEntry is the BSON payload written to the WAL for every insert or
// update, mirroring serializer.go's document-envelope idiom.
type hybridRowEntry struct {
	RowID     uint64 `bson:"row_id"`
	Payload   []byte `bson:"payload"`
	CreateLSN uint64 `bson:"create_lsn"`
}

type hybridDeleteEntry struct {
	RowID     uint64 `bson:"row_id"`
	DeleteLSN uint64 `bson:"delete_lsn"`
}

// hybridPending is a row that has been durably WAL-logged but not yet
// materialized into the page store.
type hybridPending struct {
	payload   []byte
	createLSN uint64
	deleteLSN uint64
	tombstone bool
}

// HybridEngine logs every mutation to the write-ahead log first, serving
// reads out of an in-memory overlay until a background goroutine folds
// pending rows into a PageBasedEngine and truncates the WAL behind them.
// This trades a larger resident working set for write latency dominated
// entirely by the WAL append rather than page I/O.
type HybridEngine struct {
	mu       sync.RWMutex
	instance string
	walPath  string
	wal      *wal.WALWriter
	base     *PageBasedEngine

	nextRowID uint64
	pending   map[HybridRowID]*hybridPending
	resolved  map[HybridRowID]RowID

	txRegistry *TransactionRegistry

	inserts      uint64
	updates      uint64
	deletes      uint64
	materialized uint64
	compactions  uint64

	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
}

// HybridOptions configures a HybridEngine's background materialization
// cadence. A zero value selects sane defaults.
type HybridOptions struct {
	FlushInterval time.Duration
}

// OpenHybridEngine opens (or creates) a hybrid engine rooted at dir: dir/hybrid.wal
// for durability and dir/hybrid.pages as the PageBasedEngine it materializes
// into. instance names this engine for its Prometheus metric labels.
func OpenHybridEngine(instance, dir string, key []byte, cacheCapacity int, nowUnix int64, opts HybridOptions) (*HybridEngine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &dbErrors.IoError{Path: dir, Err: err}
	}

	walPath := filepath.Join(dir, "hybrid.wal")
	walOpts := wal.DefaultOptions()
	walOpts.DirPath = dir
	w, err := wal.NewWALWriter(walPath, walOpts)
	if err != nil {
		return nil, &dbErrors.WalIoError{Path: walPath, Err: err}
	}

	base, err := OpenPageBasedEngine(filepath.Join(dir, "hybrid.pages"), key, cacheCapacity, nowUnix)
	if err != nil {
		w.Close()
		return nil, err
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}

	e := &HybridEngine{
		instance:      instance,
		walPath:       walPath,
		wal:           w,
		base:          base,
		pending:       make(map[HybridRowID]*hybridPending),
		resolved:      make(map[HybridRowID]RowID),
		txRegistry:    NewTransactionRegistry(),
		flushInterval: opts.FlushInterval,
		stopCh:        make(chan struct{}),
	}

	e.wg.Add(1)
	go e.materializeLoop()

	return e, nil
}

func (e *HybridEngine) logEntry(entryType uint8, payload []byte) error {
	entry := &wal.WALEntry{
		Header: wal.WALHeader{
			Magic:     wal.WALMagic,
			Version:   wal.WALVersion,
			EntryType: entryType,
		},
		Payload: payload,
	}
	entry.Header.PayloadLen = uint32(len(entry.Payload))
	entry.Header.CRC32 = wal.CalculateCRC32(entry.Payload)
	return e.wal.WriteEntry(entry)
}

// Insert durably logs payload to the WAL and makes it immediately visible
// via the in-memory overlay, returning the logical row id callers address
// it by from now on.
func (e *HybridEngine) Insert(payload []byte, createLSN uint64) (HybridRowID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := HybridRowID(atomic.AddUint64(&e.nextRowID, 1))
	enc, err := bson.Marshal(hybridRowEntry{RowID: uint64(id), Payload: payload, CreateLSN: createLSN})
	if err != nil {
		return 0, fmt.Errorf("hybrid: marshal insert: %w", err)
	}
	if err := e.logEntry(wal.EntryInsert, enc); err != nil {
		return 0, err
	}

	e.pending[id] = &hybridPending{payload: payload, createLSN: createLSN}
	e.inserts++
	engineOpsTotal.WithLabelValues(e.instance, "insert").Inc()
	hybridPendingRows.WithLabelValues(e.instance).Set(float64(len(e.pending)))
	return id, nil
}

// Read returns the current payload for id, whichever tier (overlay or page
// store) currently holds it.
func (e *HybridEngine) Read(id HybridRowID) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readLocked(id)
}

func (e *HybridEngine) readLocked(id HybridRowID) ([]byte, error) {
	if p, ok := e.pending[id]; ok {
		if p.tombstone {
			return nil, fmt.Errorf("hybrid: row %d is deleted", id)
		}
		return p.payload, nil
	}
	if rowID, ok := e.resolved[id]; ok {
		payload, _, err := e.base.Read(rowID)
		return payload, err
	}
	return nil, fmt.Errorf("hybrid: row %d not found", id)
}

// Update logs the new value to the WAL, then applies it wherever the row
// currently lives: the overlay if still pending, or directly to the page
// store if already materialized.
func (e *HybridEngine) Update(id HybridRowID, payload []byte, deleteLSN, newCreateLSN uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	enc, err := bson.Marshal(hybridRowEntry{RowID: uint64(id), Payload: payload, CreateLSN: newCreateLSN})
	if err != nil {
		return fmt.Errorf("hybrid: marshal update: %w", err)
	}
	if err := e.logEntry(wal.EntryUpdate, enc); err != nil {
		return err
	}

	if p, ok := e.pending[id]; ok {
		p.payload = payload
		p.createLSN = newCreateLSN
		e.updates++
		engineOpsTotal.WithLabelValues(e.instance, "update").Inc()
		return nil
	}
	if rowID, ok := e.resolved[id]; ok {
		newRowID, err := e.base.Update(rowID, payload, deleteLSN, newCreateLSN)
		if err != nil {
			return err
		}
		e.resolved[id] = newRowID
		e.updates++
		engineOpsTotal.WithLabelValues(e.instance, "update").Inc()
		return nil
	}
	return fmt.Errorf("hybrid: row %d not found", id)
}

// Delete logs a tombstone to the WAL and marks the row deleted in whichever
// tier currently holds it.
func (e *HybridEngine) Delete(id HybridRowID, deleteLSN uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	enc, err := bson.Marshal(hybridDeleteEntry{RowID: uint64(id), DeleteLSN: deleteLSN})
	if err != nil {
		return fmt.Errorf("hybrid: marshal delete: %w", err)
	}
	if err := e.logEntry(wal.EntryDelete, enc); err != nil {
		return err
	}

	if p, ok := e.pending[id]; ok {
		p.tombstone = true
		p.deleteLSN = deleteLSN
		e.deletes++
		engineOpsTotal.WithLabelValues(e.instance, "delete").Inc()
		return nil
	}
	if rowID, ok := e.resolved[id]; ok {
		if err := e.base.Delete(rowID, deleteLSN); err != nil {
			return err
		}
		e.deletes++
		engineOpsTotal.WithLabelValues(e.instance, "delete").Inc()
		return nil
	}
	return fmt.Errorf("hybrid: row %d not found", id)
}

// HybridScanFunc is called once per live row during Scan.
type HybridScanFunc func(id HybridRowID, payload []byte) error

// Scan visits every non-deleted row, overlay rows first, then materialized
// rows. A row id never appears twice since an id is removed from pending
// the moment it's materialized.
func (e *HybridEngine) Scan(fn HybridScanFunc) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, p := range e.pending {
		if p.tombstone {
			continue
		}
		if err := fn(id, p.payload); err != nil {
			return err
		}
	}

	var scanErr error
	inverse := make(map[RowID]HybridRowID, len(e.resolved))
	for id, rowID := range e.resolved {
		inverse[rowID] = id
	}
	err := e.base.Scan(func(rowID RowID, payload []byte, _ rowRecordHeader) error {
		id, ok := inverse[rowID]
		if !ok {
			return nil
		}
		return fn(id, payload)
	})
	if err != nil {
		scanErr = err
	}
	return scanErr
}

// GetMetrics returns a snapshot of this engine instance's activity
// counters; the same counts are exported via Prometheus vectors labeled by
// instance for external scraping.
func (e *HybridEngine) GetMetrics() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Metrics{
		Inserts:      e.inserts,
		Updates:      e.updates,
		Deletes:      e.deletes,
		Materialized: e.materialized,
		Compactions:  e.compactions,
		PendingRows:  len(e.pending),
	}
}

// materializeLoop periodically drains pending rows into the page store and
// compacts the WAL once nothing is left in the overlay and no registered
// transaction could still need to replay it.
func (e *HybridEngine) materializeLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.materializeOnce()
		case <-e.stopCh:
			return
		}
	}
}

// materializeOnce drains every currently pending row into the page store.
// Tombstoned rows that never left the overlay are simply dropped, since the
// page store never saw them. It then compacts the WAL if the overlay is
// now empty and no active transaction predates this round.
func (e *HybridEngine) materializeOnce() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, p := range e.pending {
		if p.tombstone {
			delete(e.pending, id)
			continue
		}
		rowID, err := e.base.Insert(p.payload, p.createLSN)
		if err != nil {
			// Leave it pending; retried on the next tick.
			continue
		}
		e.resolved[id] = rowID
		delete(e.pending, id)
		e.materialized++
		hybridMaterializedTotal.WithLabelValues(e.instance).Inc()
	}
	hybridPendingRows.WithLabelValues(e.instance).Set(float64(len(e.pending)))

	if len(e.pending) == 0 && e.txRegistry.GetMinActiveLSN() == ^uint64(0) {
		if err := e.compactWALLocked(); err == nil {
			e.compactions++
			hybridCompactionsTotal.WithLabelValues(e.instance).Inc()
		}
	}
}

// compactWALLocked truncates the WAL file to empty: safe only once every
// pending row has been folded into the durable page store, since the page
// store is now the sole source of truth for everything the WAL used to
// carry alone.
func (e *HybridEngine) compactWALLocked() error {
	if err := e.wal.Sync(); err != nil {
		return err
	}
	if err := e.wal.Close(); err != nil {
		return err
	}

	if err := e.archiveWALSegmentLocked(); err != nil {
		return err
	}

	if err := os.Truncate(e.walPath, 0); err != nil {
		return &dbErrors.IoError{Path: e.walPath, Err: err}
	}

	walOpts := wal.DefaultOptions()
	walOpts.DirPath = filepath.Dir(e.walPath)
	w, err := wal.NewWALWriter(e.walPath, walOpts)
	if err != nil {
		return &dbErrors.WalIoError{Path: e.walPath, Err: err}
	}
	e.wal = w
	return nil
}

// archiveWALSegmentLocked appends the WAL bytes about to be discarded by
// compaction to a zstd-compressed archival segment, so a forensic replay
// stays possible after the live WAL is truncated.
func (e *HybridEngine) archiveWALSegmentLocked() error {
	segment, err := os.ReadFile(e.walPath)
	if err != nil {
		return &dbErrors.IoError{Path: e.walPath, Err: err}
	}
	if len(segment) == 0 {
		return nil
	}

	archive, err := OpenVacuumArchive(e.walPath + "_archive.zst")
	if err != nil {
		return err
	}
	defer archive.Close()

	return archive.Append(segment)
}

// Flush forces one synchronous materialization pass, bypassing the
// background ticker; tests and an explicit checkpoint both want this.
func (e *HybridEngine) Flush() {
	e.materializeOnce()
}

// Close stops the background materializer, flushes everything pending one
// last time, and closes the WAL and the page store beneath it.
func (e *HybridEngine) Close() error {
	close(e.stopCh)
	e.wg.Wait()

	e.materializeOnce()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.wal.Close(); err != nil {
		return &dbErrors.WalIoError{Path: e.walPath, Err: err}
	}
	return e.base.Close()
}
