package storage

import (
	"context"
	"fmt"

	"github.com/bobboyms/dbcore/pkg/crypto"
	"github.com/bobboyms/dbcore/pkg/heap"
	"github.com/bobboyms/dbcore/pkg/wal"
)

// BulkImporter accumulates serialized rows for the duration of a bulk
// INSERT and flushes them as one AEAD blob at CompleteBulkImport, tied to a
// WAL group-commit boundary: the blob only reaches the heap once its WAL
// entry is durably committed, so a batch that fails mid-commit leaves
// nothing on disk to replay. This is the opt-in buffered path; ordinary
// inserts go through AppendOnlyTableEngine.Insert one row at a time.
type BulkImporter struct {
	enc  *crypto.BufferedEncryptor
	wal  *wal.WALWriter
	heap *heap.HeapManager
	lsn  func() uint64
}

// NewBulkImporter opens a buffered AEAD accumulator sized to bufferKiB
// backed by key, committing its group-commit boundary through walWriter and
// appending its final blob to heapMgr. lsn supplies the LSN stamped on both
// the WAL entry and the heap record.
func NewBulkImporter(key []byte, bufferKiB int, walWriter *wal.WALWriter, heapMgr *heap.HeapManager, lsn func() uint64) (*BulkImporter, error) {
	enc, err := crypto.NewBufferedEncryptor(key, bufferKiB)
	if err != nil {
		return nil, err
	}
	return &BulkImporter{enc: enc, wal: walWriter, heap: heapMgr, lsn: lsn}, nil
}

// Write appends one serialized row to the pending batch. Rows are not
// individually durable, visible, or even encrypted until CompleteBulkImport
// runs.
func (b *BulkImporter) Write(record []byte) error {
	_, err := b.enc.Write(record)
	return err
}

// Pending reports how many plaintext bytes are buffered and not yet
// flushed.
func (b *BulkImporter) Pending() int {
	return b.enc.Pending()
}

func (b *BulkImporter) bulkEntry(blob []byte, lsn uint64) *wal.WALEntry {
	entry := wal.AcquireEntry()
	entry.Header.Magic = wal.WALMagic
	entry.Header.Version = wal.WALVersion
	entry.Header.EntryType = wal.EntryBulkImport
	entry.Header.LSN = lsn
	entry.Header.PayloadLen = uint32(len(blob))
	entry.Header.CRC32 = wal.CalculateCRC32(blob)
	entry.Payload = append(entry.Payload, blob...)
	return entry
}

// CompleteBulkImport encrypts the accumulated batch as one AEAD blob,
// commits it to the WAL, and only then appends it to the heap. Flushing an
// empty batch is a no-op and returns offset 0.
func (b *BulkImporter) CompleteBulkImport() (int64, error) {
	blob, err := b.enc.Flush()
	if err != nil {
		return 0, err
	}
	if blob == nil {
		return 0, nil
	}

	lsn := b.lsn()
	entry := b.bulkEntry(blob, lsn)
	defer wal.ReleaseEntry(entry)

	if err := b.wal.WriteEntry(entry); err != nil {
		return 0, fmt.Errorf("bulk import: WAL commit failed, batch discarded: %w", err)
	}
	if err := b.wal.Sync(); err != nil {
		return 0, fmt.Errorf("bulk import: WAL group-commit boundary failed, batch discarded: %w", err)
	}

	return b.heap.Write(blob, lsn, -1)
}

// CompleteBulkImportAsync is CompleteBulkImport with the WAL commit boundary
// run through CommitAsync instead of blocking on the writer's configured
// SyncPolicy: it returns immediately after the batch is encrypted; a
// background goroutine then hands the entry to the WAL through CommitAsync
// and performs the heap write once the commit boundary (ctx permitting)
// lands.
func (b *BulkImporter) CompleteBulkImportAsync(ctx context.Context) (<-chan int64, <-chan error) {
	offsets := make(chan int64, 1)
	errs := make(chan error, 1)

	blob, err := b.enc.Flush()
	if err != nil {
		errs <- err
		return offsets, errs
	}
	if blob == nil {
		offsets <- 0
		return offsets, errs
	}

	lsn := b.lsn()
	entry := b.bulkEntry(blob, lsn)

	go func() {
		defer wal.ReleaseEntry(entry)
		if err := <-b.wal.CommitAsync(ctx, entry); err != nil {
			errs <- fmt.Errorf("bulk import: WAL commit failed, batch discarded: %w", err)
			return
		}
		offset, err := b.heap.Write(blob, lsn, -1)
		if err != nil {
			errs <- err
			return
		}
		offsets <- offset
	}()
	return offsets, errs
}
