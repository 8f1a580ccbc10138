package storage

// RowHandle is an opaque, engine-specific row locator. Callers never
// construct one themselves; they hold onto whatever Insert or Update
// returned and pass it back to Read/Update/Delete against the same engine
// instance it came from.
type RowHandle int64

// Engine is the capability set every storage engine exposes to the query
// layer, regardless of how it actually lays rows out on disk. A table picks
// one engine at creation time (recorded in the catalog as an EngineTag) and
// never switches, so dispatch is a single tag check, not a class hierarchy.
type Engine interface {
	BeginTransaction() uint64
	Insert(payload []byte, createLSN uint64) (RowHandle, error)
	Update(id RowHandle, payload []byte, deleteLSN, newCreateLSN uint64) (RowHandle, error)
	Delete(id RowHandle, deleteLSN uint64) error
	Read(id RowHandle) ([]byte, error)
	Scan(fn func(id RowHandle, payload []byte) error) error
	Commit(txToken uint64) error
	GetMetrics() Metrics
	Close() error
}

// packRowID folds a page-based RowID into the flat RowHandle every engine
// speaks over the Engine interface.
func packRowID(id RowID) RowHandle {
	return RowHandle(id.PageID<<16 | int64(id.Slot))
}

func unpackRowID(h RowHandle) RowID {
	return RowID{PageID: int64(h) >> 16, Slot: uint16(int64(h) & 0xffff)}
}

var (
	_ Engine = (*AppendOnlyTableEngine)(nil)
	_ Engine = (*PageEngineAdapter)(nil)
	_ Engine = (*HybridEngineAdapter)(nil)
)
