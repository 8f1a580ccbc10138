package page

import (
	"sync"
)

// PageManager layers allocation (an intrusive LIFO free list) and a bounded
// page cache on top of PageIO. Header writes are batched: after
// HeaderFlushInterval allocations or frees the header page is persisted,
// rather than on every single mutation.
type PageManager struct {
	mu                  sync.Mutex
	io                  *PageIO
	header              *HeaderPage
	headerFlushInterval int
	dirtyHeaderOps      int
	cache               *PageCache
}

// DefaultHeaderFlushInterval batches this many allocations/frees before the
// header page is written back to disk.
const DefaultHeaderFlushInterval = 32

// OpenPageManager opens path (creating it if absent) and returns a manager
// ready for allocation. cacheCapacity is the PageCache's page limit.
func OpenPageManager(path string, key []byte, cacheCapacity int, nowUnix int64) (*PageManager, error) {
	io, err := NewPageIO(path, key)
	if err != nil {
		return nil, err
	}

	count, err := io.PageCount()
	if err != nil {
		io.Close()
		return nil, err
	}

	var header *HeaderPage
	if count == 0 {
		header = NewHeaderPage(nowUnix)
		if err := io.WritePage(HeaderPageID, header.Marshal()); err != nil {
			io.Close()
			return nil, err
		}
		if err := io.Sync(); err != nil {
			io.Close()
			return nil, err
		}
	} else {
		buf, err := io.ReadPage(HeaderPageID)
		if err != nil {
			io.Close()
			return nil, err
		}
		header, err = UnmarshalHeaderPage(buf)
		if err != nil {
			io.Close()
			return nil, err
		}
	}

	return &PageManager{
		io:                  io,
		header:              header,
		headerFlushInterval: DefaultHeaderFlushInterval,
		cache:               NewPageCache(io, cacheCapacity),
	}, nil
}

// RootCatalogPtr returns the page ID of the catalog root, or InvalidPageID
// if none has been set yet.
func (m *PageManager) RootCatalogPtr() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header.RootCatalogPtr
}

// SetRootCatalogPtr records the catalog root page and flushes the header
// immediately, bypassing the batching interval: the catalog root changes
// rarely and must never be lost.
func (m *PageManager) SetRootCatalogPtr(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header.RootCatalogPtr = id
	return m.flushHeaderLocked()
}

// Allocate returns a free page ID, reusing one from the free list (LIFO) if
// available, otherwise extending the file by one page. The returned page
// is zeroed on disk.
func (m *PageManager) Allocate() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.header.FreeListHead != InvalidPageID {
		id := m.header.FreeListHead
		buf, err := m.cache.Read(id)
		if err != nil {
			return 0, err
		}
		m.header.FreeListHead = freeListNext(buf)
		if err := m.countOpAndMaybeFlushLocked(); err != nil {
			return 0, err
		}
		zero := make([]byte, Size)
		if err := m.cacheWriteLocked(id, zero); err != nil {
			return 0, err
		}
		return id, nil
	}

	count, err := m.io.PageCount()
	if err != nil {
		return 0, err
	}
	id := count
	if err := m.io.Truncate(count + 1); err != nil {
		return 0, err
	}
	zero := make([]byte, Size)
	if err := m.cacheWriteLocked(id, zero); err != nil {
		return 0, err
	}
	return id, nil
}

// Free pushes id onto the head of the free list for LIFO reuse.
func (m *PageManager) Free(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, Size)
	putFreeListNext(buf, m.header.FreeListHead)
	if err := m.cacheWriteLocked(id, buf); err != nil {
		return err
	}
	m.header.FreeListHead = id
	return m.countOpAndMaybeFlushLocked()
}

func (m *PageManager) countOpAndMaybeFlushLocked() error {
	m.dirtyHeaderOps++
	if m.dirtyHeaderOps >= m.headerFlushInterval {
		return m.flushHeaderLocked()
	}
	return nil
}

func (m *PageManager) flushHeaderLocked() error {
	if err := m.io.WritePage(HeaderPageID, m.header.Marshal()); err != nil {
		return err
	}
	m.dirtyHeaderOps = 0
	return nil
}

// FlushHeader forces the header page to disk regardless of the batching
// interval, used before checkpoint/close.
func (m *PageManager) FlushHeader() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushHeaderLocked()
}

func (m *PageManager) cacheWriteLocked(id int64, buf []byte) error {
	return m.cache.Write(id, buf)
}

// ReadPage returns page id's contents, routed through the page cache.
func (m *PageManager) ReadPage(id int64) ([]byte, error) {
	return m.cache.Read(id)
}

// WritePage writes id's contents, routed through the page cache.
func (m *PageManager) WritePage(id int64, buf []byte) error {
	return m.cache.Write(id, buf)
}

// Close flushes the header, flushes the cache, and closes the underlying
// file.
func (m *PageManager) Close() error {
	m.mu.Lock()
	if err := m.flushHeaderLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if err := m.cache.FlushDirty(); err != nil {
		return err
	}
	if err := m.io.Sync(); err != nil {
		return err
	}
	return m.io.Close()
}
