package wal

import "sync"

// pool.go keeps WAL append hot paths out of the GC's way by reusing entries
// and buffers across calls instead of allocating fresh ones each time.

var (
	// entryPool reuses WALEntry structs.
	entryPool = sync.Pool{
		New: func() interface{} {
			return &WALEntry{
				Payload: make([]byte, 0, 4096), // pre-allocate 4KB
			}
		},
	}

	// bufferPool reuses byte buffers used for header/entry serialization.
	bufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 8192) // 8KB buffer
			return &buf
		},
	}
)

// AcquireEntry takes an entry from the pool.
func AcquireEntry() *WALEntry {
	return entryPool.Get().(*WALEntry)
}

// ReleaseEntry returns e to the pool.
func ReleaseEntry(e *WALEntry) {
	e.Header = WALHeader{}    // zero the header
	e.Payload = e.Payload[:0] // reset payload slice, keep its capacity
	entryPool.Put(e)
}

// AcquireBuffer takes a byte buffer from the pool.
func AcquireBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// ReleaseBuffer returns buf to the pool.
func ReleaseBuffer(buf *[]byte) {
	*buf = (*buf)[:0]
	bufferPool.Put(buf)
}
