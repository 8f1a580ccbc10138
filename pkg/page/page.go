// Package page implements fixed-size page I/O: an encrypted-or-plaintext
// page envelope, a header page carrying allocation state, and a page
// manager/cache layered on top of a single data file.
package page

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed page size in bytes, matching the on-disk layout this
// package reads and writes. All pages, including HeaderPage, are this size.
const Size = 8192

// HeaderPageID is the reserved page number carrying file-level metadata.
const HeaderPageID int64 = 0

const (
	headerMagic         uint32 = 0x44424350 // "DBCP"
	headerFormatVersion uint16 = 1
)

// headerLayout is the byte layout of HeaderPage within its plaintext page
// buffer, following the teacher's heap-file header convention (magic first,
// then version, then mutable allocation state):
//
//	Magic(4) Version(2) PageSize(4) FreeListHead(8) RootCatalogPtr(8) CreatedAtUnix(8)
const (
	offMagic          = 0
	offVersion        = 4
	offPageSize       = 6
	offFreeListHead   = 10
	offRootCatalogPtr = 18
	offCreatedAt      = 26
	headerPayloadSize = 34
)

// InvalidPageID marks the end of the free list or an unset pointer.
const InvalidPageID int64 = -1

// HeaderPage is the in-memory view of page 0.
type HeaderPage struct {
	Magic          uint32
	FormatVersion  uint16
	PageSize       uint32
	FreeListHead   int64
	RootCatalogPtr int64
	CreatedAtUnix  int64
}

// NewHeaderPage builds a fresh header for a newly created data file.
func NewHeaderPage(createdAtUnix int64) *HeaderPage {
	return &HeaderPage{
		Magic:          headerMagic,
		FormatVersion:  headerFormatVersion,
		PageSize:       Size,
		FreeListHead:   InvalidPageID,
		RootCatalogPtr: InvalidPageID,
		CreatedAtUnix:  createdAtUnix,
	}
}

// Marshal writes the header into a zero-filled, Size-length page buffer.
func (h *HeaderPage) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint16(buf[offVersion:], h.FormatVersion)
	binary.LittleEndian.PutUint32(buf[offPageSize:], h.PageSize)
	binary.LittleEndian.PutUint64(buf[offFreeListHead:], uint64(h.FreeListHead))
	binary.LittleEndian.PutUint64(buf[offRootCatalogPtr:], uint64(h.RootCatalogPtr))
	binary.LittleEndian.PutUint64(buf[offCreatedAt:], uint64(h.CreatedAtUnix))
	return buf
}

// UnmarshalHeaderPage parses a page-0 plaintext buffer.
func UnmarshalHeaderPage(buf []byte) (*HeaderPage, error) {
	if len(buf) < headerPayloadSize {
		return nil, fmt.Errorf("page: header page truncated: got %d bytes", len(buf))
	}
	h := &HeaderPage{
		Magic:          binary.LittleEndian.Uint32(buf[offMagic:]),
		FormatVersion:  binary.LittleEndian.Uint16(buf[offVersion:]),
		PageSize:       binary.LittleEndian.Uint32(buf[offPageSize:]),
		FreeListHead:   int64(binary.LittleEndian.Uint64(buf[offFreeListHead:])),
		RootCatalogPtr: int64(binary.LittleEndian.Uint64(buf[offRootCatalogPtr:])),
		CreatedAtUnix:  int64(binary.LittleEndian.Uint64(buf[offCreatedAt:])),
	}
	if h.Magic != headerMagic {
		return nil, fmt.Errorf("page: invalid header magic %#x", h.Magic)
	}
	return h, nil
}

// freeListNext is the layout of a free page reused as a free-list node: the
// first 8 bytes of its plaintext payload hold the next free page ID.
func freeListNext(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf[:8]))
}

func putFreeListNext(buf []byte, next int64) {
	binary.LittleEndian.PutUint64(buf[:8], uint64(next))
}
