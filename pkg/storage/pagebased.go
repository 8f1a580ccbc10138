package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bobboyms/dbcore/pkg/page"
)

// RowID addresses one row's current slot directory entry: the page holding
// it and the slot index within that page's directory.
type RowID struct {
	PageID int64
	Slot   uint16
}

// slot directory layout, grounded on sausheong-mindb's TupleID/HeapFile
// shape (a tuple is addressed by page+slot; update that can't fit in place
// re-inserts and leaves a forwarding pointer behind; delete tombstones the
// slot rather than reclaiming it immediately):
//
//	header: SlotCount(2) FreeStart(2) FreeEnd(2)          -- 6 bytes
//	slot[i] (16 bytes, at offset 6+i*16):
//	  Offset(2) Length(2) Flags(1) Reserved(1) ForwardPageID(8) ForwardSlot(2)
//	data region grows backward from page.Size
const (
	pbHeaderSize = 6
	pbSlotSize   = 16

	slotFlagTombstone uint8 = 1 << 0
	slotFlagForwarded uint8 = 1 << 1
)

// rowRecordHeader is the MVCC envelope written ahead of each row's payload,
// generalizing the teacher's heap RecordHeader (CreateLSN/DeleteLSN/
// PrevOffset) to a page+slot-addressed previous version.
//
//	CreateLSN(8) DeleteLSN(8) PrevPageID(8) PrevSlot(2) -- 26 bytes
const rowRecordHeaderSize = 26

type rowRecordHeader struct {
	CreateLSN  uint64
	DeleteLSN  uint64
	PrevPageID int64
	PrevSlot   uint16
}

func (h rowRecordHeader) marshal() []byte {
	buf := make([]byte, rowRecordHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.CreateLSN)
	binary.LittleEndian.PutUint64(buf[8:16], h.DeleteLSN)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.PrevPageID))
	binary.LittleEndian.PutUint16(buf[24:26], h.PrevSlot)
	return buf
}

func unmarshalRowRecordHeader(buf []byte) rowRecordHeader {
	return rowRecordHeader{
		CreateLSN:  binary.LittleEndian.Uint64(buf[0:8]),
		DeleteLSN:  binary.LittleEndian.Uint64(buf[8:16]),
		PrevPageID: int64(binary.LittleEndian.Uint64(buf[16:24])),
		PrevSlot:   binary.LittleEndian.Uint16(buf[24:26]),
	}
}

// PageBasedEngine stores rows in slotted pages managed by pkg/page,
// supporting in-place update when the new value fits the existing slot and
// forwarding-slot update (delete + re-insert + forward pointer) otherwise.
type PageBasedEngine struct {
	mu  sync.RWMutex
	mgr *page.PageManager
}

// OpenPageBasedEngine opens (or creates) path as a page-based table file.
func OpenPageBasedEngine(path string, key []byte, cacheCapacity int, nowUnix int64) (*PageBasedEngine, error) {
	mgr, err := page.OpenPageManager(path, key, cacheCapacity, nowUnix)
	if err != nil {
		return nil, err
	}
	return &PageBasedEngine{mgr: mgr}, nil
}

func newSlottedPage() []byte {
	buf := make([]byte, page.Size)
	binary.LittleEndian.PutUint16(buf[0:2], 0)                // SlotCount
	binary.LittleEndian.PutUint16(buf[2:4], pbHeaderSize)      // FreeStart
	binary.LittleEndian.PutUint16(buf[4:6], uint16(page.Size)) // FreeEnd
	return buf
}

func pageSlotCount(buf []byte) uint16  { return binary.LittleEndian.Uint16(buf[0:2]) }
func pageFreeStart(buf []byte) uint16  { return binary.LittleEndian.Uint16(buf[2:4]) }
func pageFreeEnd(buf []byte) uint16    { return binary.LittleEndian.Uint16(buf[4:6]) }
func setSlotCount(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf[0:2], v) }
func setFreeStart(buf []byte, v uint16) { binary.LittleEndian.PutUint16(buf[2:4], v) }
func setFreeEnd(buf []byte, v uint16)   { binary.LittleEndian.PutUint16(buf[4:6], v) }

func slotOffset(idx uint16) int { return pbHeaderSize + int(idx)*pbSlotSize }

type slotEntry struct {
	Offset        uint16
	Length        uint16
	Flags         uint8
	ForwardPageID int64
	ForwardSlot   uint16
}

func readSlot(buf []byte, idx uint16) slotEntry {
	o := slotOffset(idx)
	return slotEntry{
		Offset:        binary.LittleEndian.Uint16(buf[o : o+2]),
		Length:        binary.LittleEndian.Uint16(buf[o+2 : o+4]),
		Flags:         buf[o+4],
		ForwardPageID: int64(binary.LittleEndian.Uint64(buf[o+6 : o+14])),
		ForwardSlot:   binary.LittleEndian.Uint16(buf[o+14 : o+16]),
	}
}

func writeSlot(buf []byte, idx uint16, s slotEntry) {
	o := slotOffset(idx)
	binary.LittleEndian.PutUint16(buf[o:o+2], s.Offset)
	binary.LittleEndian.PutUint16(buf[o+2:o+4], s.Length)
	buf[o+4] = s.Flags
	buf[o+5] = 0
	binary.LittleEndian.PutUint64(buf[o+6:o+14], uint64(s.ForwardPageID))
	binary.LittleEndian.PutUint16(buf[o+14:o+16], s.ForwardSlot)
}

// freeBytes returns the contiguous gap between the slot directory and the
// data region.
func freeBytes(buf []byte) int {
	return int(pageFreeEnd(buf)) - int(pageFreeStart(buf))
}

// appendToPage writes data into buf's free gap, adding one slot entry, and
// returns the new slot index. Caller must have checked freeBytes first.
func appendToPage(buf []byte, data []byte) uint16 {
	newOffset := int(pageFreeEnd(buf)) - len(data)
	copy(buf[newOffset:newOffset+len(data)], data)
	setFreeEnd(buf, uint16(newOffset))

	idx := pageSlotCount(buf)
	writeSlot(buf, idx, slotEntry{Offset: uint16(newOffset), Length: uint16(len(data))})
	setSlotCount(buf, idx+1)
	setFreeStart(buf, uint16(slotOffset(idx+1)))
	return idx
}

// Insert writes a new row's payload with createLSN and returns its RowID.
func (e *PageBasedEngine) Insert(payload []byte, createLSN uint64) (RowID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := rowRecordHeader{CreateLSN: createLSN, PrevPageID: page.InvalidPageID}.marshal()
	full := append(rec, payload...)
	need := len(full) + pbSlotSize

	pageID, buf, err := e.findOrAllocatePageLocked(need)
	if err != nil {
		return RowID{}, err
	}

	idx := appendToPage(buf, full)
	if err := e.mgr.WritePage(pageID, buf); err != nil {
		return RowID{}, err
	}
	return RowID{PageID: pageID, Slot: idx}, nil
}

// findOrAllocatePageLocked scans pages from page 1 upward (page 0 is the
// header) looking for room; allocates a fresh page if none has it.
func (e *PageBasedEngine) findOrAllocatePageLocked(need int) (int64, []byte, error) {
	count, err := e.mgr.PageCount()
	if err != nil {
		return 0, nil, err
	}
	for id := int64(1); id < count; id++ {
		buf, err := e.mgr.ReadPage(id)
		if err != nil {
			return 0, nil, err
		}
		if freeBytes(buf) >= need {
			return id, buf, nil
		}
	}
	id, err := e.mgr.Allocate()
	if err != nil {
		return 0, nil, err
	}
	return id, newSlottedPage(), nil
}

// Read returns the visible payload at id, following its forwarding chain
// for at most 16 hops so that a pathological chain cannot loop forever.
func (e *PageBasedEngine) Read(id RowID) ([]byte, rowRecordHeader, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readLocked(id, 0)
}

func (e *PageBasedEngine) readLocked(id RowID, hops int) ([]byte, rowRecordHeader, error) {
	if hops > 16 {
		return nil, rowRecordHeader{}, fmt.Errorf("pagebased: forwarding chain too long at %+v", id)
	}
	buf, err := e.mgr.ReadPage(id.PageID)
	if err != nil {
		return nil, rowRecordHeader{}, err
	}
	if id.Slot >= pageSlotCount(buf) {
		return nil, rowRecordHeader{}, fmt.Errorf("pagebased: row %+v out of range", id)
	}
	slot := readSlot(buf, id.Slot)
	if slot.Flags&slotFlagForwarded != 0 {
		return e.readLocked(RowID{PageID: slot.ForwardPageID, Slot: slot.ForwardSlot}, hops+1)
	}
	if slot.Flags&slotFlagTombstone != 0 {
		return nil, rowRecordHeader{}, fmt.Errorf("pagebased: row at %+v is deleted", id)
	}

	data := buf[slot.Offset : slot.Offset+slot.Length]
	hdr := unmarshalRowRecordHeader(data[:rowRecordHeaderSize])
	payload := append([]byte(nil), data[rowRecordHeaderSize:]...)
	return payload, hdr, nil
}

// Update overwrites the row at id. If the new payload (plus its MVCC
// header) fits in the existing slot's reserved length it is written in
// place; otherwise the new version is appended elsewhere and the original
// slot is turned into a forwarding pointer, per the slot directory's
// forwarding-slot contract.
func (e *PageBasedEngine) Update(id RowID, payload []byte, deleteLSN, newCreateLSN uint64) (RowID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for hops := 0; ; hops++ {
		if hops > 16 {
			return RowID{}, fmt.Errorf("pagebased: forwarding chain too long at %+v", id)
		}

		buf, err := e.mgr.ReadPage(id.PageID)
		if err != nil {
			return RowID{}, err
		}
		if id.Slot >= pageSlotCount(buf) {
			return RowID{}, fmt.Errorf("pagebased: row %+v out of range", id)
		}
		slot := readSlot(buf, id.Slot)
		if slot.Flags&slotFlagForwarded != 0 {
			id = RowID{PageID: slot.ForwardPageID, Slot: slot.ForwardSlot}
			continue
		}

		newHdr := rowRecordHeader{CreateLSN: newCreateLSN, PrevPageID: id.PageID, PrevSlot: id.Slot}
		full := append(newHdr.marshal(), payload...)

		if len(full) <= int(slot.Length) {
			copy(buf[slot.Offset:slot.Offset+uint16(len(full))], full)
			slot.Length = uint16(len(full))
			writeSlot(buf, id.Slot, slot)
			if err := e.mgr.WritePage(id.PageID, buf); err != nil {
				return RowID{}, err
			}
			return id, nil
		}

		// Doesn't fit: insert the new version elsewhere and leave a
		// forwarding pointer behind in the original slot.
		newPageID, newBuf, err := e.findOrAllocatePageLocked(len(full) + pbSlotSize)
		if err != nil {
			return RowID{}, err
		}
		if newPageID == id.PageID {
			// Same page: append into buf so the forwarding write below
			// keeps the new slot instead of overwriting it with a stale copy.
			newBuf = buf
		}
		newIdx := appendToPage(newBuf, full)
		if err := e.mgr.WritePage(newPageID, newBuf); err != nil {
			return RowID{}, err
		}

		slot.Flags |= slotFlagForwarded
		slot.ForwardPageID = newPageID
		slot.ForwardSlot = newIdx
		writeSlot(buf, id.Slot, slot)
		if err := e.mgr.WritePage(id.PageID, buf); err != nil {
			return RowID{}, err
		}

		return RowID{PageID: newPageID, Slot: newIdx}, nil
	}
}

// Delete tombstones the row at id; its slot entry and data remain until the
// next Vacuum of that page.
func (e *PageBasedEngine) Delete(id RowID, deleteLSN uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for hops := 0; ; hops++ {
		if hops > 16 {
			return fmt.Errorf("pagebased: forwarding chain too long at %+v", id)
		}

		buf, err := e.mgr.ReadPage(id.PageID)
		if err != nil {
			return err
		}
		if id.Slot >= pageSlotCount(buf) {
			return fmt.Errorf("pagebased: row %+v out of range", id)
		}
		slot := readSlot(buf, id.Slot)
		if slot.Flags&slotFlagForwarded != 0 {
			id = RowID{PageID: slot.ForwardPageID, Slot: slot.ForwardSlot}
			continue
		}

		data := buf[slot.Offset : slot.Offset+slot.Length]
		hdr := unmarshalRowRecordHeader(data[:rowRecordHeaderSize])
		hdr.DeleteLSN = deleteLSN
		copy(data[:rowRecordHeaderSize], hdr.marshal())

		slot.Flags |= slotFlagTombstone
		writeSlot(buf, id.Slot, slot)
		return e.mgr.WritePage(id.PageID, buf)
	}
}

// ScanFunc is called once per live row encountered by Scan.
type ScanFunc func(id RowID, payload []byte, hdr rowRecordHeader) error

// Scan walks every allocated page in order, yielding live (non-tombstoned,
// non-forwarding) rows. Forwarding slots are skipped; the forwarded target
// is visited directly when Scan reaches its own page.
func (e *PageBasedEngine) Scan(fn ScanFunc) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count, err := e.mgr.PageCount()
	if err != nil {
		return err
	}
	for id := int64(1); id < count; id++ {
		buf, err := e.mgr.ReadPage(id)
		if err != nil {
			return err
		}
		n := pageSlotCount(buf)
		for i := uint16(0); i < n; i++ {
			slot := readSlot(buf, i)
			if slot.Flags&slotFlagForwarded != 0 || slot.Flags&slotFlagTombstone != 0 {
				continue
			}
			data := buf[slot.Offset : slot.Offset+slot.Length]
			hdr := unmarshalRowRecordHeader(data[:rowRecordHeaderSize])
			payload := append([]byte(nil), data[rowRecordHeaderSize:]...)
			if err := fn(RowID{PageID: id, Slot: i}, payload, hdr); err != nil {
				return err
			}
		}
	}
	return nil
}

// VacuumPage compacts one page in place: tombstoned slots are zeroed out
// except for their tombstone flag, keeping their slot index (so any
// outstanding RowID pointing at them resolves to "deleted" rather than a
// stale, reused index); forwarding slots are kept unchanged with their
// forward pointer; live row data is repacked against the end of the page
// to reclaim fragmentation.
func (e *PageBasedEngine) VacuumPage(pageID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf, err := e.mgr.ReadPage(pageID)
	if err != nil {
		return err
	}

	n := pageSlotCount(buf)
	compacted := newSlottedPage()
	setSlotCount(compacted, n)
	setFreeStart(compacted, uint16(slotOffset(n)))

	freeEnd := uint16(page.Size)
	for i := uint16(0); i < n; i++ {
		slot := readSlot(buf, i)
		if slot.Flags&slotFlagTombstone != 0 {
			writeSlot(compacted, i, slotEntry{Flags: slotFlagTombstone})
			continue
		}
		if slot.Flags&slotFlagForwarded != 0 {
			writeSlot(compacted, i, slot)
			continue
		}
		data := buf[slot.Offset : slot.Offset+slot.Length]
		newOffset := freeEnd - slot.Length
		copy(compacted[newOffset:newOffset+slot.Length], data)
		writeSlot(compacted, i, slotEntry{Offset: newOffset, Length: slot.Length})
		freeEnd = newOffset
	}
	setFreeEnd(compacted, freeEnd)

	return e.mgr.WritePage(pageID, compacted)
}

// Close flushes and closes the underlying page manager.
func (e *PageBasedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mgr.Close()
}
