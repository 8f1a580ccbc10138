package index

import (
	"sync"

	"github.com/bobboyms/dbcore/pkg/types"
)

// RowRef is an opaque heap offset, matching the data pointers the B+Tree
// index stores for each key.
type RowRef = int64

// Stats summarizes a hash index's shape for the auto-indexing advisor and
// for PRAGMA introspection.
type Stats struct {
	UniqueKeys       int
	TotalEntries     int
	AvgEntriesPerKey float64
	MemoryBytes      int64
	Selectivity      float64
}

// HashIndex is a map-backed equality index allowing duplicate keys, grounded
// on the teacher's plain map+mutex idiom (TableMetaData's table map).
type HashIndex struct {
	mu      sync.RWMutex
	entries map[types.Comparable][]RowRef
}

// NewHashIndex creates an empty hash index.
func NewHashIndex() *HashIndex {
	return &HashIndex{entries: make(map[types.Comparable][]RowRef)}
}

// Add appends ref under key. A nil key is ignored: hash indexes do not
// track NULLs, matching the teacher's treatment of absent optional fields.
func (h *HashIndex) Add(key types.Comparable, ref RowRef) {
	if key == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[key] = append(h.entries[key], ref)
}

// Find returns every ref stored under key, in insertion order.
func (h *HashIndex) Find(key types.Comparable) []RowRef {
	if key == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	refs, ok := h.entries[key]
	if !ok {
		return nil
	}
	out := make([]RowRef, len(refs))
	copy(out, refs)
	return out
}

// Remove deletes one occurrence of ref under key, if present. If it was the
// last ref for that key, the key entry itself is dropped.
func (h *HashIndex) Remove(key types.Comparable, ref RowRef) {
	if key == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	refs, ok := h.entries[key]
	if !ok {
		return
	}
	for i, r := range refs {
		if r == ref {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(h.entries, key)
	} else {
		h.entries[key] = refs
	}
}

// Rebuild replaces the index contents wholesale from a fresh (key, ref) set,
// used after a table scan when the index needs to be reconstructed rather
// than incrementally maintained (e.g. after recovery).
func (h *HashIndex) Rebuild(pairs []struct {
	Key types.Comparable
	Ref RowRef
}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[types.Comparable][]RowRef, len(pairs))
	for _, p := range pairs {
		if p.Key == nil {
			continue
		}
		h.entries[p.Key] = append(h.entries[p.Key], p.Ref)
	}
}

// Stats computes the index's current shape.
func (h *HashIndex) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{UniqueKeys: len(h.entries)}
	for _, refs := range h.entries {
		s.TotalEntries += len(refs)
		s.MemoryBytes += int64(len(refs)) * 8 // one int64 RowRef per entry
	}
	if s.UniqueKeys > 0 {
		s.AvgEntriesPerKey = float64(s.TotalEntries) / float64(s.UniqueKeys)
		s.Selectivity = float64(s.UniqueKeys) / float64(s.TotalEntries)
	}
	return s
}
