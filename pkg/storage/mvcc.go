package storage

import (
	"fmt"
	"math"
	"sync"
)

// version is one entry in a key's MVCC chain, generalizing the teacher's
// heap RecordHeader{CreateLSN,DeleteLSN,PrevOffset} away from a byte offset
// and toward a generic in-memory value.
type version[V any] struct {
	value     V
	createLSN uint64
	deleteLSN uint64 // 0 means not deleted
	prev      *version[V]
}

// WriteConflict reports that key was committed by a concurrent transaction
// after this one's snapshot was taken; the second committer aborts.
type WriteConflict[K comparable] struct {
	Key K
}

func (e *WriteConflict[K]) Error() string {
	return fmt.Sprintf("mvcc: write conflict on key %v", e.Key)
}

type pendingWrite[V any] struct {
	value     V
	tombstone bool
}

// MvccManager is a type-parametric generalization of StorageEngine's
// Put/Get/Scan/Del plus TransactionRegistry, so the same version-chain and
// snapshot-isolation machinery applies to any table's primary-key type
// instead of only the teacher's string-keyed heap documents.
type MvccManager[K comparable, V any] struct {
	mu     sync.RWMutex
	lsn    *LSNTracker
	regMu  sync.Mutex
	active map[*MvccSnapshot[K, V]]uint64
	chains map[K]*version[V]
}

// NewMvccManager creates an empty manager with its own LSN sequence.
func NewMvccManager[K comparable, V any]() *MvccManager[K, V] {
	return &MvccManager[K, V]{
		lsn:    NewLSNTracker(0),
		active: make(map[*MvccSnapshot[K, V]]uint64),
		chains: make(map[K]*version[V]),
	}
}

func (m *MvccManager[K, V]) minActiveLSN() uint64 {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	min := uint64(math.MaxUint64)
	for _, lsn := range m.active {
		if lsn < min {
			min = lsn
		}
	}
	return min
}

// MvccSnapshot is a read/write transaction handle returned by Begin.
// Writes are buffered in a write set and only become visible to other
// snapshots on Commit.
type MvccSnapshot[K comparable, V any] struct {
	lsn      uint64
	mgr      *MvccManager[K, V]
	writeSet map[K]*pendingWrite[V]
	done     bool
}

// Begin opens a new snapshot at the manager's current LSN (Repeatable Read:
// it sees every key committed at or before this LSN, for its whole life).
func (m *MvccManager[K, V]) Begin() *MvccSnapshot[K, V] {
	snap := &MvccSnapshot[K, V]{
		lsn:      m.lsn.Current(),
		mgr:      m,
		writeSet: make(map[K]*pendingWrite[V]),
	}
	m.regMu.Lock()
	m.active[snap] = snap.lsn
	m.regMu.Unlock()
	return snap
}

func (s *MvccSnapshot[K, V]) isVisible(v *version[V]) bool {
	if v.createLSN > s.lsn {
		return false
	}
	if v.deleteLSN != 0 && v.deleteLSN <= s.lsn {
		return false
	}
	return true
}

// Get returns the value visible to this snapshot for key: its own
// uncommitted write if staged, otherwise the newest committed version its
// LSN can see.
func (s *MvccSnapshot[K, V]) Get(key K) (V, bool) {
	if pw, ok := s.writeSet[key]; ok {
		if pw.tombstone {
			var zero V
			return zero, false
		}
		return pw.value, true
	}

	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	for v := s.mgr.chains[key]; v != nil; v = v.prev {
		if s.isVisible(v) {
			return v.value, true
		}
	}
	var zero V
	return zero, false
}

// Insert stages an insert-or-update of key.
func (s *MvccSnapshot[K, V]) Insert(key K, value V) {
	s.writeSet[key] = &pendingWrite[V]{value: value}
}

// Delete stages a tombstone for key.
func (s *MvccSnapshot[K, V]) Delete(key K) {
	s.writeSet[key] = &pendingWrite[V]{tombstone: true}
}

// Scan calls fn for every key currently visible to this snapshot, staged
// writes included.
func (s *MvccSnapshot[K, V]) Scan(fn func(key K, value V) error) error {
	s.mgr.mu.RLock()
	for key, head := range s.mgr.chains {
		if _, staged := s.writeSet[key]; staged {
			continue // handled below, after the lock is released
		}
		for v := head; v != nil; v = v.prev {
			if s.isVisible(v) {
				if err := fn(key, v.value); err != nil {
					s.mgr.mu.RUnlock()
					return err
				}
				break
			}
		}
	}
	s.mgr.mu.RUnlock()

	for key, pw := range s.writeSet {
		if pw.tombstone {
			continue
		}
		if err := fn(key, pw.value); err != nil {
			return err
		}
	}
	return nil
}

// Commit applies the write set atomically. If any staged key's chain head
// was created by a transaction that committed after this snapshot's LSN,
// the whole commit aborts with a WriteConflict: the second committer loses.
func (s *MvccSnapshot[K, V]) Commit() error {
	if s.done {
		return fmt.Errorf("mvcc: snapshot already finished")
	}

	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()

	for key := range s.writeSet {
		if head := s.mgr.chains[key]; head != nil && head.createLSN > s.lsn {
			s.finishLocked()
			return &WriteConflict[K]{Key: key}
		}
	}

	commitLSN := s.mgr.lsn.Next()
	for key, pw := range s.writeSet {
		if pw.tombstone {
			if head := s.mgr.chains[key]; head != nil {
				head.deleteLSN = commitLSN
			}
			continue
		}
		s.mgr.chains[key] = &version[V]{
			value:     pw.value,
			createLSN: commitLSN,
			prev:      s.mgr.chains[key],
		}
	}

	s.finishLocked()
	return nil
}

// Rollback discards the write set without applying anything.
func (s *MvccSnapshot[K, V]) Rollback() {
	if s.done {
		return
	}
	s.writeSet = nil
	s.mgr.regMu.Lock()
	delete(s.mgr.active, s)
	s.mgr.regMu.Unlock()
	s.done = true
}

func (s *MvccSnapshot[K, V]) finishLocked() {
	s.mgr.regMu.Lock()
	delete(s.mgr.active, s)
	s.mgr.regMu.Unlock()
	s.done = true
}

// Vacuum drops chain entries no currently-or-future active snapshot could
// still need: a tombstoned head whose DeleteLSN predates every active
// snapshot's LSN, and any older chain entry superseded before that point.
// Mirrors TransactionRegistry.GetMinActiveLSN's safety rule.
func (m *MvccManager[K, V]) Vacuum() int {
	minLSN := m.minActiveLSN()

	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimed := 0
	for key, head := range m.chains {
		if head.deleteLSN != 0 && head.deleteLSN < minLSN {
			delete(m.chains, key)
			reclaimed++
			continue
		}
		for v := head; v != nil && v.prev != nil; v = v.prev {
			if v.createLSN < minLSN {
				reclaimed++
				v.prev = nil
				break
			}
		}
	}
	return reclaimed
}
