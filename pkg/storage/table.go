package storage

import (
	"sync"

	"github.com/bobboyms/dbcore/pkg/btree"
	"github.com/bobboyms/dbcore/pkg/errors"
	"github.com/bobboyms/dbcore/pkg/heap"
)

type DataType int

const (
	TypeInt     DataType = iota // 0: Inteiro (int64)
	TypeVarchar                 // 1: String variável
	TypeBoolean                 // 2: Bool
	TypeFloat                   // 3: Float64
	TypeDate                    // 4: Timestamp
	TypeDecimal                 // 5: Fixed-point decimal
	TypeBlob                    // 6: Raw bytes
	TypeULID                    // 7: Sortable ULID string
	TypeGUID                    // 8: RFC 4122 UUID
)

func (d DataType) String() string {
	return [...]string{"INT", "VARCHAR", "BOOL", "FLOAT", "DATE", "DECIMAL", "BLOB", "ULID", "GUID"}[d]
}

// EngineTag selects which storage engine backs a table, set at CREATE TABLE
// time and immutable afterward (§4.5/§4.12: engines are not interchangeable
// mid-table).
type EngineTag int

const (
	EngineAppendOnly EngineTag = iota
	EnginePageBased
	EngineHybrid
	EngineColumnar
)

func (t EngineTag) String() string {
	return [...]string{"APPEND_ONLY", "PAGE_BASED", "HYBRID", "COLUMNAR"}[t]
}

// EncryptionMode pins a table's at-rest encryption path, recorded in the
// catalog at creation time and refused to change later.
type EncryptionMode int

const (
	NoEncryptMode EncryptionMode = iota
	AeadEncryptMode
)

func (m EncryptionMode) String() string {
	if m == AeadEncryptMode {
		return "AEAD"
	}
	return "NONE"
}

type Index struct {
	Name    string
	Primary bool
	Type    DataType
	Tree    *btree.BPlusTree
}

// Table is a single named relation: its row storage (Heap), its secondary
// indexes, and the engine/encryption policy chosen at creation time.
// Indices are protected by mu rather than by the storage-wide metaMu, so
// concurrent readers on different tables never contend.
type Table struct {
	Name      string
	Heap      *heap.HeapManager
	Indices   map[string]*Index
	Engine    EngineTag
	Encrypted EncryptionMode
	mu        sync.RWMutex
}

func (t *Table) Lock()    { t.mu.Lock() }
func (t *Table) Unlock()  { t.mu.Unlock() }
func (t *Table) RLock()   { t.mu.RLock() }
func (t *Table) RUnlock() { t.mu.RUnlock() }

// GetIndex looks up an index by name, taking the table's read lock.
func (t *Table) GetIndex(name string) (*Index, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.Indices[name]
	if !ok {
		return nil, &errors.IndexNotFoundError{Name: name}
	}
	return idx, nil
}

// GetIndices returns a snapshot slice of all indexes, taking the read lock.
func (t *Table) GetIndices() []*Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.GetIndicesUnsafe()
}

// GetIndicesUnsafe returns all indexes without locking; callers must already
// hold t's lock (read or write).
func (t *Table) GetIndicesUnsafe() []*Index {
	out := make([]*Index, 0, len(t.Indices))
	for _, idx := range t.Indices {
		out = append(out, idx)
	}
	return out
}

// TableMetaData is the in-memory table directory: name -> *Table. It is the
// seed this module's catalog package persists and wraps with WAL-protected
// DDL; kept here as the storage-level map the engine operates on directly.
type TableMetaData struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewTableMenager() *TableMetaData {
	return &TableMetaData{
		tables: make(map[string]*Table),
	}
}

// NewTable registers a table with the given indexes, B+Tree branching
// factor t, storage engine and encryption mode. heapPath is the base path
// passed to heap.NewHeapManager for AppendOnlyEngine/HybridEngine tables;
// PageBasedEngine tables open their page file lazily via pkg/page instead.
func (tb *TableMetaData) NewTable(tableName string, indices []Index, t int, engine EngineTag, enc EncryptionMode, heapPath string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if _, exists := tb.tables[tableName]; exists {
		return &errors.TableAlreadyExistsError{Name: tableName}
	}

	tempIndices := make(map[string]*Index, len(indices))
	primaryCount := 0
	for _, value := range indices {
		var tree *btree.BPlusTree
		if value.Primary {
			tree = btree.NewUniqueTree(t)
			primaryCount++
		} else {
			tree = btree.NewTree(t)
		}

		tempIndices[value.Name] = &Index{
			Name:    value.Name,
			Primary: value.Primary,
			Type:    value.Type,
			Tree:    tree,
		}
	}

	if primaryCount == 0 {
		return &errors.PrimarykeyNotDefinedError{TableName: tableName}
	}
	if primaryCount > 1 {
		return &errors.TwoPrimarykeysError{Total: primaryCount}
	}

	var hm *heap.HeapManager
	if engine == EngineAppendOnly || engine == EngineHybrid {
		var err error
		hm, err = heap.NewHeapManager(heapPath)
		if err != nil {
			return err
		}
	}

	tb.tables[tableName] = &Table{
		Name:      tableName,
		Heap:      hm,
		Indices:   tempIndices,
		Engine:    engine,
		Encrypted: enc,
	}

	return nil
}

func (tb *TableMetaData) GetTableByName(name string) (*Table, error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	table, ok := tb.tables[name]
	if !ok {
		return nil, &errors.TableNotFoundError{Name: name}
	}
	return table, nil
}

func (tb *TableMetaData) GetIndexByName(tableName string, indexName string) (*Index, error) {
	table, err := tb.GetTableByName(tableName)
	if err != nil {
		return nil, err
	}
	return table.GetIndex(indexName)
}

// ListTables returns the names of all registered tables.
func (tb *TableMetaData) ListTables() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	names := make([]string, 0, len(tb.tables))
	for name := range tb.tables {
		names = append(names, name)
	}
	return names
}

// DropTable removes a table from the directory; callers are responsible for
// closing its Heap and discarding its on-disk files beforehand.
func (tb *TableMetaData) DropTable(name string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if _, ok := tb.tables[name]; !ok {
		return &errors.TableNotFoundError{Name: name}
	}
	delete(tb.tables, name)
	return nil
}
