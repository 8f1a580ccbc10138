// Package engine ties the catalog, the storage engines, and the query
// layer together behind a narrow public surface: Prepare a statement once,
// Execute it any number of times, ExecuteBatch several in order (each
// statement committing on its own), or
// BeginTransaction for a longer-lived snapshot token. It deliberately does
// not expose the engines, the catalog, or the plan cache themselves, so an
// external adapter (an ORM driver, a CLI) has nothing to reach past.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobboyms/dbcore/pkg/catalog"
	"github.com/bobboyms/dbcore/pkg/index"
	"github.com/bobboyms/dbcore/pkg/query"
	"github.com/bobboyms/dbcore/pkg/storage"
)

// DefaultPageCacheCapacity bounds a page-based or hybrid table's page
// cache, in frames, when Options doesn't specify one.
const DefaultPageCacheCapacity = 64

// Options configures Open.
type Options struct {
	// Key is the AEAD key used for tables the catalog records as
	// encrypted. Leave nil if no table in this database uses encryption.
	Key []byte
	// PageCacheCapacity bounds each page-based or hybrid table's page
	// cache. <= 0 selects DefaultPageCacheCapacity.
	PageCacheCapacity int
	// PlanCacheCapacity bounds the prepared-statement cache. <= 0 selects
	// query.DefaultPlanCacheCapacity.
	PlanCacheCapacity int
}

// DB is an open database directory: its catalog, every table's storage
// engine, and the query-layer caches shared across statements.
type DB struct {
	mu      sync.RWMutex
	dir     string
	opts    Options
	catalog *catalog.Catalog
	engines map[string]storage.Engine
	// indexes holds one hash index per primary/unique column, auto-built at
	// CREATE TABLE time and kept in sync by every Insert/Update/Delete.
	// query.ChoosePath consults it through indexedColumns to decide whether
	// a SELECT can hash-probe instead of scanning the whole table.
	indexes map[string]map[string]*index.HashIndex
	// whereFreq counts how often a WHERE clause leads on a given column,
	// fed to index.AnalyzeAndCreateIndexes by AnalyzeIndexes/PRAGMA
	// index_advisor so the frequency half of its heuristic isn't always 0.
	whereFreq map[string]map[string]int
	lsn       *storage.LSNTracker
	plans     *query.PlanCache
	results   *query.ResultCache
	log       *Logger
	closed    bool
}

// Open opens (or creates) the database rooted at dir, loading the catalog
// and opening every table's storage engine as recorded there.
func Open(dir string, opts Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: mkdir %s: %w", dir, err)
	}
	cat, err := catalog.Open(dir)
	if err != nil {
		return nil, err
	}
	if opts.PageCacheCapacity <= 0 {
		opts.PageCacheCapacity = DefaultPageCacheCapacity
	}

	db := &DB{
		dir:       dir,
		opts:      opts,
		catalog:   cat,
		engines:   make(map[string]storage.Engine),
		indexes:   make(map[string]map[string]*index.HashIndex),
		whereFreq: make(map[string]map[string]int),
		lsn:       storage.NewLSNTracker(0),
		plans:     query.NewPlanCache(opts.PlanCacheCapacity),
		results:   query.NewResultCache(),
		log:       NewLogger("dbcore"),
	}

	for _, name := range cat.List() {
		schema, err := cat.Get(name)
		if err != nil {
			return nil, err
		}
		eng, err := db.openTableEngine(schema)
		if err != nil {
			return nil, fmt.Errorf("engine: opening table %s: %w", name, err)
		}
		db.engines[name] = eng
		idx, err := buildIndexes(schema, eng)
		if err != nil {
			return nil, fmt.Errorf("engine: indexing table %s: %w", name, err)
		}
		db.indexes[name] = idx
	}

	db.log.Printf("opened database at %s with %d tables", dir, len(db.engines))
	return db, nil
}

func (db *DB) tablePath(name string) string {
	return filepath.Join(db.dir, "tables", name)
}

func (db *DB) keyFor(schema catalog.TableSchema) []byte {
	if schema.Encrypted == storage.AeadEncryptMode {
		return db.opts.Key
	}
	return nil
}

// openTableEngine dispatches on the catalog's EngineTag, the single place
// a table's storage layout is decided — callers never branch on engine
// kind themselves, they just hold a storage.Engine.
func (db *DB) openTableEngine(schema catalog.TableSchema) (storage.Engine, error) {
	switch schema.Engine {
	case storage.EnginePageBased:
		base, err := storage.OpenPageBasedEngine(db.tablePath(schema.Name)+".pages", db.keyFor(schema), db.opts.PageCacheCapacity, 0)
		if err != nil {
			return nil, err
		}
		return storage.NewPageEngineAdapter(schema.Name, base), nil
	case storage.EngineHybrid:
		base, err := storage.OpenHybridEngine(schema.Name, db.tablePath(schema.Name)+"_hybrid", db.keyFor(schema), db.opts.PageCacheCapacity, 0, storage.HybridOptions{})
		if err != nil {
			return nil, err
		}
		return storage.NewHybridEngineAdapter(base), nil
	default:
		// EngineAppendOnly and EngineColumnar both land here: a columnar
		// table's aggregates are computed over whatever row store holds
		// its data by rebuilding a transient columnar.ColumnStore on each
		// query (§4.8), not by laying the table out column-major on disk.
		return storage.OpenAppendOnlyTableEngine(schema.Name, db.tablePath(schema.Name), db.keyFor(schema))
	}
}

// CreateTable adds a table to the catalog and opens its storage engine.
func (db *DB) CreateTable(schema catalog.TableSchema) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.catalog.CreateTable(schema); err != nil {
		return err
	}
	eng, err := db.openTableEngine(schema)
	if err != nil {
		return err
	}
	idx, err := buildIndexes(schema, eng)
	if err != nil {
		return err
	}
	db.engines[schema.Name] = eng
	db.indexes[schema.Name] = idx
	return nil
}

// DropTable removes a table from the catalog and closes its engine.
func (db *DB) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.catalog.DropTable(name); err != nil {
		return err
	}
	if eng, ok := db.engines[name]; ok {
		if err := eng.Close(); err != nil {
			db.log.Printf("error closing dropped table %s: %v", name, err)
		}
		delete(db.engines, name)
	}
	delete(db.indexes, name)
	delete(db.whereFreq, name)
	db.results.Invalidate(name)
	return nil
}

// Close flushes and closes every open table engine, then the catalog.
// Safe to call more than once.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	for name, eng := range db.engines {
		if err := eng.Close(); err != nil {
			db.log.Printf("error closing table %s: %v", name, err)
		}
	}
	return db.catalog.Close()
}
