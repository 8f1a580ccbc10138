// Package catalog persists table schemas and the engine/encryption policy
// chosen for each table at CREATE TABLE time, protecting every DDL change
// with the write-ahead log so a crash mid-ALTER never leaves the schema
// directory inconsistent with the tables it describes.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	dbErrors "github.com/bobboyms/dbcore/pkg/errors"
	"github.com/bobboyms/dbcore/pkg/storage"
	"github.com/bobboyms/dbcore/pkg/wal"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ColumnSchema describes one column of a table as recorded in the catalog.
type ColumnSchema struct {
	Name    string          `bson:"name"`
	Type    storage.DataType `bson:"type"`
	Primary bool            `bson:"primary"`
	Unique  bool            `bson:"unique"`
}

// TableSchema is the persisted, catalog-level description of one table:
// its columns, its storage engine, and its encryption mode. The live
// *storage.Table (heap handle, B+Tree indexes) is built from this record
// when a table is opened.
type TableSchema struct {
	Name      string         `bson:"name"`
	Columns   []ColumnSchema `bson:"columns"`
	Engine    storage.EngineTag `bson:"engine"`
	Encrypted storage.EncryptionMode `bson:"encrypted"`
}

// catalogFile is the on-disk BSON document persisted at dir/catalog.bson.
type catalogFile struct {
	Tables []TableSchema `bson:"tables"`
}

// Catalog is the persistent table_name -> schema directory. Every mutating
// call (Create/Drop/Rename) is logged to the WAL before the in-memory map
// and the on-disk snapshot are updated, so recovery can replay a crash that
// happened mid-write.
type Catalog struct {
	mu       sync.RWMutex
	dir      string
	path     string
	tables   map[string]TableSchema
	ddlLog   *wal.WALWriter
}

// Open loads (or creates) the catalog file at dir/catalog.bson, logging DDL
// to a WAL rooted at dir/catalog.wal.
func Open(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &dbErrors.IoError{Path: dir, Err: err}
	}

	path := filepath.Join(dir, "catalog.bson")
	c := &Catalog{
		dir:    dir,
		path:   path,
		tables: make(map[string]TableSchema),
	}

	if err := c.load(); err != nil {
		return nil, err
	}

	opts := wal.DefaultOptions()
	opts.DirPath = dir
	w, err := wal.NewWALWriter(filepath.Join(dir, "catalog.wal"), opts)
	if err != nil {
		return nil, &dbErrors.WalIoError{Path: filepath.Join(dir, "catalog.wal"), Err: err}
	}
	c.ddlLog = w

	return c, nil
}

func (c *Catalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &dbErrors.IoError{Path: c.path, Err: err}
	}
	if len(data) == 0 {
		return nil
	}

	var cf catalogFile
	if err := bson.Unmarshal(data, &cf); err != nil {
		return &dbErrors.CatalogError{TableName: "", Reason: fmt.Sprintf("corrupt catalog file: %v", err)}
	}
	for _, t := range cf.Tables {
		c.tables[t.Name] = t
	}
	return nil
}

// persist rewrites the catalog snapshot to disk. Called with c.mu held.
func (c *Catalog) persist() error {
	cf := catalogFile{Tables: make([]TableSchema, 0, len(c.tables))}
	for _, t := range c.tables {
		cf.Tables = append(cf.Tables, t)
	}
	data, err := bson.Marshal(cf)
	if err != nil {
		return &dbErrors.CatalogError{TableName: "", Reason: fmt.Sprintf("marshal catalog: %v", err)}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &dbErrors.IoError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return &dbErrors.IoError{Path: c.path, Err: err}
	}
	return nil
}

func (c *Catalog) logDDL(stmt string) error {
	entry := &wal.WALEntry{
		Header: wal.WALHeader{
			Magic:     wal.WALMagic,
			Version:   wal.WALVersion,
			EntryType: wal.EntryDDL,
		},
		Payload: []byte(stmt),
	}
	entry.Header.PayloadLen = uint32(len(entry.Payload))
	entry.Header.CRC32 = wal.CalculateCRC32(entry.Payload)
	return c.ddlLog.WriteEntry(entry)
}

// CreateTable registers a new table schema, WAL-logging the DDL before
// updating the in-memory map and the on-disk snapshot.
func (c *Catalog) CreateTable(schema TableSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[schema.Name]; exists {
		return &dbErrors.TableAlreadyExistsError{Name: schema.Name}
	}

	if err := c.logDDL(fmt.Sprintf("CREATE TABLE %s", schema.Name)); err != nil {
		return err
	}

	c.tables[schema.Name] = schema
	return c.persist()
}

// DropTable removes a table's schema from the catalog. Callers are
// responsible for deleting the table's underlying data files afterward.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; !exists {
		return &dbErrors.TableNotFoundError{Name: name}
	}

	if err := c.logDDL(fmt.Sprintf("DROP TABLE %s", name)); err != nil {
		return err
	}

	delete(c.tables, name)
	return c.persist()
}

// RenameTable renames a table's schema entry and, via rename, the
// underlying data file(s) at oldDataPath/newDataPath so the catalog entry
// and the files it describes never drift apart: the file rename and the
// catalog update happen under the same lock, after the same WAL record.
func (c *Catalog) RenameTable(oldName, newName, oldDataPath, newDataPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, exists := c.tables[oldName]
	if !exists {
		return &dbErrors.TableNotFoundError{Name: oldName}
	}
	if _, clash := c.tables[newName]; clash {
		return &dbErrors.TableAlreadyExistsError{Name: newName}
	}

	if err := c.logDDL(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName)); err != nil {
		return err
	}

	if oldDataPath != "" {
		if err := os.Rename(oldDataPath, newDataPath); err != nil {
			return &dbErrors.IoError{Path: oldDataPath, Err: err}
		}
	}

	schema.Name = newName
	delete(c.tables, oldName)
	c.tables[newName] = schema
	return c.persist()
}

// AddColumn appends a column to an existing table's schema (ALTER TABLE ...
// ADD COLUMN). It does not touch existing rows; the storage engine is
// responsible for treating a missing column as NULL on read.
func (c *Catalog) AddColumn(tableName string, col ColumnSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, exists := c.tables[tableName]
	if !exists {
		return &dbErrors.TableNotFoundError{Name: tableName}
	}
	for _, existing := range schema.Columns {
		if existing.Name == col.Name {
			return &dbErrors.CatalogError{TableName: tableName, Reason: fmt.Sprintf("column %q already exists", col.Name)}
		}
	}

	if err := c.logDDL(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tableName, col.Name)); err != nil {
		return err
	}

	schema.Columns = append(schema.Columns, col)
	c.tables[tableName] = schema
	return c.persist()
}

// Get returns a copy of a table's schema.
func (c *Catalog) Get(name string) (TableSchema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema, exists := c.tables[name]
	if !exists {
		return TableSchema{}, &dbErrors.TableNotFoundError{Name: name}
	}
	return schema, nil
}

// List returns every table name currently in the catalog.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// Close flushes and closes the catalog's WAL.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ddlLog.Close(); err != nil {
		return &dbErrors.WalIoError{Path: c.ddlLog.Path(), Err: err}
	}
	return nil
}
