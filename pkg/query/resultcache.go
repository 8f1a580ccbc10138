package query

import "sync"

// ResultCache memoizes a SELECT's materialized rows keyed by its SQL text,
// invalidated wholesale for a table the moment any write touches it. This
// is coarser than per-row invalidation, trading some cache churn on
// unrelated writes for a trivial, always-correct invalidation rule.
type ResultCache struct {
	mu     sync.Mutex
	epochs map[string]uint64            // table -> current write epoch
	cache  map[string]resultCacheEntry  // sql text -> cached rows + the epoch they were computed against
}

type resultCacheEntry struct {
	table string
	epoch uint64
	rows  []Row
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		epochs: make(map[string]uint64),
		cache:  make(map[string]resultCacheEntry),
	}
}

// Invalidate bumps table's write epoch, silently discarding every cached
// result computed against an earlier epoch the next time it's looked up.
func (c *ResultCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[table]++
}

// Get returns a cached result for sqlText if one exists and is still
// current for table.
func (c *ResultCache) Get(sqlText, table string) ([]Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[sqlText]
	if !ok || entry.table != table {
		return nil, false
	}
	if entry.epoch != c.epochs[table] {
		delete(c.cache, sqlText)
		return nil, false
	}
	return entry.rows, true
}

// Put stores rows for sqlText, stamped with table's current write epoch.
func (c *ResultCache) Put(sqlText, table string, rows []Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[sqlText] = resultCacheEntry{table: table, epoch: c.epochs[table], rows: rows}
}
