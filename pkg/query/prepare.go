package query

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bobboyms/dbcore/pkg/sql"
)

// PreparedStatement is a parsed SQL statement ready for repeated execution
// without re-parsing. Callers get one back from Prepare and hand it to
// whatever executes it (pkg/engine), varying only parameters between runs.
// ParamNames lists every `?`/`@name` bind parameter found in the statement,
// in source order ("" for a positional `?`), so a caller can validate an
// argument list's shape before binding it. Plan is nil until the engine
// computes and caches an access-path decision for it (SELECTs only).
type PreparedStatement struct {
	SQL        string
	Statement  sql.Statement
	ParamNames []string
	Plan       *Plan
}

// paramNamesOf walks stmt's expression trees in source order and returns
// the bind parameters found, keyed by their ParamRef.Index. A statement
// with no parameters returns nil.
func paramNamesOf(stmt sql.Statement) []string {
	var refs []*sql.ParamRef
	collect := func(e sql.Expr) { refs = append(refs, exprParamRefs(e)...) }

	switch s := stmt.(type) {
	case *sql.SelectStmt:
		refs = append(refs, selectParamRefs(s)...)
	case *sql.InsertStmt:
		for _, v := range s.Values {
			collect(v)
		}
	case *sql.UpdateStmt:
		for _, v := range s.Sets {
			collect(v)
		}
		collect(s.Where)
	case *sql.DeleteStmt:
		collect(s.Where)
	}

	if len(refs) == 0 {
		return nil
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	return names
}

// exprParamRefs returns every ParamRef reachable from e, including through
// nested subqueries.
func exprParamRefs(e sql.Expr) []*sql.ParamRef {
	switch v := e.(type) {
	case nil:
		return nil
	case *sql.ParamRef:
		return []*sql.ParamRef{v}
	case *sql.BinaryExpr:
		return append(exprParamRefs(v.Left), exprParamRefs(v.Right)...)
	case *sql.InExpr:
		out := exprParamRefs(v.Left)
		for _, val := range v.Values {
			out = append(out, exprParamRefs(val)...)
		}
		if v.Sub != nil {
			out = append(out, selectParamRefs(v.Sub)...)
		}
		return out
	case *sql.SubqueryExpr:
		return selectParamRefs(v.Query)
	default:
		return nil
	}
}

func selectParamRefs(s *sql.SelectStmt) []*sql.ParamRef {
	if s == nil {
		return nil
	}
	var out []*sql.ParamRef
	out = append(out, exprParamRefs(s.Where)...)
	out = append(out, exprParamRefs(s.Having)...)
	for _, j := range s.Joins {
		out = append(out, exprParamRefs(j.On)...)
	}
	out = append(out, selectParamRefs(s.FromSub)...)
	return out
}

// planCacheEntry is one LRU slot, mirroring pkg/page's frame/doubly-linked
// cache shape at the statement-cache level instead of the page level.
type planCacheEntry struct {
	key   string
	stmt  *PreparedStatement
	prev  *planCacheEntry
	next  *planCacheEntry
}

// PlanCache is a bounded LRU of prepared statements keyed by their raw SQL
// text, so repeatedly executing the same statement skips parsing.
type PlanCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*planCacheEntry
	head     *planCacheEntry // most recently used
	tail     *planCacheEntry // least recently used
}

// DefaultPlanCacheCapacity bounds the statement cache when callers don't
// specify one.
const DefaultPlanCacheCapacity = 256

// NewPlanCache creates an empty cache. capacity <= 0 selects the default.
func NewPlanCache(capacity int) *PlanCache {
	if capacity <= 0 {
		capacity = DefaultPlanCacheCapacity
	}
	return &PlanCache{
		capacity: capacity,
		entries:  make(map[string]*planCacheEntry),
	}
}

// Prepare parses sqlText into a single statement, serving a cached parse
// for repeated text. A script with more than one statement, or with a
// parse error, is rejected: Prepare is for single, well-formed statements.
//
// The cache is keyed on sqlText alone rather than a
// (sqlText, paramShape) pair: a statement's paramShape (its ParamNames) is
// itself a pure function of how sqlText parses, so two prepares of the same
// text always produce the same shape and the extra key dimension would
// never actually discriminate between entries.
func (c *PlanCache) Prepare(sqlText string) (*PreparedStatement, error) {
	c.mu.Lock()
	if entry, ok := c.entries[sqlText]; ok {
		c.moveToFrontLocked(entry)
		c.mu.Unlock()
		return entry.stmt, nil
	}
	c.mu.Unlock()

	program := sql.Parse(sqlText)
	if len(program.Errors) > 0 {
		return nil, fmt.Errorf("query: parse error: %s", program.Errors[0].Message)
	}
	if len(program.Statements) != 1 {
		return nil, fmt.Errorf("query: expected exactly one statement, got %d", len(program.Statements))
	}
	if _, isErr := program.Statements[0].(*sql.ErrorNode); isErr {
		return nil, fmt.Errorf("query: statement failed to parse")
	}

	prepared := &PreparedStatement{
		SQL:        sqlText,
		Statement:  program.Statements[0],
		ParamNames: paramNamesOf(program.Statements[0]),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[sqlText]; ok {
		// Lost a race with another caller preparing the same text.
		c.moveToFrontLocked(entry)
		return entry.stmt, nil
	}
	c.insertLocked(sqlText, prepared)
	return prepared, nil
}

func (c *PlanCache) insertLocked(key string, stmt *PreparedStatement) {
	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	entry := &planCacheEntry{key: key, stmt: stmt}
	c.entries[key] = entry
	c.pushFrontLocked(entry)
}

func (c *PlanCache) evictLocked() {
	if c.tail == nil {
		return
	}
	victim := c.tail
	c.unlinkLocked(victim)
	delete(c.entries, victim.key)
}

func (c *PlanCache) moveToFrontLocked(e *planCacheEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushFrontLocked(e)
}

func (c *PlanCache) pushFrontLocked(e *planCacheEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *PlanCache) unlinkLocked(e *planCacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// Len reports how many prepared statements are currently cached.
func (c *PlanCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
