package query

import "testing"

func TestResultCache_PutThenGet(t *testing.T) {
	c := NewResultCache()
	rows := []Row{{"id": int64(1)}}
	c.Put("SELECT * FROM users", "users", rows)

	got, ok := c.Get("SELECT * FROM users", "users")
	if !ok || len(got) != 1 {
		t.Fatalf("expected cached rows, got %+v, %v", got, ok)
	}
}

func TestResultCache_Invalidate_DropsEntriesForThatTable(t *testing.T) {
	c := NewResultCache()
	c.Put("SELECT * FROM users", "users", []Row{{"id": int64(1)}})
	c.Invalidate("users")

	if _, ok := c.Get("SELECT * FROM users", "users"); ok {
		t.Fatal("expected cache entry to be invalidated after a write to its table")
	}
}

func TestResultCache_UnrelatedTableInvalidation_DoesNotEvict(t *testing.T) {
	c := NewResultCache()
	c.Put("SELECT * FROM users", "users", []Row{{"id": int64(1)}})
	c.Invalidate("orders")

	if _, ok := c.Get("SELECT * FROM users", "users"); !ok {
		t.Fatal("expected an unrelated table's invalidation not to evict this entry")
	}
}
