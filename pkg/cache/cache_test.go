package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", payload{Name: "hello", Count: 3}); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	var got payload
	if !c.Get("k", &got) {
		t.Fatal("Get() missed a fresh entry")
	}
	if got.Name != "hello" || got.Count != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)

	var got payload
	if c.Get("nope", &got) {
		t.Error("Get() hit on a missing key")
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	c := newTestCache(t)

	if err := c.SetWithTTL("k", payload{Name: "stale"}, -time.Second); err != nil {
		t.Fatalf("SetWithTTL() = %v", err)
	}
	var got payload
	if c.Get("k", &got) {
		t.Error("Get() served an expired entry")
	}
}

func TestSetReplaces(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", payload{Count: 1})
	c.Set("k", payload{Count: 2})

	var got payload
	if !c.Get("k", &got) || got.Count != 2 {
		t.Errorf("got %+v, want count 2", got)
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", payload{Count: 1})
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	var got payload
	if c.Get("k", &got) {
		t.Error("entry survived Delete")
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	c := newTestCache(t)

	c.SetWithTTL("dead", payload{}, -time.Second)
	c.Set("alive", payload{Count: 1})

	n, err := c.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup() = %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup() removed %d entries, want 1", n)
	}

	var got payload
	if !c.Get("alive", &got) {
		t.Error("fresh entry removed by cleanup")
	}
}

func TestStatsCounters(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", payload{Count: 1})
	var got payload
	c.Get("k", &got)   // hit
	c.Get("meh", &got) // miss

	entries, hits, misses, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if entries != 1 || hits != 1 || misses != 1 {
		t.Errorf("stats = %d entries, %d hits, %d misses", entries, hits, misses)
	}
}
