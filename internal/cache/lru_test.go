package cache

import (
	"testing"
	"time"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should not be returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("expected 1 expired entry cleaned, got %d", n)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

func TestBytesCache_WeightBound(t *testing.T) {
	c := NewBytesCache(10, 10, time.Minute)

	c.Set("a", []byte("12345"))
	c.Set("b", []byte("1234"))
	if c.Weight() != 9 {
		t.Fatalf("expected weight 9, got %d", c.Weight())
	}

	c.Set("c", []byte("123"))
	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted by weight")
	}
	if c.Weight() != 7 {
		t.Errorf("expected weight 7, got %d", c.Weight())
	}

	c.Set("huge", make([]byte, 11))
	if _, ok := c.Get("huge"); ok {
		t.Error("oversized payload should not be cached")
	}

	c.Set("b", []byte("1"))
	if c.Weight() != 4 {
		t.Errorf("expected weight 4 after replace, got %d", c.Weight())
	}
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c := NewBytesCache(10, 0, time.Minute)
	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still present")
	}
	c.Purge()
	if c.Size() != 0 || c.Weight() != 0 {
		t.Errorf("expected empty cache after purge, size=%d weight=%d", c.Size(), c.Weight())
	}
}

func TestManager_CleanAll(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	now = now.Add(time.Minute)

	if n := m.CleanAll(); n != 1 {
		t.Errorf("expected 1 cleaned, got %d", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
}
