package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	key := "test-key"
	value := []byte("test-value")

	if err := cache.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	retrieved, ok := cache.Get(key)
	if !ok {
		t.Fatal("Get failed: key not found")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Retrieved value mismatch: got %s, want %s", retrieved, value)
	}
	if !cache.Contains(key) {
		t.Error("Contains returned false for existing key")
	}
	if cache.Size() != int64(len(value)) {
		t.Errorf("Size mismatch: got %d, want %d", cache.Size(), len(value))
	}

	if err := cache.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if cache.Contains(key) {
		t.Error("Key still exists after delete")
	}
	if cache.Size() != 0 {
		t.Errorf("Size not zero after delete: %d", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100)

	for i := 0; i < 5; i++ {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed for new key: %v", err)
	}

	if cache.Contains("key-2") || cache.Contains("key-3") {
		t.Error("key-2 and key-3 should have been evicted")
	}
	if !cache.Contains("key-0") || !cache.Contains("key-1") {
		t.Error("recently used keys should not have been evicted")
	}
	if s := cache.Stats(); s.Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", s.Evictions)
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(100)

	if err := cache.Put("large-key", make([]byte, 200)); err != ErrItemTooLarge {
		t.Errorf("Expected ErrItemTooLarge, got %v", err)
	}
}

func TestMemoryCache_UpdateExisting(t *testing.T) {
	cache := NewMemoryCache(1024)

	_ = cache.Put("k", []byte("short"))
	_ = cache.Put("k", []byte("a longer value"))

	got, _ := cache.Get("k")
	if string(got) != "a longer value" {
		t.Errorf("got %q after update", got)
	}
	if cache.Size() != int64(len("a longer value")) {
		t.Errorf("Size = %d after update", cache.Size())
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(1024)
	_ = cache.Put("a", []byte("1"))

	cache.Get("a")
	cache.Get("a")
	cache.Get("missing")

	s := cache.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", s.Hits, s.Misses)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("HitRate = %f", s.HitRate)
	}
	if s.ItemCount != 1 || s.Capacity != 1024 {
		t.Errorf("stats = %+v", s)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	cache := NewMemoryCache(1024)
	_ = cache.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	_ = cache.Put("new", []byte("y"))

	if n := cache.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if cache.Contains("old") || !cache.Contains("new") {
		t.Error("Prune removed the wrong entry")
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache(1024)
	_ = cache.Put("a", []byte("1"))
	_ = cache.Put("b", []byte("2"))

	_ = cache.Clear()
	if cache.Size() != 0 || cache.Contains("a") {
		t.Error("Clear left entries behind")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(10 * 1024)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j%10)
				_ = cache.Put(key, make([]byte, 10))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Size() > 10*1024 {
		t.Errorf("Size %d exceeds capacity", cache.Size())
	}
}

func BenchmarkMemoryCache_Put(b *testing.B) {
	cache := NewMemoryCache(1024 * 1024)
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Put(fmt.Sprintf("key-%d", i%1000), value)
	}
}
