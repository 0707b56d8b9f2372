package cache

import (
	"testing"
)

func TestKey(t *testing.T) {
	base := Key("m", "F1", 1, 1, "hello")
	if base != Key("m", "F1", 1, 1, "hello") {
		t.Error("Key is not deterministic")
	}

	variants := []string{
		Key("other", "F1", 1, 1, "hello"),
		Key("m", "M1", 1, 1, "hello"),
		Key("m", "F1", 1.5, 1, "hello"),
		Key("m", "F1", 1, 0.5, "hello"),
		Key("m", "F1", 1, 1, "hello!"),
		Key("mF1", "", 1, 1, "hello"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key", i)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, -0.125}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := Decode([]byte{1, 2, 3}); err != ErrCacheCorrupted {
		t.Errorf("expected ErrCacheCorrupted, got %v", err)
	}
}

func TestSampleCache_Hierarchy(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{MemoryBytes: 1 << 16, DiskBytes: 1 << 20, Dir: dir, CompressionLevel: 3}

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	key := Key("m", "F1", 1, 1, "hello")
	samples := []float32{0.1, 0.2, 0.3}

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}
	if err := c.Put(key, samples); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got, ok := c.Get(key); !ok || len(got) != 3 {
		t.Fatalf("Get after Put = %v, %v", got, ok)
	}
	_ = c.Close()

	// A fresh cache over the same directory only has the disk tier.
	c2, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c2.Close() //nolint:errcheck

	if got, ok := c2.Get(key); !ok || got[2] != 0.3 {
		t.Fatalf("disk tier lookup = %v, %v", got, ok)
	}
	c2.Get(key)

	s := c2.Stats()
	if s.L2Hits != 1 || s.L1Hits != 1 || s.Promotions != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSampleCache_MemoryOnly(t *testing.T) {
	c, err := New(Config{MemoryBytes: 8}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Too large for memory, no disk tier: silently not cached.
	if err := c.Put("k", make([]float32, 10)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("oversized entry should not be cached")
	}
	if err := c.Clear(); err != nil {
		t.Errorf("Clear failed: %v", err)
	}
}
