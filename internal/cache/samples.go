package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Config configures a SampleCache.
type Config struct {
	MemoryBytes      int64
	DiskBytes        int64
	Dir              string // empty disables the disk tier
	CompressionLevel int
	TTL              time.Duration
}

// SampleCache caches synthesized audio keyed by everything that affects it.
type SampleCache struct {
	l1  *MemoryCache
	l2  *DiskCache
	log *log.Logger

	mu    sync.Mutex
	stats SampleStats
}

// SampleStats combines tier statistics with lookup counters.
type SampleStats struct {
	Memory     Stats
	Disk       Stats
	L1Hits     int64
	L2Hits     int64
	Misses     int64
	Promotions int64
}

// New creates a sample cache.
func New(cfg Config, logger *log.Logger) (*SampleCache, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := &SampleCache{
		l1:  NewMemoryCache(cfg.MemoryBytes),
		log: logger.WithPrefix("cache"),
	}
	if cfg.Dir != "" && cfg.DiskBytes > 0 {
		l2, err := NewDiskCache(cfg.Dir, cfg.DiskBytes, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		c.l2 = l2
		if cfg.TTL > 0 {
			if n := l2.RemoveOlderThan(time.Now().Add(-cfg.TTL)); n > 0 {
				c.log.Debug("Pruned expired entries", "count", n)
			}
		}
	}
	return c, nil
}

// Key derives the cache key for a synthesis request.
func Key(model, style string, rate, volume float64, text string) string {
	h := sha256.New()
	for _, part := range []string{
		model,
		style,
		strconv.FormatFloat(rate, 'f', 3, 64),
		strconv.FormatFloat(volume, 'f', 3, 64),
		text,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks key up in memory then on disk, promoting disk hits.
func (c *SampleCache) Get(key string) ([]float32, bool) {
	if data, ok := c.l1.Get(key); ok {
		if samples, err := Decode(data); err == nil {
			c.count(func(s *SampleStats) { s.L1Hits++ })
			c.log.Debug("Cache hit", "level", LevelMemory, "key", short(key))
			return samples, true
		}
		_ = c.l1.Delete(key)
	}

	if c.l2 != nil {
		if data, ok := c.l2.Get(key); ok {
			samples, err := Decode(data)
			if err == nil {
				if c.l1.Put(key, data) == nil {
					c.count(func(s *SampleStats) { s.Promotions++ })
				}
				c.count(func(s *SampleStats) { s.L2Hits++ })
				c.log.Debug("Cache hit", "level", LevelDisk, "key", short(key))
				return samples, true
			}
			_ = c.l2.Delete(key)
		}
	}

	c.count(func(s *SampleStats) { s.Misses++ })
	c.log.Debug("Cache miss", "key", short(key))
	return nil, false
}

// Put stores samples in both tiers. Entries too large for a tier are
// skipped for that tier.
func (c *SampleCache) Put(key string, samples []float32) error {
	data := Encode(samples)
	if err := c.l1.Put(key, data); err != nil && err != ErrItemTooLarge {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if c.l2 != nil {
		if err := c.l2.Put(key, data); err != nil && err != ErrItemTooLarge {
			return fmt.Errorf("L2 cache error: %w", err)
		}
	}
	return nil
}

// Clear empties both tiers.
func (c *SampleCache) Clear() error {
	_ = c.l1.Clear()
	if c.l2 != nil {
		return c.l2.Clear()
	}
	return nil
}

// Stats returns a snapshot of cache statistics.
func (c *SampleCache) Stats() SampleStats {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()

	s.Memory = c.l1.Stats()
	if c.l2 != nil {
		s.Disk = c.l2.Stats()
	}
	return s
}

// Close persists the disk index.
func (c *SampleCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func (c *SampleCache) count(f func(*SampleStats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// Encode serialises samples as little-endian float32.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, ErrCacheCorrupted
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
