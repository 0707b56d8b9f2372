// Package cache stores synthesized sample buffers in a two-level cache: an
// in-memory LRU (L1) in front of a zstd-compressed disk cache (L2).
package cache
