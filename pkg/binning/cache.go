package binning

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/ctessum/geom"

	"github.com/beetlebugorg/spatialbin/internal/lattice"
)

// LatticeCache keeps generated bin centers with LRU eviction.
//
// Lattices are deterministic in (extent, radius), so runs repeating the same
// analysis extent share one center sequence. Cached centers are read-only;
// every run builds fresh bins from them.
//
// Example:
//
//	cache := binning.NewLatticeCache(64 * 1024 * 1024) // 64MB limit
//	centers := cache.Get(extent, 250)
type LatticeCache struct {
	maxMemory  int64 // Maximum memory in bytes
	usedMemory int64 // Current memory usage estimate
	lattices   map[latticeKey]*latticeEntry
	lru        *list.List // LRU list (most recent at front)
	hits       int
	misses     int
	mu         sync.Mutex
}

// latticeKey identifies a lattice. CRS is irrelevant to the centers.
type latticeKey struct {
	minX, minY, maxX, maxY float64
	radius                 float64
}

// latticeEntry tracks a cached lattice and its metadata
type latticeEntry struct {
	key        latticeKey
	centers    []geom.Point
	memorySize int64
	element    *list.Element // Position in LRU list
}

// NewLatticeCache creates a new cache with the specified memory limit in bytes.
//
// Set to 0 for unlimited cache size.
func NewLatticeCache(maxMemoryBytes int64) *LatticeCache {
	return &LatticeCache{
		maxMemory: maxMemoryBytes,
		lattices:  make(map[latticeKey]*latticeEntry),
		lru:       list.New(),
	}
}

// Get returns the centers for extent and radius, generating them on a miss.
//
// The returned slice is shared and must not be modified.
func (c *LatticeCache) Get(extent Extent, radius float64) []geom.Point {
	key := latticeKey{
		minX: extent.MinX, minY: extent.MinY,
		maxX: extent.MaxX, maxY: extent.MaxY,
		radius: radius,
	}

	c.mu.Lock()
	if entry, ok := c.lattices[key]; ok {
		c.lru.MoveToFront(entry.element)
		c.hits++
		c.mu.Unlock()
		return entry.centers
	}
	c.misses++
	c.mu.Unlock()

	centers := lattice.Generate(extent.Bounds(), radius)

	// Cache add failure only means the lattice is not kept.
	_ = c.add(key, centers)

	return centers
}

// add stores a lattice, evicting least-recently-used entries to make room.
func (c *LatticeCache) add(key latticeKey, centers []geom.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lattices[key]; ok {
		c.lru.MoveToFront(entry.element)
		return nil
	}

	memSize := estimateLatticeMemory(centers)

	if c.maxMemory > 0 && memSize > c.maxMemory {
		return fmt.Errorf("lattice too large for cache (%d bytes > %d bytes max)",
			memSize, c.maxMemory)
	}

	if c.maxMemory > 0 {
		for c.usedMemory+memSize > c.maxMemory && c.lru.Len() > 0 {
			c.evictLRU()
		}
	}

	entry := &latticeEntry{
		key:        key,
		centers:    centers,
		memorySize: memSize,
	}
	entry.element = c.lru.PushFront(entry)
	c.lattices[key] = entry
	c.usedMemory += memSize

	return nil
}

// evictLRU removes the least recently used lattice.
// Must be called with c.mu locked.
func (c *LatticeCache) evictLRU() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*latticeEntry)
	c.lru.Remove(elem)
	delete(c.lattices, entry.key)
	c.usedMemory -= entry.memorySize
}

// Clear removes all lattices from the cache.
func (c *LatticeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lattices = make(map[latticeKey]*latticeEntry)
	c.lru.Init()
	c.usedMemory = 0
}

// Stats returns cache statistics.
func (c *LatticeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		LatticeCount: len(c.lattices),
		UsedMemory:   c.usedMemory,
		MaxMemory:    c.maxMemory,
		Hits:         c.hits,
		Misses:       c.misses,
	}
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	LatticeCount int   // Number of lattices currently cached
	UsedMemory   int64 // Estimated memory usage in bytes
	MaxMemory    int64 // Maximum memory limit in bytes
	Hits         int   // Lookups served from cache
	Misses       int   // Lookups that generated a lattice
}

// estimateLatticeMemory estimates memory usage for a center sequence:
// 256 bytes of entry overhead plus 16 bytes per center.
func estimateLatticeMemory(centers []geom.Point) int64 {
	return 256 + int64(len(centers))*16
}
