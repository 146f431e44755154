package matrix

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"fleetvrp/internal/model"
)

// Cache memoizes Euclidean matrices by the exact coordinate list, evicting the
// least recently used. Matrices are read-only once built, so one instance is
// shared between callers.
type Cache struct {
	entries *lru.Cache[uint64, cacheEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

type cacheEntry struct {
	locs []model.Location
	m    *Matrix
}

// NewCache returns a cache holding at most max matrices; max <= 0 means 64.
func NewCache(max int) *Cache {
	if max <= 0 {
		max = 64
	}
	entries, err := lru.New[uint64, cacheEntry](max)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Cache{entries: entries}
}

// Euclidean returns the cached matrix for locs, building it on a miss.
func (c *Cache) Euclidean(locs []model.Location) (*Matrix, error) {
	m, _, err := c.Lookup(locs)
	return m, err
}

// Lookup is Euclidean that also reports whether the matrix was cached. A hash
// collision counts as a miss and replaces the older entry.
func (c *Cache) Lookup(locs []model.Location) (*Matrix, bool, error) {
	key := hashLocations(locs)
	if e, ok := c.entries.Get(key); ok && sameLocations(e.locs, locs) {
		c.hits.Add(1)
		return e.m, true, nil
	}
	c.misses.Add(1)

	m, err := Euclidean(locs)
	if err != nil {
		return nil, false, err
	}
	c.entries.Add(key, cacheEntry{locs: append([]model.Location(nil), locs...), m: m})
	return m, false, nil
}

// Len is the number of matrices currently held.
func (c *Cache) Len() int { return c.entries.Len() }

// Stats reports hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	return int(c.hits.Load()), int(c.misses.Load())
}

func hashLocations(locs []model.Location) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for _, l := range locs {
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(l.X))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(l.Y))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func sameLocations(a, b []model.Location) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
