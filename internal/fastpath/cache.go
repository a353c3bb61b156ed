package fastpath

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pixelsense/internal/imaging"
	"pixelsense/internal/logging"
	"pixelsense/internal/signal"
)

// CachedSignature is one in-memory cache entry: the distilled outcome of a
// prior analysis keyed by content.
type CachedSignature struct {
	CombinedKey    string
	PerceptualHash uint64
	ContentHash    string
	CreatedAt      time.Time
	LastAccessedAt int64 // unix nanos, mutated atomically on hit
	HitCount       int64 // mutated atomically on hit
	Confidence     float64
	SupportCount   int
	Caption        string
	OCRText        string
	Width          int
	Height         int
	IsAnimated     bool
	ContentType    string
	Signals        map[string]signal.Signal
	ContributingWaves map[string]struct{}
	IsComplete     bool
	OriginalProcessingTimeMS int64
}

// Touch records a hit.
func (s *CachedSignature) Touch() {
	atomic.StoreInt64(&s.LastAccessedAt, time.Now().UnixNano())
	atomic.AddInt64(&s.HitCount, 1)
}

// Stats is the cache's counter snapshot.
type Stats struct {
	Entries        int
	Hits           int64
	Misses         int64
	PerceptualHits int64
	HitRate        float64
}

// Cache is the two-key in-memory tier: content map plus perceptual index.
// Gets are lock-free on the happy path (sync.Map); Set and eviction are
// serialized behind a single writer mutex.
type Cache struct {
	entries sync.Map // combinedKey -> *CachedSignature

	writeMu    sync.Mutex
	perceptual map[uint64]string // phash -> combinedKey
	size       int64

	capacity     int
	ttl          time.Duration
	indexCap     int

	hits           int64
	misses         int64
	perceptualHits int64
}

// NewCache builds a cache with the given entry capacity, TTL and perceptual
// index cap.
func NewCache(capacity int, ttl time.Duration, indexCap int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if indexCap < capacity {
		indexCap = capacity
	}
	return &Cache{
		perceptual: make(map[uint64]string),
		capacity:   capacity,
		ttl:        ttl,
		indexCap:   indexCap,
	}
}

// Get returns the exact entry for combinedKey. An entry past its TTL reads
// as a miss and is removed.
func (c *Cache) Get(combinedKey string) (*CachedSignature, bool) {
	v, ok := c.entries.Load(combinedKey)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	sig := v.(*CachedSignature)
	if c.expired(sig) {
		c.remove(sig)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	sig.Touch()
	atomic.AddInt64(&c.hits, 1)
	return sig, true
}

// FindSimilar returns an entry whose perceptual hash is within maxHamming of
// phash: the exact index entry first, then a linear scan of the index.
func (c *Cache) FindSimilar(phash uint64, maxHamming int) (*CachedSignature, bool) {
	c.writeMu.Lock()
	key, exact := c.perceptual[phash]
	var scanned []uint64
	if !exact {
		scanned = make([]uint64, 0, len(c.perceptual))
		for p := range c.perceptual {
			scanned = append(scanned, p)
		}
	}
	c.writeMu.Unlock()

	if exact {
		if sig, ok := c.lookupLive(key); ok {
			sig.Touch()
			atomic.AddInt64(&c.perceptualHits, 1)
			return sig, true
		}
	}
	for _, p := range scanned {
		if imaging.HammingDistance(p, phash) > maxHamming {
			continue
		}
		c.writeMu.Lock()
		key := c.perceptual[p]
		c.writeMu.Unlock()
		if sig, ok := c.lookupLive(key); ok {
			sig.Touch()
			atomic.AddInt64(&c.perceptualHits, 1)
			return sig, true
		}
	}
	return nil, false
}

// lookupLive fetches an entry without counting a hit or miss, dropping it
// when expired.
func (c *Cache) lookupLive(combinedKey string) (*CachedSignature, bool) {
	v, ok := c.entries.Load(combinedKey)
	if !ok {
		return nil, false
	}
	sig := v.(*CachedSignature)
	if c.expired(sig) {
		c.remove(sig)
		return nil, false
	}
	return sig, true
}

// Set inserts the signature into the content map and the perceptual index,
// evicting the oldest tenth when the entry count reaches capacity.
func (c *Cache) Set(combinedKey string, sig *CachedSignature) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if sig.LastAccessedAt == 0 {
		sig.LastAccessedAt = time.Now().UnixNano()
	}
	if _, loaded := c.entries.Load(combinedKey); !loaded {
		c.size++
	}
	c.entries.Store(combinedKey, sig)
	if sig.PerceptualHash != 0 && len(c.perceptual) < c.indexCap {
		c.perceptual[sig.PerceptualHash] = combinedKey
	}

	if int(c.size) >= c.capacity {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the oldest 10% of entries by last access in one
// sweep. Caller holds writeMu.
func (c *Cache) evictOldestLocked() {
	type aged struct {
		key  string
		sig  *CachedSignature
		last int64
	}
	var all []aged
	c.entries.Range(func(k, v interface{}) bool {
		sig := v.(*CachedSignature)
		all = append(all, aged{k.(string), sig, atomic.LoadInt64(&sig.LastAccessedAt)})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].last < all[j].last })

	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	for _, a := range all[:n] {
		c.entries.Delete(a.key)
		delete(c.perceptual, a.sig.PerceptualHash)
		c.size--
	}
	logging.Get(logging.CategoryFastPath).Debug("evicted %d entries (capacity %d)", n, c.capacity)
}

// remove drops one entry and its perceptual index slot.
func (c *Cache) remove(sig *CachedSignature) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, loaded := c.entries.Load(sig.CombinedKey); loaded {
		c.entries.Delete(sig.CombinedKey)
		c.size--
	}
	if key, ok := c.perceptual[sig.PerceptualHash]; ok && key == sig.CombinedKey {
		delete(c.perceptual, sig.PerceptualHash)
	}
}

func (c *Cache) expired(sig *CachedSignature) bool {
	if c.ttl <= 0 {
		return false
	}
	last := atomic.LoadInt64(&sig.LastAccessedAt)
	return time.Since(time.Unix(0, last)) > c.ttl
}

// Stats returns the counter snapshot.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	s := Stats{
		Hits:           hits,
		Misses:         misses,
		PerceptualHits: atomic.LoadInt64(&c.perceptualHits),
	}
	c.entries.Range(func(k, v interface{}) bool {
		s.Entries++
		return true
	})
	if hits+misses > 0 {
		s.HitRate = float64(hits) / float64(hits+misses)
	}
	return s
}
