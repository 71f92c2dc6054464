// S3-FIFO ("Simple, Scalable, FIFO-based cache eviction", Yang et al., 2023)
// wraps a PersistentCache with a bounded in-memory eviction layer so the hot
// footprint and the on-disk store size both stay within capacity.
//
// # Algorithm
//
// Two FIFO queues and a bounded ghost set:
//
//   - S (small, ~10% of capacity): probationary queue.
//     All new keys are inserted here.
//   - M (main, ~90% of capacity): protected queue.
//     Keys promoted from S after at least one access (freq > 0) land here.
//   - G (ghost): a circular-buffer set of keys recently evicted from S,
//     bounded to 2x sTarget. A key found in G on insert bypasses S and goes
//     directly to M.
//
// Per-object state: saturating frequency counter (uint8, max 3). Incremented
// on every Get hit; reset to 0 on M promotion.
//
// # Eviction
//
//	S -> evict oldest head:
//	  freq > 0 -> promote to M tail (reset freq); if M now over target, evict M head.
//	  freq == 0 -> remove from memory, add key to G, delete from backing store.
//
//	M -> evict oldest head:
//	  Remove from memory, delete from backing store. M evictions do not add to G.
//
// # Sizing
//
//	sTarget  = max(1, capacity/10)
//	mTarget  = capacity - sTarget
//	ghostCap = 2 * sTarget (min 4)
package cache

import (
	"container/list"
	"sync"

	"ai-deid-pipeline/internal/logger"
)

// s3fifoEntry holds the in-memory state for a single cached item.
type s3fifoEntry struct {
	value string
	freq  uint8         // saturating counter in [0, 3]
	elem  *list.Element // back-pointer into sQueue or mQueue
	inM   bool          // true -> lives in mQueue, false -> sQueue
}

// S3FIFOCache wraps a PersistentCache with an S3-FIFO in-memory eviction layer.
type S3FIFOCache struct {
	mu sync.Mutex

	capacity int // S + M max items
	sTarget  int // desired S queue size (~10%)
	ghostCap int // maximum ghost set cardinality

	entries map[string]*s3fifoEntry

	sQueue *list.List
	mQueue *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing PersistentCache
	log     *logger.Logger
}

// NewS3FIFOCache returns a PersistentCache that applies S3-FIFO eviction in
// front of backing. capacity is the maximum number of items kept in memory
// (and, transitively, on disk); values < 2 are clamped to 2. log may be nil.
func NewS3FIFOCache(backing PersistentCache, capacity int, log *logger.Logger) *S3FIFOCache {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	if log != nil {
		log.Infof("cache_init", "S3-FIFO cache capacity=%d sTarget=%d ghostCap=%d", capacity, sTarget, ghostCap)
	}
	return &S3FIFOCache{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*s3fifoEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
		log:      log,
	}
}

// Get returns the value for key. A memory hit increments the frequency
// counter; a memory miss falls through to the backing store and, on a hit
// there, re-warms the entry into memory.
func (c *S3FIFOCache) Get(key string) (string, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.freq < 3 {
			e.freq++
		}
		v := e.value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	value, ok := c.backing.Get(key)
	if !ok {
		return "", false
	}
	c.insertLocked(key, value)
	return value, true
}

// Set stores key -> value in memory and in the backing store. If the key is
// already resident, only its value is updated; queue position is unchanged.
func (c *S3FIFOCache) Set(key, value string) {
	c.insertLocked(key, value)
	c.backing.Set(key, value)
}

// Delete removes key from memory and from the backing store.
func (c *S3FIFOCache) Delete(key string) {
	c.mu.Lock()
	c.removeFromMemory(key)
	c.mu.Unlock()
	c.backing.Delete(key)
}

// Close closes the backing store. In-memory state is discarded.
func (c *S3FIFOCache) Close() error {
	return c.backing.Close()
}

func (c *S3FIFOCache) insertLocked(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &s3fifoEntry{value: value, freq: 0, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

// evictOne must be called with c.mu held.
func (c *S3FIFOCache) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

// evictFromS must be called with c.mu held.
func (c *S3FIFOCache) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.sQueue.Remove(front)
		return
	}
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		mTarget := c.capacity - c.sTarget
		if c.mQueue.Len() > mTarget {
			c.evictFromM()
		}
	} else {
		delete(c.entries, key)
		c.ghostAdd(key)
		go c.backing.Delete(key)
	}
}

// evictFromM must be called with c.mu held.
func (c *S3FIFOCache) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.mQueue.Remove(front)
		return
	}
	c.mQueue.Remove(front)
	delete(c.entries, key)
	go c.backing.Delete(key)
}

// removeFromMemory must be called with c.mu held.
func (c *S3FIFOCache) removeFromMemory(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

func (c *S3FIFOCache) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *S3FIFOCache) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}

	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}

	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
