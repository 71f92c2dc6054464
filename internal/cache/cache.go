// Package cache provides a persistent, process-restart-surviving key/value
// store. Its one consumer is the PHI identifier (prompt hash -> detection
// result); the retriever and the chunk processor do not use it. With a
// configured path the store is a bbolt-backed disk store bounded by an
// S3-FIFO in-memory layer; without one it is an in-memory map with no
// S3-FIFO layer.
//
// Two implementations are provided:
//   - memoryCache — in-memory only, used in tests and when no path is configured.
//   - boltCache   — embedded key-value store (bbolt), used in production.
package cache

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"ai-deid-pipeline/internal/logger"
)

// PersistentCache is the cross-run key/value cache interface. Values are
// opaque strings; callers that need structured values marshal to JSON
// themselves. All implementations must be safe for concurrent use.
type PersistentCache interface {
	// Get returns the cached value for key, if present.
	Get(key string) (value string, ok bool)

	// Set stores key -> value, overwriting any existing entry.
	Set(key, value string)

	// Delete removes key, if present. A no-op if key is absent.
	Delete(key string)

	// Close releases any resources held by the cache (e.g. file handles).
	Close() error
}

// --- memoryCache ---------------------------------------------------------

// memoryCache is a thread-safe in-memory PersistentCache, used in tests and
// as the implementation when no bbolt path is configured.
type memoryCache struct {
	mu    sync.RWMutex
	store map[string]string
}

// NewMemoryCache returns an in-memory PersistentCache with no eviction.
func NewMemoryCache() PersistentCache {
	return &memoryCache{store: make(map[string]string)}
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key, value string) {
	c.mu.Lock()
	c.store[key] = value
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- boltCache -------------------------------------------------------------

const boltBucket = "deid_cache"

// boltCache is a PersistentCache backed by an embedded bbolt database.
// Entries survive process restarts. The database file is created at the
// given path if it does not exist.
type boltCache struct {
	db  *bolt.DB
	log *logger.Logger
}

// NewBoltCache opens (or creates) the bbolt database at path and ensures the
// bucket exists. log may be nil to disable logging.
func NewBoltCache(path string, log *logger.Logger) (PersistentCache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open bbolt %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	if log != nil {
		log.Infof("cache_open", "persistent cache opened at %s", path)
	}
	return &boltCache{db: db, log: log}, nil
}

func (c *boltCache) Get(key string) (string, bool) {
	var value string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	if err != nil {
		c.logErrorf("bbolt Get error: %v", err)
		return "", false
	}
	return value, value != ""
}

func (c *boltCache) Set(key, value string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", boltBucket)
		}
		return b.Put([]byte(key), []byte(value))
	}); err != nil {
		c.logErrorf("bbolt Set error: %v", err)
	}
}

func (c *boltCache) Delete(key string) {
	if err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		c.logErrorf("bbolt Delete error: %v", err)
	}
}

func (c *boltCache) Close() error {
	return c.db.Close()
}

func (c *boltCache) logErrorf(format string, args ...any) {
	if c.log != nil {
		c.log.Errorf("cache_error", format, args...)
	}
}
