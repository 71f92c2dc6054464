package cli

import (
	"time"

	"ai-deid-pipeline/internal/cache"
	"ai-deid-pipeline/internal/chunker"
	"ai-deid-pipeline/internal/config"
	"ai-deid-pipeline/internal/logger"
)

func secondsToDuration(secs int) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func chunkerCheckpoints(cfg *config.Config) *chunker.CheckpointStore {
	return chunker.NewCheckpointStore(cfg.CheckpointDir)
}

// resultCacheCapacity bounds the in-memory S3-FIFO layer in front of the
// bbolt-backed result cache.
const resultCacheCapacity = 10_000

// buildResultCache opens a bbolt-backed cache at --cache-db, fronted by an
// S3-FIFO in-memory layer, or falls back to a plain in-memory-only cache
// (cleared every run) when the flag is omitted.
func buildResultCache(log *logger.Logger) (cache.PersistentCache, error) {
	if flagCacheDBPath == "" {
		return cache.NewMemoryCache(), nil
	}
	backing, err := cache.NewBoltCache(flagCacheDBPath, log)
	if err != nil {
		return nil, err
	}
	return cache.NewS3FIFOCache(backing, resultCacheCapacity, log), nil
}
