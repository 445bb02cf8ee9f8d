// Package store persists track display metadata behind an in-memory LRU and a
// Bloom filter of known ids.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

// Backend is the durable layer behind MetadataCache.
type Backend interface {
	Get(ctx context.Context, id string) (core.TrackMetadata, bool, error)
	Put(ctx context.Context, id string, meta core.TrackMetadata) error
	IDs(ctx context.Context) ([]string, error)
	Close() error
}

// MetadataCache implements core.MetadataCache. Reads hit the LRU first; ids the
// Bloom filter has never seen skip the backend entirely.
type MetadataCache struct {
	backend Backend
	lru     *lru.Cache[string, core.TrackMetadata]
	logger  *zap.Logger

	mutex sync.RWMutex
	bloom *bloom.BloomFilter
}

// NewMetadataCache wraps backend. Call Load to warm the filter from stored ids.
func NewMetadataCache(backend Backend, config *core.StoreConfig, logger *zap.Logger) (*MetadataCache, error) {
	size := config.CacheSize
	if size <= 0 {
		size = core.DefaultMetadataCacheSize
	}
	lruCache, err := lru.New[string, core.TrackMetadata](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata LRU: %w", err)
	}

	capacity := config.BloomCapacity
	if capacity <= 0 {
		capacity = core.DefaultMetadataBloomCapacity
	}
	fp := config.BloomFalsePositive
	if fp <= 0 || fp >= 1 {
		fp = core.DefaultBloomFalsePositive
	}

	return &MetadataCache{
		backend: backend,
		lru:     lruCache,
		logger:  logger,
		bloom:   bloom.NewWithEstimates(uint(capacity), fp),
	}, nil
}

// Load adds every id the backend holds to the Bloom filter.
func (c *MetadataCache) Load(ctx context.Context) error {
	ids, err := c.backend.IDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored ids: %w", err)
	}

	c.mutex.Lock()
	for _, id := range ids {
		if id != "" {
			c.bloom.AddString(id)
		}
	}
	c.mutex.Unlock()

	c.logger.Info("Metadata cache warmed", zap.Int("ids", len(ids)))
	return nil
}

func (c *MetadataCache) mayContain(id string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.bloom.TestString(id)
}

func (c *MetadataCache) remember(id string) {
	c.mutex.Lock()
	c.bloom.AddString(id)
	c.mutex.Unlock()
}

// Get returns stored metadata for id. Backend failures count as a miss.
func (c *MetadataCache) Get(ctx context.Context, id string) (core.TrackMetadata, bool) {
	if id == "" {
		return core.TrackMetadata{}, false
	}
	if meta, ok := c.lru.Get(id); ok {
		return meta, true
	}
	if !c.mayContain(id) {
		return core.TrackMetadata{}, false
	}

	meta, ok, err := c.backend.Get(ctx, id)
	if err != nil {
		c.logger.Warn("Metadata lookup failed", zap.String("id", id), zap.Error(err))
		return core.TrackMetadata{}, false
	}
	if !ok {
		return core.TrackMetadata{}, false
	}
	c.lru.Add(id, meta)
	return meta, true
}

// Put stores meta for id, replacing any previous value.
func (c *MetadataCache) Put(ctx context.Context, id string, meta core.TrackMetadata) error {
	if id == "" {
		return fmt.Errorf("%w: empty metadata id", core.ErrValidation)
	}
	if err := c.backend.Put(ctx, id, meta); err != nil {
		return fmt.Errorf("failed to store metadata for %s: %w", id, err)
	}
	c.lru.Add(id, meta)
	c.remember(id)
	return nil
}

// Len returns the number of entries held in memory.
func (c *MetadataCache) Len() int {
	return c.lru.Len()
}

// Close closes the backend.
func (c *MetadataCache) Close() error {
	return c.backend.Close()
}

var _ core.MetadataCache = (*MetadataCache)(nil)
