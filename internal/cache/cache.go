// Package cache memoizes encoded corpora by content fingerprint so repeated
// queries over the same scan reuse one set of vectors.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"featloc/internal/entity"
	"featloc/internal/logging"
	"featloc/internal/models"
)

// Encoder turns a store's entities into embedding records, one per entity and
// in entity order.
type Encoder interface {
	Encode(ctx context.Context, entities []*models.CodeEntity) ([]models.EmbeddingRecord, error)
}

type EncoderFunc func(ctx context.Context, entities []*models.CodeEntity) ([]models.EmbeddingRecord, error)

func (f EncoderFunc) Encode(ctx context.Context, entities []*models.CodeEntity) ([]models.EmbeddingRecord, error) {
	return f(ctx, entities)
}

// Tier is a slower store consulted on a miss before encoding and filled after.
type Tier interface {
	Load(ctx context.Context, fingerprint string, store *entity.Store) ([]models.EmbeddingRecord, bool, error)
	Store(ctx context.Context, fingerprint string, records []models.EmbeddingRecord) error
}

type Option func(*Cache)

func WithPersistentTier(t Tier) Option {
	return func(c *Cache) { c.tier = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

type Stats struct {
	Hits      int
	Misses    int
	TierHits  int
	Encodes   int
	Evictions int
}

type entry struct {
	fingerprint string
	records     []models.EmbeddingRecord
}

// Cache is an LRU of encoded corpora keyed by entity.Store fingerprint.
// Entries are never modified after insertion, so returned slices are shared
// between callers and must be treated as read-only.
type Cache struct {
	encoder  Encoder
	capacity int
	tier     Tier
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	stats   Stats

	group singleflight.Group
}

// New returns a cache holding at most capacity corpora. Capacity 1 keeps only
// the latest snapshot.
func New(encoder Encoder, capacity int, opts ...Option) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache{
		encoder:  encoder,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// Get returns the encoded corpus for store, encoding it on first use.
// Concurrent misses for one fingerprint share a single encode.
func (c *Cache) Get(ctx context.Context, store *entity.Store) ([]models.EmbeddingRecord, error) {
	fp := store.Fingerprint()
	if records, ok := c.lookup(fp); ok {
		return records, nil
	}

	v, err, _ := c.group.Do(fp, func() (any, error) {
		// another caller may have filled it between lookup and Do
		if records, ok := c.peek(fp); ok {
			return records, nil
		}
		records, err := c.fill(ctx, fp, store)
		if err != nil {
			return nil, err
		}
		c.insert(fp, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.EmbeddingRecord), nil
}

func (c *Cache) fill(ctx context.Context, fp string, store *entity.Store) ([]models.EmbeddingRecord, error) {
	if c.tier != nil {
		records, ok, err := c.tier.Load(ctx, fp, store)
		switch {
		case err != nil:
			c.logger.Warn("persistent tier load failed", "fingerprint", short(fp), "error", err)
		case ok:
			c.mu.Lock()
			c.stats.TierHits++
			c.mu.Unlock()
			c.logger.Info("loaded corpus from persistent tier", "fingerprint", short(fp), "records", len(records))
			return records, nil
		}
	}

	c.logger.Info("encoding corpus", "fingerprint", short(fp), "entities", store.Len())
	records, err := c.encoder.Encode(ctx, store.Entities())
	if err != nil {
		return nil, err
	}
	if len(records) != store.Len() {
		return nil, fmt.Errorf("%w: encoder returned %d records for %d entities",
			models.ErrCollaborator, len(records), store.Len())
	}
	c.mu.Lock()
	c.stats.Encodes++
	c.mu.Unlock()

	if c.tier != nil && len(records) > 0 {
		if err := c.tier.Store(ctx, fp, records); err != nil {
			c.logger.Warn("persistent tier store failed", "fingerprint", short(fp), "error", err)
		}
	}
	return records, nil
}

func (c *Cache) lookup(fp string) ([]models.EmbeddingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fp]; ok {
		c.order.MoveToFront(el)
		c.stats.Hits++
		return el.Value.(*entry).records, true
	}
	c.stats.Misses++
	return nil, false
}

func (c *Cache) peek(fp string) ([]models.EmbeddingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fp]; ok {
		return el.Value.(*entry).records, true
	}
	return nil, false
}

func (c *Cache) insert(fp string, records []models.EmbeddingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fp]; ok {
		c.order.MoveToFront(el)
		return
	}
	c.entries[fp] = c.order.PushFront(&entry{fingerprint: fp, records: records})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).fingerprint)
		c.stats.Evictions++
	}
}

// Invalidate drops fingerprint from memory. The persistent tier is untouched.
func (c *Cache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[fingerprint]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, fingerprint)
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the cached fingerprints, most recently used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).fingerprint)
	}
	return keys
}

func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
