// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// Cache stores collaborator responses by content key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// CacheKey derives a stable key from the collaborator kind, the model (or
// backend) that served it, and the JSON form of the input.
func CacheKey(kind Kind, model string, input any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encoding cache input: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type cachedStructurer struct {
	inner Structurer
	cache Cache
	model string
	log   *zap.Logger
}

// CachedStructurer serves repeat documents from c. Cache errors are logged
// and fall through to s.
func CachedStructurer(s Structurer, c Cache, model string, log *zap.Logger) Structurer {
	if log == nil {
		log = zap.NewNop()
	}
	return &cachedStructurer{inner: s, cache: c, model: model, log: log}
}

func (c *cachedStructurer) Structure(ctx context.Context, doc Document) (types.Record, error) {
	key, err := CacheKey(KindStructuring, c.model, doc)
	if err != nil {
		return c.inner.Structure(ctx, doc)
	}

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("collab: cache read failed", zap.String("ref", doc.Ref), zap.Error(err))
	} else if ok {
		var rec types.Record
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			c.log.Debug("collab: cache hit", zap.String("kind", string(KindStructuring)), zap.String("ref", doc.Ref))
			return rec, nil
		}
	}

	rec, err := c.inner.Structure(ctx, doc)
	if err != nil {
		return rec, err
	}
	if data, err := json.Marshal(rec); err == nil {
		if err := c.cache.Put(ctx, key, string(data)); err != nil {
			c.log.Warn("collab: cache write failed", zap.String("ref", doc.Ref), zap.Error(err))
		}
	}
	return rec, nil
}

type cachedNarrator struct {
	inner Narrator
	cache Cache
	model string
	log   *zap.Logger
}

// CachedNarrator serves repeat narrative requests from c.
func CachedNarrator(n Narrator, c Cache, model string, log *zap.Logger) Narrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &cachedNarrator{inner: n, cache: c, model: model, log: log}
}

func (c *cachedNarrator) Narrate(ctx context.Context, req NarrativeRequest) (string, error) {
	key, err := CacheKey(KindNarrative, c.model, req)
	if err != nil {
		return c.inner.Narrate(ctx, req)
	}

	if text, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("collab: cache read failed", zap.String("role", string(req.Role)), zap.Error(err))
	} else if ok && text != "" {
		return text, nil
	}

	text, err := c.inner.Narrate(ctx, req)
	if err != nil || text == "" {
		return text, err
	}
	if err := c.cache.Put(ctx, key, text); err != nil {
		c.log.Warn("collab: cache write failed", zap.String("role", string(req.Role)), zap.Error(err))
	}
	return text, nil
}

// MemoryCache is an in-process Cache safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}
