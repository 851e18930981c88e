package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/metrics"
)

const (
	cacheMaxEntries   = 400
	janitorInterval   = 10 * time.Minute
	cacheRedisTimeout = 2 * time.Second
)

type cachedCatalog struct {
	items     []domain.ClassifiedItem
	updatedAt time.Time
	expiresAt time.Time
}

// catalogCacheKey normalizes the query by lower-casing and trimming only.
// Queries differing in punctuation intentionally collide; downstream
// consumers rely on the looser matching.
func catalogCacheKey(query string, requested domain.ContentType) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + string(requested)
}

func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) ([]domain.ClassifiedItem, bool) {
	if s.redis != nil {
		redisCtx, cancel := context.WithTimeout(ctx, cacheRedisTimeout)
		items, found, err := s.redis.Get(redisCtx, key)
		cancel()
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			// Keep a local copy so a Redis blip does not force a fan-out.
			s.cacheStoreMemory(key, items, now)
			return items, true
		}
	}

	s.cacheMu.RLock()
	entry, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if !ok || now.After(entry.expiresAt) {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return cloneItems(entry.items), true
}

func (s *Service) cacheStore(ctx context.Context, key string, items []domain.ClassifiedItem, now time.Time) {
	if s.redis != nil {
		redisCtx, cancel := context.WithTimeout(ctx, cacheRedisTimeout)
		_ = s.redis.Set(redisCtx, key, items, s.cacheTTL)
		cancel()
	}
	s.cacheStoreMemory(key, items, now)
}

func (s *Service) cacheStoreMemory(key string, items []domain.ClassifiedItem, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedCatalog{
		items:     cloneItems(items),
		updatedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.trimCacheLocked(now)
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	if len(s.cache) <= cacheMaxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedCatalog
	}
	entries := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		entries = append(entries, pair{key: key, entry: entry})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.updatedAt.Before(entries[j].entry.updatedAt)
	})
	for i := 0; i < len(entries)-cacheMaxEntries; i++ {
		delete(s.cache, entries[i].key)
	}
}

func (s *Service) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cacheMu.Lock()
			s.trimCacheLocked(time.Now())
			s.cacheMu.Unlock()
		}
	}
}

func cloneItems(items []domain.ClassifiedItem) []domain.ClassifiedItem {
	if items == nil {
		return nil
	}
	cloned := make([]domain.ClassifiedItem, len(items))
	copy(cloned, items)
	return cloned
}
