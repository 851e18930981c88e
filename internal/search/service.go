package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/indexer"
)

var ErrUnknownIndexer = errors.New("unknown indexer")

const (
	// Per-indexer search budget. A slow indexer is cut off and contributes an
	// empty result set; it never fails the batch.
	defaultIndexerTimeout = 7 * time.Second

	defaultCacheTTL = time.Hour

	maxSearchResults  = 30
	maxCatalogResults = 100

	// Queries shorter than this (after trimming) return an empty catalog
	// without touching the network.
	minQueryLength = 2
)

// Service aggregates search results from the configured indexers into
// classified, deduplicated catalogs.
type Service struct {
	indexers  []*indexer.Client
	byID      map[string]*indexer.Client
	timeout   time.Duration
	cacheTTL  time.Duration
	cacheMu   sync.RWMutex
	cache     map[string]*cachedCatalog
	redis     *RedisCacheBackend
	healthMu  sync.Mutex
	health    map[string]*indexerHealth
	janitorOn atomic.Bool
}

type ServiceOption func(*Service)

func WithIndexerTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redis = backend
	}
}

func NewService(indexers []*indexer.Client, opts ...ServiceOption) *Service {
	byID := make(map[string]*indexer.Client, len(indexers))
	ordered := make([]*indexer.Client, 0, len(indexers))
	for _, client := range indexers {
		if client == nil || client.ID() == "" {
			continue
		}
		if _, exists := byID[client.ID()]; exists {
			continue
		}
		byID[client.ID()] = client
		ordered = append(ordered, client)
	}

	svc := &Service{
		indexers: ordered,
		byID:     byID,
		timeout:  defaultIndexerTimeout,
		cacheTTL: defaultCacheTTL,
		cache:    make(map[string]*cachedCatalog),
		health:   make(map[string]*indexerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// StartBackground launches the cache janitor. Stopped by ctx cancellation.
func (s *Service) StartBackground(ctx context.Context) {
	if s.janitorOn.CompareAndSwap(false, true) {
		go s.runJanitor(ctx)
	}
}

// SearchCatalog returns the classified catalog for an ad-hoc search: merged
// across all indexers, deduplicated, filtered to the requested type (both
// kinds retained in mixed mode), sorted by seeders descending.
func (s *Service) SearchCatalog(ctx context.Context, query string, rawType string) ([]domain.ClassifiedItem, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < minQueryLength {
		return []domain.ClassifiedItem{}, nil
	}
	requested := domain.NormalizeContentType(rawType)

	items := s.aggregate(ctx, trimmed, requested)
	items = FilterByType(items, requested)
	SortBySeeders(items)
	return Truncate(items, maxSearchResults), nil
}

// BrowseCatalog returns the latest-feed catalog for browse listings: the
// indexers are asked for their most recent items, sorted by publish date
// descending.
func (s *Service) BrowseCatalog(ctx context.Context, rawType string) ([]domain.ClassifiedItem, error) {
	requested := domain.NormalizeContentType(rawType)

	items := s.aggregate(ctx, "", requested)
	items = FilterByType(items, requested)
	SortByPublishDate(items)
	return Truncate(items, maxCatalogResults), nil
}

// aggregate serves the fan-out result for (query, type) through the result
// cache. The cached value is the unfiltered superset; type filtering and
// truncation are re-applied by the callers on every hit.
func (s *Service) aggregate(ctx context.Context, query string, requested domain.ContentType) []domain.ClassifiedItem {
	key := catalogCacheKey(query, requested)
	if cached, ok := s.cacheLookup(ctx, key, time.Now()); ok {
		return cached
	}

	raw := s.fanOut(ctx, s.indexers, query)

	classified := make([]domain.ClassifiedItem, 0, len(raw))
	for _, torrent := range raw {
		classified = append(classified, Classify(torrent))
	}
	classified = Dedupe(classified)

	s.cacheStore(ctx, key, classified, time.Now())
	return classified
}

// SearchAllTorrents performs an ad-hoc search against a subset of indexers
// and returns the normalized, deduplicated union of their canonical results.
// Unknown indexer ids are an error; indexer failures inside the batch are
// swallowed per indexer.
func (s *Service) SearchAllTorrents(ctx context.Context, indexerIDs []string, query string) ([]domain.CanonicalTorrent, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < minQueryLength {
		return []domain.CanonicalTorrent{}, nil
	}

	selected, err := s.resolveIndexers(indexerIDs)
	if err != nil {
		return nil, err
	}

	raw := s.fanOut(ctx, selected, trimmed)

	seen := make(map[string]struct{}, len(raw))
	results := make([]domain.CanonicalTorrent, 0, len(raw))
	for _, torrent := range raw {
		key := domain.StableID(torrent.IMDBID, torrent.GUID, torrent.Link, torrent.Title)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, torrent)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seeders > results[j].Seeders
	})
	return results, nil
}

func (s *Service) resolveIndexers(indexerIDs []string) ([]*indexer.Client, error) {
	if len(indexerIDs) == 0 {
		return s.indexers, nil
	}
	selected := make([]*indexer.Client, 0, len(indexerIDs))
	seen := make(map[string]struct{}, len(indexerIDs))
	for _, rawID := range indexerIDs {
		id := strings.ToLower(strings.TrimSpace(rawID))
		if id == "" {
			continue
		}
		client, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIndexer, id)
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, client)
	}
	if len(selected) == 0 {
		return s.indexers, nil
	}
	return selected, nil
}

// Indexers lists the configured indexer ids in registration order.
func (s *Service) Indexers() []string {
	ids := make([]string, 0, len(s.indexers))
	for _, client := range s.indexers {
		ids = append(ids, client.ID())
	}
	return ids
}
