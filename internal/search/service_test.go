package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"streamgate/addonservice/internal/indexer"
)

type testIndexer struct {
	client *indexer.Client
	hits   *atomic.Int32
}

// newTorznabIndexer spins up an httptest server that answers every search
// with the given feed items and counts how many requests it served.
func newTorznabIndexer(t *testing.T, id string, items ...string) testIndexer {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>%s</channel></rss>`,
			strings.Join(items, ""))
	}))
	t.Cleanup(server.Close)
	return testIndexer{
		client: indexer.NewClient(indexer.Config{
			ID:       id,
			Name:     id,
			Endpoint: server.URL,
			Client:   server.Client(),
		}),
		hits: hits,
	}
}

func newFailingIndexer(t *testing.T, id string) testIndexer {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	return testIndexer{
		client: indexer.NewClient(indexer.Config{
			ID:       id,
			Name:     id,
			Endpoint: server.URL,
			Client:   server.Client(),
		}),
		hits: hits,
	}
}

func feedItem(title, guid string, seeders int) string {
	return fmt.Sprintf(`<item><title>%s</title><guid>%s</guid>`+
		`<attr name="seeders" value="%d"/></item>`,
		title, guid, seeders)
}

func TestSearchCatalogShortQuerySkipsNetwork(t *testing.T) {
	idx := newTorznabIndexer(t, "one", feedItem("Movie.Name.2019.1080p", "g1", 5))
	service := NewService([]*indexer.Client{idx.client})

	for _, query := range []string{"", " ", "a", " a "} {
		items, err := service.SearchCatalog(context.Background(), query, "movie")
		if err != nil {
			t.Fatalf("SearchCatalog(%q) error: %v", query, err)
		}
		if len(items) != 0 {
			t.Errorf("SearchCatalog(%q) returned %d items, want 0", query, len(items))
		}
	}
	if got := idx.hits.Load(); got != 0 {
		t.Errorf("indexer received %d requests for short queries, want 0", got)
	}
}

func TestSearchCatalogToleratesIndexerFailure(t *testing.T) {
	good1 := newTorznabIndexer(t, "good1", feedItem("Movie.One.2019.1080p", "g1", 10))
	good2 := newTorznabIndexer(t, "good2", feedItem("Movie.Two.2020.720p", "g2", 20))
	bad := newFailingIndexer(t, "bad")

	service := NewService(
		[]*indexer.Client{good1.client, bad.client, good2.client},
		WithIndexerTimeout(2*time.Second),
	)

	items, err := service.SearchCatalog(context.Background(), "movie", "all")
	if err != nil {
		t.Fatalf("SearchCatalog error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (failing indexer swallowed)", len(items))
	}
	if items[0].Seeders < items[1].Seeders {
		t.Error("results not sorted by seeders descending")
	}
}

func TestSearchCatalogDeduplicatesByStableID(t *testing.T) {
	// Both indexers return the same (guid, link, title) triple.
	dup := feedItem("Movie.Name.2019.1080p", "shared-guid", 10)
	first := newTorznabIndexer(t, "first", dup)
	second := newTorznabIndexer(t, "second", dup)

	service := NewService([]*indexer.Client{first.client, second.client})

	items, err := service.SearchCatalog(context.Background(), "movie name", "all")
	if err != nil {
		t.Fatalf("SearchCatalog error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 after dedupe", len(items))
	}

	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.StableID] {
			t.Errorf("duplicate stableId %q in output", item.StableID)
		}
		seen[item.StableID] = true
	}
}

func TestSearchCatalogServesRepeatFromCache(t *testing.T) {
	idx := newTorznabIndexer(t, "one",
		feedItem("Movie.Name.2019.1080p", "g1", 5),
		feedItem("Show.Name.S01E03.1080p", "g2", 8),
	)
	service := NewService([]*indexer.Client{idx.client})

	movies, err := service.SearchCatalog(context.Background(), "name", "movie")
	if err != nil {
		t.Fatalf("first search error: %v", err)
	}
	if len(movies) != 1 {
		t.Fatalf("got %d movie items, want 1", len(movies))
	}
	if got := idx.hits.Load(); got != 1 {
		t.Fatalf("indexer hits = %d after first search, want 1", got)
	}

	again, err := service.SearchCatalog(context.Background(), "  NAME ", "movie")
	if err != nil {
		t.Fatalf("second search error: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("cache hit returned %d items, want 1", len(again))
	}
	if got := idx.hits.Load(); got != 1 {
		t.Errorf("indexer hits = %d after cached search, want 1 (normalized key should hit)", got)
	}
}

func TestSearchCatalogCacheExpires(t *testing.T) {
	idx := newTorznabIndexer(t, "one", feedItem("Movie.Name.2019.1080p", "g1", 5))
	service := NewService([]*indexer.Client{idx.client}, WithCacheTTL(50*time.Millisecond))

	if _, err := service.SearchCatalog(context.Background(), "movie", "all"); err != nil {
		t.Fatalf("first search error: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := service.SearchCatalog(context.Background(), "movie", "all"); err != nil {
		t.Fatalf("second search error: %v", err)
	}
	if got := idx.hits.Load(); got != 2 {
		t.Errorf("indexer hits = %d, want 2 after TTL expiry", got)
	}
}

func TestSearchCatalogCapsResults(t *testing.T) {
	items := make([]string, 0, 45)
	for i := 0; i < 45; i++ {
		items = append(items, feedItem(fmt.Sprintf("Movie.%d.2020.1080p", i), fmt.Sprintf("g%d", i), i))
	}
	idx := newTorznabIndexer(t, "one", items...)
	service := NewService([]*indexer.Client{idx.client})

	got, err := service.SearchCatalog(context.Background(), "movie", "all")
	if err != nil {
		t.Fatalf("SearchCatalog error: %v", err)
	}
	if len(got) != 30 {
		t.Fatalf("got %d items, want the 30 best-seeded", len(got))
	}
	// The cap is applied after the seeder sort, so the top seeder survives.
	if got[0].Seeders != 44 {
		t.Errorf("top item has %d seeders, want 44", got[0].Seeders)
	}
}

func TestBrowseCatalogCapsResults(t *testing.T) {
	items := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		items = append(items, feedItem(fmt.Sprintf("Release.%d.2020.1080p", i), fmt.Sprintf("g%d", i), i))
	}
	idx := newTorznabIndexer(t, "one", items...)
	service := NewService([]*indexer.Client{idx.client})

	got, err := service.BrowseCatalog(context.Background(), "all")
	if err != nil {
		t.Fatalf("BrowseCatalog error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d items, want 100", len(got))
	}
}

func TestSearchAllTorrentsUnknownIndexer(t *testing.T) {
	idx := newTorznabIndexer(t, "known", feedItem("Movie.Name.2019.1080p", "g1", 5))
	service := NewService([]*indexer.Client{idx.client})

	_, err := service.SearchAllTorrents(context.Background(), []string{"missing"}, "movie")
	if !errors.Is(err, ErrUnknownIndexer) {
		t.Fatalf("err = %v, want ErrUnknownIndexer", err)
	}
	if got := idx.hits.Load(); got != 0 {
		t.Errorf("indexer hits = %d, want 0 when selection is invalid", got)
	}
}

func TestSearchAllTorrentsSubset(t *testing.T) {
	first := newTorznabIndexer(t, "first", feedItem("Movie.One.2019.1080p", "g1", 10))
	second := newTorznabIndexer(t, "second", feedItem("Movie.Two.2020.720p", "g2", 20))
	service := NewService([]*indexer.Client{first.client, second.client})

	results, err := service.SearchAllTorrents(context.Background(), []string{"SECOND"}, "movie")
	if err != nil {
		t.Fatalf("SearchAllTorrents error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Movie.Two.2020.720p" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if got := first.hits.Load(); got != 0 {
		t.Errorf("unselected indexer received %d requests, want 0", got)
	}
}

func TestBrowseCatalogSortsByPublishDate(t *testing.T) {
	older := `<item><title>Older.Release.2018.1080p</title><guid>g1</guid>` +
		`<pubDate>Mon, 02 Jan 2023 15:04:05 +0000</pubDate></item>`
	newer := `<item><title>Newer.Release.2024.1080p</title><guid>g2</guid>` +
		`<pubDate>Tue, 02 Jan 2024 15:04:05 +0000</pubDate></item>`
	idx := newTorznabIndexer(t, "one", older, newer)
	service := NewService([]*indexer.Client{idx.client})

	items, err := service.BrowseCatalog(context.Background(), "all")
	if err != nil {
		t.Fatalf("BrowseCatalog error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if !strings.HasPrefix(items[0].Title, "Newer") {
		t.Errorf("first item = %q, want the newer release first", items[0].Title)
	}
}

func TestIndexersListsRegistrationOrder(t *testing.T) {
	first := newTorznabIndexer(t, "alpha")
	second := newTorznabIndexer(t, "beta")
	service := NewService([]*indexer.Client{first.client, second.client})

	ids := service.Indexers()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Fatalf("Indexers() = %v", ids)
	}
}
