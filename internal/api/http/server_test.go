package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/search"
)

type fakeCatalog struct {
	items      []domain.ClassifiedItem
	lastQuery  string
	lastType   string
	browseHits int
}

func (f *fakeCatalog) SearchCatalog(_ context.Context, query, rawType string) ([]domain.ClassifiedItem, error) {
	f.lastQuery, f.lastType = query, rawType
	return f.items, nil
}

func (f *fakeCatalog) BrowseCatalog(_ context.Context, rawType string) ([]domain.ClassifiedItem, error) {
	f.browseHits++
	f.lastType = rawType
	return f.items, nil
}

func (f *fakeCatalog) SearchAllTorrents(_ context.Context, indexerIDs []string, query string) ([]domain.CanonicalTorrent, error) {
	torrents := make([]domain.CanonicalTorrent, 0, len(f.items))
	for _, item := range f.items {
		torrents = append(torrents, item.CanonicalTorrent)
	}
	return torrents, nil
}

func (f *fakeCatalog) Indexers() []string { return []string{"one"} }

func (f *fakeCatalog) IndexerDiagnostics() []search.IndexerStatus {
	return []search.IndexerStatus{{ID: "one"}}
}

type memStore struct {
	records map[string]domain.TorrentInfoRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[string]domain.TorrentInfoRecord{}}
}

func (s *memStore) Put(_ context.Context, record domain.TorrentInfoRecord) error {
	s.records[record.TorrentID] = record
	return nil
}

func (s *memStore) Get(_ context.Context, torrentID string) (domain.TorrentInfoRecord, error) {
	record, ok := s.records[torrentID]
	if !ok {
		return domain.TorrentInfoRecord{}, domain.ErrNotFound
	}
	return record, nil
}

type fakeResolver struct {
	link string
	err  error
}

func (r *fakeResolver) Resolve(_ context.Context, _ string) (string, error) {
	return r.link, r.err
}

func (r *fakeResolver) ProviderName() string { return "fake" }

func sampleItems() []domain.ClassifiedItem {
	return []domain.ClassifiedItem{
		{
			CanonicalTorrent: domain.CanonicalTorrent{
				Title:       "Movie.Name.2019.1080p",
				GUID:        "guid-1",
				Link:        "https://tracker.example/dl/1",
				InfoHash:    "0011223344556677889900112233445566778899",
				SizeBytes:   734003200,
				Seeders:     55,
				TrackerName: "test",
				IMDBID:      "tt0903747",
				Year:        2019,
			},
			ContentType:  domain.ContentTypeMovie,
			StableID:     "tt0903747",
			DisplayTitle: "Movie Name",
		},
	}
}

func newTestServer(catalog CatalogService, store InfoStore, opts ...ServerOption) http.Handler {
	return NewServer(catalog, store, opts...).Handler()
}

func TestManifestEndpoint(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manifest.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var manifest map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest["id"] == "" {
		t.Error("manifest missing id")
	}
}

func TestCatalogSearchExtra(t *testing.T) {
	catalog := &fakeCatalog{items: sampleItems()}
	handler := newTestServer(catalog, newMemStore())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/catalog/movie/streamgate-movies/search=movie%20name.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if catalog.lastQuery != "movie name" {
		t.Errorf("query = %q, want decoded search extra", catalog.lastQuery)
	}
	if catalog.lastType != "movie" {
		t.Errorf("type = %q, want movie", catalog.lastType)
	}

	var payload struct {
		Metas []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"metas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Metas) != 1 || payload.Metas[0].ID != "tt0903747" {
		t.Fatalf("metas = %+v", payload.Metas)
	}
}

func TestCatalogWithoutSearchUsesBrowse(t *testing.T) {
	catalog := &fakeCatalog{items: sampleItems()}
	handler := newTestServer(catalog, newMemStore())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/series/streamgate-series.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if catalog.browseHits != 1 {
		t.Errorf("browseHits = %d, want 1", catalog.browseHits)
	}
}

func TestStreamPersistsTorrentInfo(t *testing.T) {
	catalog := &fakeCatalog{items: sampleItems()}
	store := newMemStore()
	handler := newTestServer(catalog, store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/movie/tt0903747.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Streams []struct {
			URL string `json:"url"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(payload.Streams))
	}
	url := payload.Streams[0].URL
	idx := strings.LastIndex(url, "/download/")
	if idx < 0 {
		t.Fatalf("stream url %q does not point at the download endpoint", url)
	}
	torrentID := url[idx+len("/download/"):]
	if _, err := store.Get(context.Background(), torrentID); err != nil {
		t.Errorf("torrent info for %q was not persisted: %v", torrentID, err)
	}
}

func TestDownloadRedirectsOnSuccess(t *testing.T) {
	store := newMemStore()
	store.records["abc"] = domain.TorrentInfoRecord{TorrentID: "abc", Name: "x"}
	handler := newTestServer(&fakeCatalog{}, store,
		WithResolver(&fakeResolver{link: "https://cdn.example/file.mkv"}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://cdn.example/file.mkv" {
		t.Errorf("location = %q", got)
	}
}

func TestDownloadFailureMapping(t *testing.T) {
	cases := []struct {
		kind       domain.FailureKind
		wantStatus int
	}{
		{domain.FailureNotReady, http.StatusAccepted},
		{domain.FailureExpiredAPIKey, http.StatusUnauthorized},
		{domain.FailureNotPremium, http.StatusPaymentRequired},
		{domain.FailureTwoFactorAuth, http.StatusForbidden},
		{domain.FailureAccessDenied, http.StatusForbidden},
	}

	for _, tc := range cases {
		resolver := &fakeResolver{err: &domain.ResolveError{Kind: tc.kind, Provider: "fake"}}
		handler := newTestServer(&fakeCatalog{}, newMemStore(), WithResolver(resolver))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

		if rec.Code != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.kind, rec.Code, tc.wantStatus)
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: decode: %v", tc.kind, err)
		}
		if payload.Error.Code != string(tc.kind) {
			t.Errorf("%s: code = %q", tc.kind, payload.Error.Code)
		}
	}
}

func TestDownloadUnknownTorrent(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore(),
		WithResolver(&fakeResolver{err: domain.ErrNotFound}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/gone", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// blockingResolver waits for the request context to expire, like a provider
// that never finishes fetching.
type blockingResolver struct{}

func (r *blockingResolver) Resolve(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (r *blockingResolver) ProviderName() string { return "slow" }

func TestDownloadBoundedByResolveTimeout(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore(),
		WithResolver(&blockingResolver{}),
		WithResolveTimeout(30*time.Millisecond))

	start := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("request took %v, the timeout did not bound resolution", elapsed)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "resolve_timeout") {
		t.Errorf("body = %q, want a resolve_timeout error code", rec.Body.String())
	}
}

func TestDownloadWithoutResolver(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/abc", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestIndexersEndpoint(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/indexers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"one"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(&fakeCatalog{}, newMemStore())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestParseAddonPath(t *testing.T) {
	contentType, id, extra, ok := parseAddonPath("/stream/series/tt0903747:1:3.json", "/stream/")
	if !ok || contentType != "series" || id != "tt0903747:1:3" {
		t.Fatalf("parsed = (%q, %q, %v, %v)", contentType, id, extra, ok)
	}

	if _, _, _, ok := parseAddonPath("/stream/series/no-suffix", "/stream/"); ok {
		t.Error("path without .json suffix accepted")
	}
	if _, _, _, ok := parseAddonPath("/stream/onlyone.json", "/stream/"); ok {
		t.Error("path with a single segment accepted")
	}
}
