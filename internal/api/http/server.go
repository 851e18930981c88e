package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/search"
)

type CatalogService interface {
	SearchCatalog(ctx context.Context, query string, rawType string) ([]domain.ClassifiedItem, error)
	BrowseCatalog(ctx context.Context, rawType string) ([]domain.ClassifiedItem, error)
	SearchAllTorrents(ctx context.Context, indexerIDs []string, query string) ([]domain.CanonicalTorrent, error)
	Indexers() []string
	IndexerDiagnostics() []search.IndexerStatus
}

type InfoStore interface {
	Put(ctx context.Context, record domain.TorrentInfoRecord) error
	Get(ctx context.Context, torrentID string) (domain.TorrentInfoRecord, error)
}

type Resolver interface {
	Resolve(ctx context.Context, torrentID string) (string, error)
	ProviderName() string
}

type Server struct {
	catalog        CatalogService
	store          InfoStore
	resolver       Resolver
	resolveTimeout time.Duration
	logger         *slog.Logger
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithResolver(resolver Resolver) ServerOption {
	return func(s *Server) {
		s.resolver = resolver
	}
}

// WithResolveTimeout bounds how long a single /download request may spend
// waiting on the debrid provider. Zero means no bound beyond the request
// context.
func WithResolveTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.resolveTimeout = timeout
	}
}

func NewServer(catalog CatalogService, store InfoStore, options ...ServerOption) *Server {
	server := &Server{
		catalog: catalog,
		store:   store,
		logger:  slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/manifest.json", s.handleManifest)
	mux.HandleFunc("/indexers", s.handleIndexers)
	mux.HandleFunc("/catalog/", s.handleCatalog)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/download/", s.handleDownload)
	mux.HandleFunc("/search", s.handleSearch)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "addon-service",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          "com.streamgate.addon",
		"version":     "1.0.0",
		"name":        "StreamGate",
		"description": "Torrent indexer aggregation with debrid resolution",
		"resources":   []string{"catalog", "stream"},
		"types":       []string{"movie", "series"},
		"catalogs": []map[string]any{
			{"type": "movie", "id": "streamgate-movies", "extra": []map[string]any{{"name": "search"}}},
			{"type": "series", "id": "streamgate-series", "extra": []map[string]any{{"name": "search"}}},
		},
	})
}

func (s *Server) handleIndexers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indexers":    s.catalog.Indexers(),
		"diagnostics": s.catalog.IndexerDiagnostics(),
	})
}

// handleSearch is the raw search API: /search?q=...&type=...&indexers=a,b
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}

	if indexers := parseCSV(r.URL.Query().Get("indexers")); len(indexers) > 0 {
		torrents, err := s.catalog.SearchAllTorrents(r.Context(), indexers, query)
		if err != nil {
			if errors.Is(err, search.ErrUnknownIndexer) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": torrents})
		return
	}

	items, err := s.catalog.SearchCatalog(r.Context(), query, r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": items})
}

// handleCatalog serves /catalog/{type}/{id}.json and the search extra variant
// /catalog/{type}/{id}/search={query}.json.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	contentType, _, extra, ok := parseAddonPath(r.URL.Path, "/catalog/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	query := extra["search"]
	var (
		items []domain.ClassifiedItem
		err   error
	)
	if query != "" {
		items, err = s.catalog.SearchCatalog(r.Context(), query, contentType)
	} else {
		items, err = s.catalog.BrowseCatalog(r.Context(), contentType)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog lookup failed")
		return
	}

	metas := make([]map[string]any, 0, len(items))
	for _, item := range items {
		meta := map[string]any{
			"id":   item.StableID,
			"type": string(item.ContentType),
			"name": item.DisplayTitle,
		}
		if item.Year > 0 {
			meta["releaseInfo"] = item.Year
		}
		metas = append(metas, meta)
	}
	writeJSON(w, http.StatusOK, map[string]any{"metas": metas})
}

type streamEntry struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	InfoHash    string `json:"infoHash,omitempty"`
	Description string `json:"description,omitempty"`
}

// handleStream serves /stream/{type}/{id}.json. The id is an IMDb id
// (optionally with :season:episode suffixes) or a namespaced stable id.
// Every emitted stream URL points at /download/{torrentId}; the matching
// record is persisted before the response is written so a later download
// call survives a restart.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	contentType, id, _, ok := parseAddonPath(r.URL.Path, "/stream/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}

	imdbID := domain.ExtractIMDBID(id)
	query := imdbID
	if query == "" {
		query = id
	}

	items, err := s.catalog.SearchCatalog(r.Context(), query, contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream lookup failed")
		return
	}

	base := requestBaseURL(r)
	streams := make([]streamEntry, 0, len(items))
	for _, item := range items {
		if imdbID != "" && item.IMDBID != "" && item.IMDBID != imdbID {
			continue
		}
		torrentID := domain.TorrentID(item.GUID, item.Link, item.MagnetURI)
		if torrentID == "" {
			continue
		}
		record := domain.TorrentInfoRecord{
			TorrentID: torrentID,
			Link:      item.Link,
			MagnetURI: item.MagnetURI,
			InfoHash:  item.InfoHash,
			Name:      item.Title,
			SizeBytes: item.SizeBytes,
		}
		if err := s.store.Put(r.Context(), record); err != nil {
			s.logger.Warn("failed to persist torrent info",
				slog.String("torrent_id", torrentID),
				slog.String("error", err.Error()))
			continue
		}
		title := item.DisplayTitle
		if item.SizeBytes > 0 {
			title += "\n" + domain.FormatSize(item.SizeBytes)
		}
		streams = append(streams, streamEntry{
			Name:        item.TrackerName,
			Title:       title,
			URL:         base + "/download/" + torrentID,
			InfoHash:    item.InfoHash,
			Description: describeStream(item),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

// handleDownload resolves /download/{torrentId} through the debrid provider
// and redirects to the direct link. Each failure kind maps to a distinct
// response so clients can present an actionable message.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	torrentID := strings.TrimPrefix(r.URL.Path, "/download/")
	if torrentID == "" || strings.Contains(torrentID, "/") {
		http.NotFound(w, r)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "no_provider", "no debrid provider is configured")
		return
	}

	ctx := r.Context()
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}

	link, err := s.resolver.Resolve(ctx, torrentID)
	if err != nil {
		s.writeResolveFailure(w, torrentID, err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (s *Server) writeResolveFailure(w http.ResponseWriter, torrentID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown_torrent", "torrent selection expired, search again")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "resolve_timeout", "debrid resolution took too long, retry shortly")
		return
	}
	kind, ok := domain.ResolveFailure(err)
	if !ok {
		s.logger.Error("resolution failed",
			slog.String("torrent_id", torrentID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "resolve_failed", "debrid resolution failed")
		return
	}

	s.logger.Warn("resolution rejected",
		slog.String("torrent_id", torrentID),
		slog.String("kind", string(kind)),
		slog.String("provider", s.resolver.ProviderName()))

	switch kind {
	case domain.FailureNotReady:
		writeError(w, http.StatusAccepted, string(kind), "the torrent is being fetched by the provider, retry shortly")
	case domain.FailureExpiredAPIKey:
		writeError(w, http.StatusUnauthorized, string(kind), "the debrid api key expired, update it and retry")
	case domain.FailureNotPremium:
		writeError(w, http.StatusPaymentRequired, string(kind), "a premium debrid subscription is required")
	case domain.FailureTwoFactorAuth:
		writeError(w, http.StatusForbidden, string(kind), "the debrid account requires a verification step")
	case domain.FailureAccessDenied:
		writeError(w, http.StatusForbidden, string(kind), "the debrid provider denied access")
	default:
		writeError(w, http.StatusBadGateway, string(kind), "debrid resolution failed")
	}
}

func describeStream(item domain.ClassifiedItem) string {
	parts := make([]string, 0, 3)
	if item.Seeders > 0 {
		parts = append(parts, fmt.Sprintf("%d seeders", item.Seeders))
	}
	if item.SizeBytes > 0 {
		parts = append(parts, domain.FormatSize(item.SizeBytes))
	}
	if item.TrackerName != "" {
		parts = append(parts, item.TrackerName)
	}
	return strings.Join(parts, " | ")
}

// parseAddonPath splits "{prefix}{type}/{id}.json" or
// "{prefix}{type}/{id}/{extraKey}={extraValue}.json" into parts.
func parseAddonPath(path, prefix string) (contentType, id string, extra map[string]string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || !strings.HasSuffix(rest, ".json") {
		return "", "", nil, false
	}
	rest = strings.TrimSuffix(rest, ".json")
	segments := strings.Split(rest, "/")
	if len(segments) < 2 || len(segments) > 3 {
		return "", "", nil, false
	}

	contentType = segments[0]
	id = segments[1]
	extra = map[string]string{}
	if len(segments) == 3 {
		for _, pair := range strings.Split(segments[2], "&") {
			key, value, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			if decoded, err := url.PathUnescape(value); err == nil {
				value = decoded
			}
			extra[key] = value
		}
	}
	return contentType, id, extra, true
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
