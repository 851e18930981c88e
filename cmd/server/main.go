package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "streamgate/addonservice/internal/api/http"
	"streamgate/addonservice/internal/app"
	"streamgate/addonservice/internal/debrid"
	"streamgate/addonservice/internal/indexer"
	"streamgate/addonservice/internal/metrics"
	"streamgate/addonservice/internal/search"
	"streamgate/addonservice/internal/telemetry"
	"streamgate/addonservice/internal/torrentinfo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "addon-service", "1.0.0")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "addon-service"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Int("indexers", len(cfg.Indexers)),
		slog.Duration("indexerTimeout", cfg.IndexerTimeout),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.String("dbPath", cfg.DBPath),
		slog.String("debridProvider", cfg.DebridProvider),
	)

	indexerClients := make([]*indexer.Client, 0, len(cfg.Indexers))
	for _, ic := range cfg.Indexers {
		indexerClients = append(indexerClients, indexer.NewClient(indexer.Config{
			ID:        ic.ID,
			Name:      ic.Name,
			Endpoint:  ic.Endpoint,
			APIKey:    ic.APIKey,
			UserAgent: cfg.UserAgent,
			Client: &http.Client{
				Timeout:   cfg.IndexerTimeout + time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		}))
	}
	if len(indexerClients) == 0 {
		logger.Warn("no indexers configured, searches will return empty results")
	}

	searchService := search.NewService(indexerClients, buildServiceOptions(cfg, logger)...)

	store, err := torrentinfo.Open(cfg.DBPath, cfg.StoreRetention)
	if err != nil {
		logger.Error("failed to open torrent info store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	serverOpts := []apihttp.ServerOption{apihttp.WithLogger(logger)}
	if resolver := buildResolver(cfg, store, logger); resolver != nil {
		serverOpts = append(serverOpts,
			apihttp.WithResolver(resolver),
			apihttp.WithResolveTimeout(cfg.ResolveTimeout),
		)
	}

	handler := apihttp.NewServer(searchService, store, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Debrid resolution can exceed short write timeouts while polling.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)
	go store.RunSweeper(rootCtx, cfg.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("addon service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("indexerTimeout", cfg.IndexerTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("addon service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithIndexerTimeout(cfg.IndexerTimeout),
		search.WithCacheTTL(cfg.CacheTTL),
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}

	return opts
}

func buildResolver(cfg app.Config, store *torrentinfo.Store, logger *slog.Logger) *debrid.Resolver {
	if cfg.DebridProvider == "" {
		logger.Info("debrid provider not configured, download endpoint disabled")
		return nil
	}
	provider, err := debrid.NewProvider(cfg.DebridProvider, cfg.DebridAPIKey)
	if err != nil {
		logger.Warn("debrid provider unavailable", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("debrid provider initialized", slog.String("provider", provider.Name()))
	return debrid.NewResolver(store, provider)
}
