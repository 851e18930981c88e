package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type IndexerConfig struct {
	ID       string
	Name     string
	Endpoint string
	APIKey   string
}

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
	UserAgent      string
	Indexers       []IndexerConfig
	IndexerTimeout time.Duration
	CacheTTL       time.Duration
	RedisURL       string
	DBPath         string
	StoreRetention time.Duration
	SweepInterval  time.Duration
	DebridProvider string
	DebridAPIKey   string
	ResolveTimeout time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8095"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:      getEnv("ADDON_USER_AGENT", "streamgate-addon/1.0"),
		Indexers:       parseIndexers(getEnv("INDEXERS", "")),
		IndexerTimeout: time.Duration(getEnvInt("INDEXER_TIMEOUT_SECONDS", 7)) * time.Second,
		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_MINUTES", 60)) * time.Minute,
		RedisURL:       getEnv("REDIS_URL", ""),
		DBPath:         getEnv("DB_PATH", "data/torrent-info.db"),
		StoreRetention: time.Duration(getEnvInt("STORE_RETENTION_HOURS", 48)) * time.Hour,
		SweepInterval:  time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
		DebridProvider: strings.ToLower(getEnv("DEBRID_PROVIDER", "")),
		DebridAPIKey:   strings.TrimSpace(os.Getenv("DEBRID_API_KEY")),
		ResolveTimeout: time.Duration(getEnvInt("RESOLVE_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// parseIndexers reads semicolon-separated indexer definitions of the form
// id|endpoint|apikey. The api key part is optional.
func parseIndexers(raw string) []IndexerConfig {
	entries := strings.Split(raw, ";")
	configs := make([]IndexerConfig, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) < 2 {
			continue
		}
		cfg := IndexerConfig{
			ID:       strings.ToLower(strings.TrimSpace(parts[0])),
			Name:     strings.TrimSpace(parts[0]),
			Endpoint: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			cfg.APIKey = strings.TrimSpace(parts[2])
		}
		if cfg.ID == "" || cfg.Endpoint == "" {
			continue
		}
		configs = append(configs, cfg)
	}
	return configs
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
