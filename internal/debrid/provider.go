package debrid

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"streamgate/addonservice/internal/domain"
)

// TorrentSource carries the inputs a provider can use to ingest a torrent.
// At least one of MagnetURI, InfoHash or Link must be set.
type TorrentSource struct {
	Name      string
	MagnetURI string
	InfoHash  string
	Link      string
}

// Magnet returns the best magnet representation of the source: the stored
// magnet when present, otherwise one synthesized from the info hash.
func (s TorrentSource) Magnet() string {
	if s.MagnetURI != "" {
		return s.MagnetURI
	}
	if s.InfoHash != "" {
		return "magnet:?xt=urn:btih:" + strings.ToLower(s.InfoHash)
	}
	return ""
}

// SourceFromRecord maps a stored torrent info record to provider inputs.
func SourceFromRecord(record domain.TorrentInfoRecord) TorrentSource {
	return TorrentSource{
		Name:      record.Name,
		MagnetURI: record.MagnetURI,
		InfoHash:  record.InfoHash,
		Link:      record.Link,
	}
}

// Provider is a debrid service capable of turning a torrent into a direct
// HTTP link. Implementations normalize provider API failures into
// *domain.ResolveError values so callers can branch on the failure kind.
type Provider interface {
	Name() string

	// SubmitSource ingests the torrent and returns a provider handle for
	// later status checks. Submitting an already-known torrent is not an
	// error.
	SubmitSource(ctx context.Context, source TorrentSource) (handle string, err error)

	// CheckReady reports whether the torrent behind handle has finished
	// materializing on the provider.
	CheckReady(ctx context.Context, handle string) (bool, error)

	// DirectLink returns a directly streamable HTTP URL for the largest
	// video file behind handle.
	DirectLink(ctx context.Context, handle string) (string, error)
}

type providerFactory func(apiKey string) Provider

var (
	registryMu sync.RWMutex
	registry   = map[string]providerFactory{}
)

// RegisterProvider registers a provider factory under a lowercase name.
// Called from provider init functions.
func RegisterProvider(name string, factory providerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// NewProvider builds a registered provider by name.
func NewProvider(name, apiKey string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown debrid provider %q (have: %s)", name, strings.Join(ProviderNames(), ", "))
	}
	return factory(apiKey), nil
}

// ProviderNames lists registered provider names, sorted.
func ProviderNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
