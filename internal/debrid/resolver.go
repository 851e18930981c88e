package debrid

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/metrics"
)

// InfoStore is the subset of the torrent info store the resolver reads.
type InfoStore interface {
	Get(ctx context.Context, torrentID string) (domain.TorrentInfoRecord, error)
}

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 5
)

// Resolver turns a stored torrent id into a direct streamable link via a
// debrid provider. Resolution is bounded: a torrent the provider has not
// finished materializing within the poll budget yields a NOT_READY failure
// rather than an open-ended wait.
type Resolver struct {
	store        InfoStore
	provider     Provider
	pollInterval time.Duration
	maxPolls     int
}

type ResolverOption func(*Resolver)

func WithPollInterval(interval time.Duration) ResolverOption {
	return func(r *Resolver) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

func WithMaxPolls(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPolls = n
		}
	}
}

func NewResolver(store InfoStore, provider Provider, opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		store:        store,
		provider:     provider,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
	for _, opt := range opts {
		opt(resolver)
	}
	return resolver
}

func (r *Resolver) ProviderName() string {
	if r.provider == nil {
		return ""
	}
	return r.provider.Name()
}

// Resolve looks up the stored record for torrentID and drives it through the
// provider to a direct link. An unknown torrent id returns domain.ErrNotFound;
// provider failures come back as *domain.ResolveError.
func (r *Resolver) Resolve(ctx context.Context, torrentID string) (string, error) {
	start := time.Now()
	link, err := r.resolve(ctx, torrentID)
	r.observe(start, err)
	return link, err
}

func (r *Resolver) resolve(ctx context.Context, torrentID string) (string, error) {
	record, err := r.store.Get(ctx, torrentID)
	if err != nil {
		return "", err
	}

	handle, err := r.provider.SubmitSource(ctx, SourceFromRecord(record))
	if err != nil {
		return "", err
	}

	ready, err := r.provider.CheckReady(ctx, handle)
	if err != nil {
		return "", err
	}
	for polls := 1; !ready && polls < r.maxPolls; polls++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.pollInterval):
		}
		ready, err = r.provider.CheckReady(ctx, handle)
		if err != nil {
			return "", err
		}
	}
	if !ready {
		slog.Info("torrent not ready on provider",
			slog.String("torrent_id", torrentID),
			slog.String("provider", r.provider.Name()),
			slog.Int("polls", r.maxPolls))
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: r.provider.Name(),
			Message:  "torrent is still being fetched by the provider",
		}
	}

	return r.provider.DirectLink(ctx, handle)
}

func (r *Resolver) observe(start time.Time, err error) {
	provider := r.ProviderName()
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = "unknown_id"
	default:
		if kind, ok := domain.ResolveFailure(err); ok {
			outcome = string(kind)
		} else {
			outcome = "error"
		}
	}
	metrics.ResolveTotal.WithLabelValues(provider, outcome).Inc()
	metrics.ResolveDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
