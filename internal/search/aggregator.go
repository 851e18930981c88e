package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/indexer"
	"streamgate/addonservice/internal/metrics"
)

// maxConcurrentIndexers bounds simultaneous indexer queries so a large
// configuration does not overwhelm the host or the remote endpoints.
const maxConcurrentIndexers = 10

const fanOutFetchLimit = 100

// fanOut queries the given indexers concurrently, each under its own timeout,
// and returns the concatenated canonical results. A timeout or transport
// error on one indexer contributes an empty set for that indexer; the batch
// never fails wholesale. The calls are joined: every indexer either finishes
// or is cut off by its timeout before fanOut returns.
func (s *Service) fanOut(ctx context.Context, indexers []*indexer.Client, query string) []domain.CanonicalTorrent {
	if len(indexers) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		merged  []domain.CanonicalTorrent
		wg      sync.WaitGroup
		sem     = semaphore.NewWeighted(maxConcurrentIndexers)
		started = time.Now()
	)

	for _, client := range indexers {
		wg.Add(1)
		go func(current *indexer.Client) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			id := current.ID()
			if blocked, until := s.isIndexerBlocked(id, time.Now()); blocked {
				slog.Debug("indexer blocked, skipping",
					slog.String("indexer", id),
					slog.Time("until", until),
				)
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			callStarted := time.Now()
			var results []domain.CanonicalTorrent
			err := RetryWithBackoff(callCtx, DefaultRetryConfig(), func() error {
				var searchErr error
				results, searchErr = current.Search(callCtx, query, fanOutFetchLimit)
				return searchErr
			})
			s.recordIndexerResult(id, err, time.Since(callStarted), time.Now())

			if err != nil {
				// Upstream-transient: degrades result completeness, logged
				// here and never surfaced to the caller.
				slog.Warn("indexer search failed",
					slog.String("indexer", id),
					slog.String("query", query),
					slog.Int64("elapsedMs", time.Since(callStarted).Milliseconds()),
					slog.String("error", err.Error()),
				)
				return
			}

			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(client)
	}
	wg.Wait()

	slog.Info("indexer fan-out completed",
		slog.String("query", query),
		slog.Int("indexers", len(indexers)),
		slog.Int("results", len(merged)),
		slog.Int64("elapsedMs", time.Since(started).Milliseconds()),
	)
	metrics.FanOutDuration.Observe(time.Since(started).Seconds())
	return merged
}
