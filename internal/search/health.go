package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"streamgate/addonservice/internal/metrics"
)

const (
	indexerFailureThreshold = 3
	indexerBlockBase        = 2 * time.Minute
	indexerBlockMax         = 15 * time.Minute
)

type indexerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
}

// IndexerStatus is the diagnostics view of one indexer's recent behavior.
type IndexerStatus struct {
	ID                  string     `json:"id"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
}

func (s *Service) isIndexerBlocked(indexerID string, now time.Time) (bool, time.Time) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[indexerID]
	if state == nil || state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}
	}
	return true, state.blockedUntil
}

func (s *Service) recordIndexerResult(indexerID string, err error, latency time.Duration, now time.Time) {
	id := strings.ToLower(strings.TrimSpace(indexerID))
	if id == "" {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[id]
	if state == nil {
		state = &indexerHealth{}
		s.health[id] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.IndexerRequestDuration.WithLabelValues(id).Observe(latency.Seconds())
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.IndexerRequestsTotal.WithLabelValues(id, "ok").Inc()
		metrics.IndexerAvailable.WithLabelValues(id).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if isTimeoutLikeError(err) {
		status = "timeout"
	}
	metrics.IndexerRequestsTotal.WithLabelValues(id, status).Inc()

	if state.consecutiveFailures >= indexerFailureThreshold {
		state.blockedUntil = now.Add(blockDuration(state.consecutiveFailures))
		metrics.IndexerAvailable.WithLabelValues(id).Set(0)
	}
}

// blockDuration doubles the block window for each failure past the
// threshold, capped at indexerBlockMax.
func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - indexerFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := indexerBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > indexerBlockMax {
			return indexerBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// IndexerDiagnostics lists per-indexer health for the diagnostics endpoint.
func (s *Service) IndexerDiagnostics() []IndexerStatus {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]IndexerStatus, 0, len(s.indexers))
	for _, client := range s.indexers {
		status := IndexerStatus{ID: client.ID()}
		if state := s.health[client.ID()]; state != nil {
			status.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				until := state.blockedUntil
				status.BlockedUntil = &until
			}
			status.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				at := state.lastSuccessAt
				status.LastSuccessAt = &at
			}
			if !state.lastFailureAt.IsZero() {
				at := state.lastFailureAt
				status.LastFailureAt = &at
			}
			status.LastLatencyMS = state.lastLatency.Milliseconds()
			status.TotalRequests = state.totalRequests
			status.TotalFailures = state.totalFailures
		}
		items = append(items, status)
	}
	return items
}
