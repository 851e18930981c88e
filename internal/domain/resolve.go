package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports an unknown torrentId at resolution time. It is a
// user-actionable "search again" condition, distinct from provider failures.
var ErrNotFound = errors.New("torrent info not found")

// TorrentInfoRecord holds the resolution inputs captured when a client selects
// a search result. Keyed by the torrent id, durable across restarts.
type TorrentInfoRecord struct {
	TorrentID string    `json:"torrentId"`
	Link      string    `json:"link,omitempty"`
	MagnetURI string    `json:"magnetUri,omitempty"`
	InfoHash  string    `json:"infoHash,omitempty"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// FailureKind is the fixed debrid failure taxonomy. Provider-specific errors
// are normalized into one of these kinds; each is terminal for the call.
type FailureKind string

const (
	FailureNotReady      FailureKind = "NOT_READY"
	FailureExpiredAPIKey FailureKind = "EXPIRED_API_KEY"
	FailureNotPremium    FailureKind = "NOT_PREMIUM"
	FailureAccessDenied  FailureKind = "ACCESS_DENIED"
	FailureTwoFactorAuth FailureKind = "TWO_FACTOR_AUTH"
)

// ResolveError carries a normalized failure kind from a debrid provider.
type ResolveError struct {
	Kind     FailureKind
	Provider string
	Message  string
}

func (e *ResolveError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// ResolveFailure returns the failure kind carried by err, if any.
func ResolveFailure(err error) (FailureKind, bool) {
	var resolveErr *ResolveError
	if errors.As(err, &resolveErr) {
		return resolveErr.Kind, true
	}
	return "", false
}
