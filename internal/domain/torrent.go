package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeSeries ContentType = "series"
	// ContentTypeAll selects mixed mode: no type filter, both kinds retained.
	ContentTypeAll ContentType = "all"
)

// NormalizeContentType maps a raw request value onto a known content type.
// Anything unrecognized falls back to mixed mode.
func NormalizeContentType(raw string) ContentType {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case ContentTypeMovie:
		return ContentTypeMovie
	case ContentTypeSeries:
		return ContentTypeSeries
	default:
		return ContentTypeAll
	}
}

var (
	imdbPattern = regexp.MustCompile(`(?i)tt\d{7,8}`)
	yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// CanonicalTorrent is the single record shape every indexer response is
// decoded into. Immutable after construction; records without a title are
// rejected at decode time.
type CanonicalTorrent struct {
	Title       string `json:"title"`
	GUID        string `json:"guid,omitempty"`
	Link        string `json:"link,omitempty"`
	InfoHash    string `json:"infoHash,omitempty"`
	MagnetURI   string `json:"magnetUri,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
	Seeders     int    `json:"seeders"`
	Peers       int    `json:"peers"`
	TrackerName string `json:"trackerName,omitempty"`
	IMDBID      string `json:"imdbId,omitempty"`
	Year        int    `json:"year,omitempty"`
	// PublishDate is a unix timestamp in seconds, 0 when unknown.
	PublishDate int64 `json:"publishDate"`
}

// ClassifiedItem is a CanonicalTorrent with the series/movie heuristics and
// the deterministic stable identifier applied.
type ClassifiedItem struct {
	CanonicalTorrent
	ContentType     ContentType `json:"contentType"`
	IsSingleEpisode bool        `json:"isSingleEpisode"`
	StableID        string      `json:"stableId"`
	DisplayTitle    string      `json:"displayTitle"`
}

// StableID derives the display identifier: the IMDb id when known, otherwise
// a namespaced hash of (guid, link, title). Deterministic for identical input.
func StableID(imdbID, guid, link, title string) string {
	if imdbID != "" {
		return imdbID
	}
	sum := sha256.Sum256([]byte(guid + "\x00" + link + "\x00" + title))
	return "ns:" + hex.EncodeToString(sum[:])[:16]
}

// TorrentID derives the resolution key for a result, distinct from StableID.
// It prefers the indexer guid, then the download link, then the magnet.
func TorrentID(guid, link, magnet string) string {
	source := guid
	if source == "" {
		source = link
	}
	if source == "" {
		source = magnet
	}
	if source == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:16]
}

// ExtractIMDBID returns the lower-cased tt-id found in raw, or "".
func ExtractIMDBID(raw string) string {
	match := imdbPattern.FindString(raw)
	if match == "" {
		return ""
	}
	return strings.ToLower(match)
}

// ExtractYear returns the first plausible 4-digit year token in title, or 0.
func ExtractYear(title string) int {
	match := yearPattern.FindString(title)
	if match == "" {
		return 0
	}
	year := 0
	for _, r := range match {
		year = year*10 + int(r-'0')
	}
	return year
}

// FormatSize renders a byte count for display. Always computed from the
// numeric count, never parsed back from a human string.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
