package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"streamgate/addonservice/internal/domain"
)

// jsonEnvelope is the flat-field shape: a top-level Results array with
// per-result fields instead of nested attribute lists.
type jsonEnvelope struct {
	Results []jsonResult `json:"Results"`
}

type jsonResult struct {
	Title       string  `json:"Title"`
	GUID        string  `json:"Guid"`
	Link        string  `json:"Link"`
	MagnetURI   string  `json:"MagnetUri"`
	InfoHash    string  `json:"InfoHash"`
	Size        flexI64 `json:"Size"`
	Seeders     flexI64 `json:"Seeders"`
	Peers       flexI64 `json:"Peers"`
	Tracker     string  `json:"Tracker"`
	Imdb        flexI64 `json:"Imdb"`
	PublishDate string  `json:"PublishDate"`
}

// flexI64 tolerates numbers, quoted numbers, null and junk, decoding
// anything unparseable to 0 so one bad field never rejects the record.
type flexI64 int64

func (f *flexI64) UnmarshalJSON(data []byte) error {
	value := strings.Trim(strings.TrimSpace(string(bytes.Trim(data, `"`))), " ")
	if value == "" || value == "null" {
		*f = 0
		return nil
	}
	*f = flexI64(parseI64(value))
	return nil
}

func decodeJSONFeed(payload []byte, trackerName string) ([]domain.CanonicalTorrent, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("invalid results JSON: %w", err)
	}

	results := make([]domain.CanonicalTorrent, 0, len(envelope.Results))
	for _, raw := range envelope.Results {
		torrent, ok := jsonResultToTorrent(raw, trackerName)
		if !ok {
			continue
		}
		results = append(results, torrent)
	}
	return results, nil
}

func jsonResultToTorrent(raw jsonResult, trackerName string) (domain.CanonicalTorrent, bool) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return domain.CanonicalTorrent{}, false
	}

	magnet := strings.TrimSpace(raw.MagnetURI)
	if magnet == "" {
		magnet = firstMagnet(raw.GUID, raw.Link)
	}
	infoHash := normalizeInfoHash(raw.InfoHash)
	if infoHash == "" && magnet != "" {
		infoHash = normalizeInfoHash(infoHashFromMagnet(magnet))
	}

	tracker := strings.TrimSpace(raw.Tracker)
	if tracker == "" {
		tracker = trackerName
	}

	// Jackett encodes the IMDb id as a bare integer; re-pad to the tt form.
	imdbID := ""
	if raw.Imdb > 0 {
		imdbID = fmt.Sprintf("tt%07d", int64(raw.Imdb))
	}
	if imdbID == "" {
		imdbID = domain.ExtractIMDBID(title)
	}

	var publishDate int64
	if value := strings.TrimSpace(raw.PublishDate); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			publishDate = parsed.Unix()
		} else if parsed := parsePubDate(value); parsed != nil {
			publishDate = parsed.Unix()
		}
	}

	return domain.CanonicalTorrent{
		Title:       title,
		GUID:        strings.TrimSpace(raw.GUID),
		Link:        strings.TrimSpace(raw.Link),
		InfoHash:    infoHash,
		MagnetURI:   magnet,
		SizeBytes:   int64(raw.Size),
		Seeders:     int(raw.Seeders),
		Peers:       int(raw.Peers),
		TrackerName: tracker,
		IMDBID:      imdbID,
		Year:        domain.ExtractYear(title),
		PublishDate: publishDate,
	}, true
}
