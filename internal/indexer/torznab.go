package indexer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamgate/addonservice/internal/domain"
)

type torznabFeed struct {
	XMLName xml.Name       `xml:"rss"`
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title     string           `xml:"title"`
	GUID      string           `xml:"guid"`
	Link      string           `xml:"link"`
	Size      string           `xml:"size"`
	PubDate   string           `xml:"pubDate"`
	Enclosure torznabEnclosure `xml:"enclosure"`
	Attrs     []torznabAttr    `xml:"attr"`
}

type torznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// decodeTorznabFeed decodes the attribute-list XML shape. Items without a
// title are dropped; a malformed feed is an error for the whole call.
func decodeTorznabFeed(payload []byte, trackerName string) ([]domain.CanonicalTorrent, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.CharsetReader = charsetReader

	var feed torznabFeed
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("invalid torznab XML: %w", err)
	}

	results := make([]domain.CanonicalTorrent, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		torrent, ok := torznabItemToTorrent(item, trackerName)
		if !ok {
			continue
		}
		results = append(results, torrent)
	}
	return results, nil
}

// torznabItemToTorrent merges the nested attr container into top-level fields
// before extraction, then builds the canonical record.
func torznabItemToTorrent(item torznabItem, trackerName string) (domain.CanonicalTorrent, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.CanonicalTorrent{}, false
	}

	attrs := make(map[string]string, len(item.Attrs))
	for _, attr := range item.Attrs {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if key == "" {
			continue
		}
		if _, exists := attrs[key]; exists {
			continue
		}
		attrs[key] = strings.TrimSpace(attr.Value)
	}

	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.Enclosure.URL)
	}
	magnet := firstMagnet(attrs["magneturl"], item.GUID, item.Link, item.Enclosure.URL)

	infoHash := normalizeInfoHash(attrs["infohash"])
	if infoHash == "" && magnet != "" {
		infoHash = normalizeInfoHash(infoHashFromMagnet(magnet))
	}

	sizeBytes := parseI64(item.Size)
	if sizeBytes <= 0 {
		sizeBytes = parseI64(attrs["size"])
	}
	if sizeBytes <= 0 && item.Enclosure.Length > 0 {
		sizeBytes = item.Enclosure.Length
	}

	seeders := parseInt(attrs["seeders"])
	peers := parseInt(attrs["peers"])
	if peers == 0 {
		peers = parseInt(attrs["leechers"])
	}

	tracker := strings.TrimSpace(attrs["tracker"])
	if tracker == "" {
		tracker = trackerName
	}

	imdbID := domain.ExtractIMDBID(attrs["imdb"])
	if imdbID == "" {
		imdbID = domain.ExtractIMDBID(attrs["imdbid"])
	}
	if imdbID == "" {
		imdbID = domain.ExtractIMDBID(title)
	}

	var publishDate int64
	if published := parsePubDate(item.PubDate); published != nil {
		publishDate = published.Unix()
	}

	return domain.CanonicalTorrent{
		Title:       title,
		GUID:        strings.TrimSpace(item.GUID),
		Link:        link,
		InfoHash:    infoHash,
		MagnetURI:   magnet,
		SizeBytes:   sizeBytes,
		Seeders:     seeders,
		Peers:       peers,
		TrackerName: tracker,
		IMDBID:      imdbID,
		Year:        domain.ExtractYear(title),
		PublishDate: publishDate,
	}, true
}

func firstMagnet(candidates ...string) string {
	for _, candidate := range candidates {
		value := strings.TrimSpace(candidate)
		if strings.HasPrefix(strings.ToLower(value), "magnet:?") {
			return value
		}
	}
	return ""
}

func infoHashFromMagnet(rawMagnet string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawMagnet))
	if err != nil {
		return ""
	}
	return parsed.Query().Get("xt")
}

func normalizeInfoHash(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(value, "urn:btih:")
}

// parseInt and parseI64 fall back to 0 on malformed input; indexer feeds
// routinely carry junk in numeric fields.
func parseInt(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func parseI64(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func parsePubDate(raw string) *time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}
	for _, format := range formats {
		parsed, err := time.Parse(format, value)
		if err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
