package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"streamgate/addonservice/internal/domain"
)

const (
	defaultUserAgent = "streamgate-addon/1.0"
	maxResponseBytes = 8 * 1024 * 1024
)

var ErrNotConfigured = errors.New("indexer is not configured")

type Config struct {
	// ID identifies the indexer in configuration and diagnostics.
	ID        string
	Name      string
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

// Client queries one upstream search indexer. The response may be a Torznab
// RSS feed or a flat JSON list; the encoding is detected per response, never
// assumed.
type Client struct {
	id        string
	name      string
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	id := strings.ToLower(strings.TrimSpace(cfg.ID))
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = id
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		id:        id,
		name:      name,
		endpoint:  strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
		client:    client,
	}
}

func (c *Client) ID() string   { return c.id }
func (c *Client) Name() string { return c.name }

func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Search issues one search call and returns the canonicalized results. An
// empty query asks the indexer for its latest feed (browse listings).
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CanonicalTorrent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	uri, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("t", "search")
	values.Set("q", strings.TrimSpace(query))
	// Some indexers omit seeders/infohash attrs unless extended output is on.
	if strings.TrimSpace(values.Get("extended")) == "" {
		values.Set("extended", "1")
	}
	if c.apiKey != "" && strings.TrimSpace(values.Get("apikey")) == "" {
		values.Set("apikey", c.apiKey)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	uri.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/rss+xml,application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("indexer HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	switch detectEncoding(resp.Header.Get("Content-Type"), payload) {
	case encodingJSON:
		return decodeJSONFeed(payload, c.name)
	case encodingXML:
		return decodeTorznabFeed(payload, c.name)
	default:
		return nil, fmt.Errorf("unrecognized response encoding (content-type %q)", resp.Header.Get("Content-Type"))
	}
}

type responseEncoding int

const (
	encodingUnknown responseEncoding = iota
	encodingXML
	encodingJSON
)

// detectEncoding branches on the response content type, falling back to the
// first non-space byte of the body when the header is missing or generic.
func detectEncoding(contentType string, payload []byte) responseEncoding {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	switch {
	case strings.Contains(mediaType, "json"):
		return encodingJSON
	case strings.Contains(mediaType, "xml"):
		return encodingXML
	}

	trimmed := bytes.TrimLeft(payload, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return encodingUnknown
	}
	switch trimmed[0] {
	case '<':
		return encodingXML
	case '{', '[':
		return encodingJSON
	}
	return encodingUnknown
}

// charsetReader lets the XML decoder handle the legacy encodings some trackers
// still serve alongside utf-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return input, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}
