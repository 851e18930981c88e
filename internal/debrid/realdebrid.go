package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamgate/addonservice/internal/domain"
)

// RealDebridClient implements Provider against the Real-Debrid REST API.
type RealDebridClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

var _ Provider = (*RealDebridClient)(nil)

func NewRealDebridClient(apiKey string) *RealDebridClient {
	return &RealDebridClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.real-debrid.com/rest/1.0",
	}
}

func init() {
	RegisterProvider("realdebrid", func(apiKey string) Provider {
		return NewRealDebridClient(apiKey)
	})
}

func (c *RealDebridClient) Name() string { return "realdebrid" }

type realDebridAddResult struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type realDebridFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

type realDebridTorrent struct {
	ID       string           `json:"id"`
	Filename string           `json:"filename"`
	Status   string           `json:"status"`
	Progress float64          `json:"progress"`
	Files    []realDebridFile `json:"files"`
	Links    []string         `json:"links"`
}

type realDebridUnrestrict struct {
	Download string `json:"download"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

type realDebridError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func (c *RealDebridClient) SubmitSource(ctx context.Context, source TorrentSource) (string, error) {
	magnet := source.Magnet()
	if magnet == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "source has no magnet or info hash",
		}
	}

	form := url.Values{}
	form.Set("magnet", magnet)

	var added realDebridAddResult
	if err := c.call(ctx, http.MethodPost, "/torrents/addMagnet", form, &added); err != nil {
		return "", err
	}
	if added.ID == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "addMagnet returned no torrent id",
		}
	}

	// Real-Debrid does not start a torrent until files are selected.
	selectForm := url.Values{}
	selectForm.Set("files", "all")
	if err := c.call(ctx, http.MethodPost, "/torrents/selectFiles/"+added.ID, selectForm, nil); err != nil {
		return "", err
	}
	return added.ID, nil
}

func (c *RealDebridClient) CheckReady(ctx context.Context, handle string) (bool, error) {
	torrent, err := c.torrentInfo(ctx, handle)
	if err != nil {
		return false, err
	}
	return torrent.Status == "downloaded", nil
}

func (c *RealDebridClient) DirectLink(ctx context.Context, handle string) (string, error) {
	torrent, err := c.torrentInfo(ctx, handle)
	if err != nil {
		return "", err
	}
	if torrent.Status != "downloaded" || len(torrent.Links) == 0 {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("torrent %s not downloaded (status %s)", handle, torrent.Status),
		}
	}

	// Links are ordered like the selected files; pick the link of the
	// largest selected file when the counts line up, else the first.
	link := torrent.Links[0]
	selected := make([]realDebridFile, 0, len(torrent.Files))
	for _, file := range torrent.Files {
		if file.Selected == 1 {
			selected = append(selected, file)
		}
	}
	if len(selected) == len(torrent.Links) {
		bestIdx, bestSize := 0, int64(-1)
		for i, file := range selected {
			if file.Bytes > bestSize {
				bestIdx, bestSize = i, file.Bytes
			}
		}
		link = torrent.Links[bestIdx]
	}

	form := url.Values{}
	form.Set("link", link)
	var unrestricted realDebridUnrestrict
	if err := c.call(ctx, http.MethodPost, "/unrestrict/link", form, &unrestricted); err != nil {
		return "", err
	}
	if unrestricted.Download == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "unrestrict returned empty download link",
		}
	}
	return unrestricted.Download, nil
}

func (c *RealDebridClient) torrentInfo(ctx context.Context, handle string) (realDebridTorrent, error) {
	var torrent realDebridTorrent
	if err := c.call(ctx, http.MethodGet, "/torrents/info/"+handle, nil, &torrent); err != nil {
		return realDebridTorrent{}, err
	}
	return torrent, nil
}

func (c *RealDebridClient) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("realdebrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("realdebrid %s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("realdebrid %s read body: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr realDebridError
		_ = json.Unmarshal(payload, &apiErr)
		return c.normalizeError(resp.StatusCode, apiErr)
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("realdebrid %s decode: %w", path, err)
		}
	}
	return nil
}

// normalizeError maps recognized Real-Debrid HTTP statuses and error codes
// onto the shared failure kinds. Anything else stays a generic error.
func (c *RealDebridClient) normalizeError(status int, apiErr realDebridError) error {
	message := apiErr.Error
	if message == "" {
		message = fmt.Sprintf("http status %d", status)
	}

	var kind domain.FailureKind
	switch {
	case status == http.StatusUnauthorized, apiErr.ErrorCode == 8:
		// error_code 8 is "bad_token".
		kind = domain.FailureExpiredAPIKey
	case apiErr.ErrorCode == 14:
		// error_code 14 is "account_locked", cleared via 2FA verification.
		kind = domain.FailureTwoFactorAuth
	case apiErr.ErrorCode == 36, apiErr.ErrorCode == 20:
		kind = domain.FailureNotPremium
	case status == http.StatusForbidden, apiErr.ErrorCode == 9:
		// error_code 9 is "permission_denied".
		kind = domain.FailureAccessDenied
	case status == http.StatusServiceUnavailable:
		kind = domain.FailureNotReady
	default:
		return fmt.Errorf("realdebrid: %s", message)
	}
	return &domain.ResolveError{Kind: kind, Provider: c.Name(), Message: message}
}
