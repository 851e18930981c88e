package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"streamgate/addonservice/internal/domain"
)

// AllDebridClient implements Provider against the AllDebrid v4 API.
type AllDebridClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	agent      string
}

var _ Provider = (*AllDebridClient)(nil)

func NewAllDebridClient(apiKey string) *AllDebridClient {
	return &AllDebridClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.alldebrid.com/v4",
		agent:      "streamgate",
	}
}

func init() {
	RegisterProvider("alldebrid", func(apiKey string) Provider {
		return NewAllDebridClient(apiKey)
	})
}

func (c *AllDebridClient) Name() string { return "alldebrid" }

type allDebridResponse[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data,omitempty"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type allDebridMagnet struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Hash  string `json:"hash,omitempty"`
	Ready bool   `json:"ready,omitempty"`
}

type allDebridUploadData struct {
	Magnets []allDebridMagnet `json:"magnets"`
}

type allDebridLink struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type allDebridStatus struct {
	ID         int64           `json:"id"`
	Filename   string          `json:"filename"`
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Links      []allDebridLink `json:"links,omitempty"`
}

type allDebridStatusData struct {
	Magnets []allDebridStatus `json:"magnets"`
}

type allDebridUnlock struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// statusCode 4 is "Ready" in the AllDebrid status model.
const allDebridStatusReady = 4

func (c *AllDebridClient) SubmitSource(ctx context.Context, source TorrentSource) (string, error) {
	magnet := source.Magnet()
	if magnet == "" {
		magnet = source.Link
	}
	if magnet == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "source has no magnet, hash or link",
		}
	}

	params := url.Values{}
	params.Set("magnets[]", magnet)

	var data allDebridUploadData
	if err := c.call(ctx, "/magnet/upload", params, &data); err != nil {
		return "", err
	}
	if len(data.Magnets) == 0 {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "magnet upload returned no entries",
		}
	}
	return strconv.FormatInt(data.Magnets[0].ID, 10), nil
}

func (c *AllDebridClient) CheckReady(ctx context.Context, handle string) (bool, error) {
	status, err := c.magnetStatus(ctx, handle)
	if err != nil {
		return false, err
	}
	return status.StatusCode == allDebridStatusReady, nil
}

func (c *AllDebridClient) DirectLink(ctx context.Context, handle string) (string, error) {
	status, err := c.magnetStatus(ctx, handle)
	if err != nil {
		return "", err
	}
	if status.StatusCode != allDebridStatusReady || len(status.Links) == 0 {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("magnet %s not ready (status %s)", handle, status.Status),
		}
	}

	best := status.Links[0]
	for _, link := range status.Links[1:] {
		if link.Size > best.Size {
			best = link
		}
	}

	params := url.Values{}
	params.Set("link", best.Link)
	var unlocked allDebridUnlock
	if err := c.call(ctx, "/link/unlock", params, &unlocked); err != nil {
		return "", err
	}
	if unlocked.Link == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "link unlock returned empty link",
		}
	}
	return unlocked.Link, nil
}

func (c *AllDebridClient) magnetStatus(ctx context.Context, handle string) (allDebridStatus, error) {
	params := url.Values{}
	params.Set("id", handle)

	var data allDebridStatusData
	if err := c.call(ctx, "/magnet/status", params, &data); err != nil {
		return allDebridStatus{}, err
	}
	if len(data.Magnets) == 0 {
		return allDebridStatus{}, &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("magnet %s not found on provider", handle),
		}
	}
	return data.Magnets[0], nil
}

func (c *AllDebridClient) call(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("agent", c.agent)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("alldebrid request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alldebrid %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("alldebrid %s read body: %w", path, err)
	}

	var envelope allDebridResponse[json.RawMessage]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("alldebrid %s decode: %w", path, err)
	}
	if envelope.Status != "success" {
		code, message := "", ""
		if envelope.Error != nil {
			code, message = envelope.Error.Code, envelope.Error.Message
		}
		return c.normalizeError(code, message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("alldebrid %s decode data: %w", path, err)
		}
	}
	return nil
}

// normalizeError maps recognized AllDebrid error codes onto the shared
// failure kinds. Unrecognized codes stay generic errors.
func (c *AllDebridClient) normalizeError(code, message string) error {
	if message == "" {
		message = code
	}

	var kind domain.FailureKind
	switch code {
	case "AUTH_BAD_APIKEY", "AUTH_MISSING_APIKEY", "AUTH_APIKEY_EXPIRED":
		kind = domain.FailureExpiredAPIKey
	case "AUTH_BLOCKED":
		// Account requires a security verification step before API use.
		kind = domain.FailureTwoFactorAuth
	case "AUTH_USER_BANNED", "LINK_HOST_NOT_SUPPORTED", "ACCOUNT_INVALID":
		kind = domain.FailureAccessDenied
	case "MUST_BE_PREMIUM", "FREE_TRIAL_LIMIT_REACHED", "NO_SERVER":
		kind = domain.FailureNotPremium
	case "MAGNET_PROCESSING", "LINK_TEMPORARY_UNAVAILABLE":
		kind = domain.FailureNotReady
	default:
		return fmt.Errorf("alldebrid: %s", message)
	}
	return &domain.ResolveError{Kind: kind, Provider: c.Name(), Message: message}
}
