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

// PremiumizeClient implements Provider against the Premiumize.me API.
type PremiumizeClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

var _ Provider = (*PremiumizeClient)(nil)

func NewPremiumizeClient(apiKey string) *PremiumizeClient {
	return &PremiumizeClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://www.premiumize.me/api",
	}
}

func init() {
	RegisterProvider("premiumize", func(apiKey string) Provider {
		return NewPremiumizeClient(apiKey)
	})
}

func (c *PremiumizeClient) Name() string { return "premiumize" }

type premiumizeCreateResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type premiumizeTransfer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	FolderID string `json:"folder_id,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

type premiumizeTransferList struct {
	Status    string               `json:"status"`
	Message   string               `json:"message,omitempty"`
	Transfers []premiumizeTransfer `json:"transfers"`
}

type premiumizeItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
	Link string `json:"link,omitempty"`
}

type premiumizeFolder struct {
	Status  string           `json:"status"`
	Message string           `json:"message,omitempty"`
	Content []premiumizeItem `json:"content"`
}

func (c *PremiumizeClient) SubmitSource(ctx context.Context, source TorrentSource) (string, error) {
	src := source.Magnet()
	if src == "" {
		src = source.Link
	}
	if src == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  "source has no magnet, hash or link",
		}
	}

	form := url.Values{}
	form.Set("src", src)

	var created premiumizeCreateResult
	if err := c.call(ctx, "/transfer/create", form, &created); err != nil {
		return "", err
	}
	if created.Status != "success" {
		return "", c.normalizeError(created.Message)
	}
	return created.ID, nil
}

func (c *PremiumizeClient) CheckReady(ctx context.Context, handle string) (bool, error) {
	transfer, err := c.findTransfer(ctx, handle)
	if err != nil {
		return false, err
	}
	switch transfer.Status {
	case "finished", "seeding":
		return true, nil
	case "error", "banned", "timeout", "deleted":
		return false, c.normalizeError(transfer.Message)
	default:
		return false, nil
	}
}

func (c *PremiumizeClient) DirectLink(ctx context.Context, handle string) (string, error) {
	transfer, err := c.findTransfer(ctx, handle)
	if err != nil {
		return "", err
	}
	if transfer.Status != "finished" && transfer.Status != "seeding" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("transfer %s not finished (status %s)", handle, transfer.Status),
		}
	}
	if transfer.FolderID == "" {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("transfer %s has no folder yet", handle),
		}
	}

	form := url.Values{}
	form.Set("id", transfer.FolderID)
	var folder premiumizeFolder
	if err := c.call(ctx, "/folder/list", form, &folder); err != nil {
		return "", err
	}
	if folder.Status != "success" {
		return "", c.normalizeError(folder.Message)
	}

	var best *premiumizeItem
	for i := range folder.Content {
		item := &folder.Content[i]
		if item.Type != "file" || item.Link == "" {
			continue
		}
		if best == nil || item.Size > best.Size {
			best = item
		}
	}
	if best == nil {
		return "", &domain.ResolveError{
			Kind:     domain.FailureNotReady,
			Provider: c.Name(),
			Message:  fmt.Sprintf("transfer %s folder has no downloadable file", handle),
		}
	}
	return best.Link, nil
}

func (c *PremiumizeClient) findTransfer(ctx context.Context, handle string) (premiumizeTransfer, error) {
	var list premiumizeTransferList
	if err := c.call(ctx, "/transfer/list", url.Values{}, &list); err != nil {
		return premiumizeTransfer{}, err
	}
	if list.Status != "success" {
		return premiumizeTransfer{}, c.normalizeError(list.Message)
	}
	for _, transfer := range list.Transfers {
		if transfer.ID == handle {
			return transfer, nil
		}
	}
	return premiumizeTransfer{}, &domain.ResolveError{
		Kind:     domain.FailureNotReady,
		Provider: c.Name(),
		Message:  fmt.Sprintf("transfer %s not found on provider", handle),
	}
}

func (c *PremiumizeClient) call(ctx context.Context, path string, form url.Values, out any) error {
	form.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("premiumize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("premiumize %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &domain.ResolveError{
			Kind:     domain.FailureExpiredAPIKey,
			Provider: c.Name(),
			Message:  "api key rejected",
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("premiumize %s read body: %w", path, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("premiumize %s decode: %w", path, err)
	}
	return nil
}

// normalizeError maps recognized Premiumize error messages onto the shared
// failure kinds. Messages matching no pattern stay generic errors.
func (c *PremiumizeClient) normalizeError(message string) error {
	if message == "" {
		message = "provider reported an error"
	}

	var kind domain.FailureKind
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "customer") || strings.Contains(lower, "premium"):
		kind = domain.FailureNotPremium
	case strings.Contains(lower, "apikey") || strings.Contains(lower, "token"):
		kind = domain.FailureExpiredAPIKey
	case strings.Contains(lower, "not ready") || strings.Contains(lower, "queue"):
		kind = domain.FailureNotReady
	case strings.Contains(lower, "denied") || strings.Contains(lower, "banned") || strings.Contains(lower, "blocked"):
		kind = domain.FailureAccessDenied
	default:
		return fmt.Errorf("premiumize: %s", message)
	}
	return &domain.ResolveError{Kind: kind, Provider: c.Name(), Message: message}
}
