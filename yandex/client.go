package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production Yandex Smart Home REST endpoint.
	DefaultBaseURL = "https://api.iot.yandex.net/v1.0"

	requestTimeout = 20 * time.Second
	maxErrorBody   = 300
)

// TokenProvider supplies a bearer token for API calls.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// refresher is implemented by token providers that can renew themselves.
type refresher interface {
	TriggerRefresh(ctx context.Context)
}

// StatusError is a non-2xx response from the API. Status 401 means the token
// is invalid, 403 means it lacks the iot:view scope.
type StatusError struct {
	Status int
	Body   string
}

func (e StatusError) Error() string {
	switch e.Status {
	case http.StatusUnauthorized:
		return fmt.Sprintf("yandex api unauthorized (401): %s", e.Body)
	case http.StatusForbidden:
		return fmt.Sprintf("yandex api forbidden (403, missing scope?): %s", e.Body)
	default:
		return fmt.Sprintf("yandex api error %d: %s", e.Status, e.Body)
	}
}

// Client talks to the Yandex IoT REST API.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
}

func NewClient(baseURL string, tokens TokenProvider, httpClient *http.Client) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// UserInfo fetches the authenticated user's device and room inventory.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	var info UserInfo
	if err := c.getJSON(ctx, "/user/info", &info); err != nil {
		return UserInfo{}, err
	}
	if info.Status != "ok" {
		return UserInfo{}, fmt.Errorf("unexpected /user/info status %q", info.Status)
	}
	return info, nil
}

// Device fetches a single device's current state.
func (c *Client) Device(ctx context.Context, deviceID string) (Device, error) {
	var resp struct {
		Status string `json:"status"`
		Device
	}
	if err := c.getJSON(ctx, "/devices/"+deviceID, &resp); err != nil {
		return Device{}, err
	}
	if resp.Status != "ok" {
		return Device{}, fmt.Errorf("unexpected /devices/%s status %q", deviceID, resp.Status)
	}
	if resp.Name == "" {
		resp.Name = deviceID
	}
	return resp.Device, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(path, "error")
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		observeRequest(path, "error")
		return fmt.Errorf("read %s: %w", endpoint, err)
	}
	observeRequest(path, fmt.Sprintf("%d", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		if r, ok := c.tokens.(refresher); ok {
			r.TriggerRefresh(ctx)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError{Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(payload)))}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w (body: %s)", path, err, truncate(string(payload)))
	}
	return nil
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
