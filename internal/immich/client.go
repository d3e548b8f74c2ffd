package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"livelink/internal/logging"
)

// ErrConnectivity marks failures of the startup liveness and credential
// checks. The run aborts before identification when this is returned.
var ErrConnectivity = errors.New("server connectivity check failed")

// HTTPDoer describes the HTTP client used by the API client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AssetInfo is the subset of the asset response this tool reads.
type AssetInfo struct {
	ID               string  `json:"id"`
	OriginalFileName string  `json:"originalFileName"`
	FileCreatedAt    string  `json:"fileCreatedAt"`
	LivePhotoVideoID *string `json:"livePhotoVideoId"`
}

// StatusError captures a non-success API response for one asset update.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the media server HTTP API using an x-api-key header.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
	logger  *slog.Logger
}

// NewClient constructs an API client. A nil doer falls back to a default
// client with a request timeout.
func NewClient(baseURL, apiKey string, doer HTTPDoer, logger *slog.Logger) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  doer,
		logger:  logging.WithComponent(logger, "immich"),
	}
}

// CheckConnectivity verifies the server is reachable and the API key is
// accepted: GET /api/server/ping, then GET /api/users/me. Both use a bounded
// timeout so a dead server cannot hang the run.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.get(checkCtx, "/api/server/ping", false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping returned %d", ErrConnectivity, resp.StatusCode)
	}

	resp, err = c.get(checkCtx, "/api/users/me", true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: API key validation failed: %s", ErrConnectivity, readErrorMessage(resp.Body))
	}

	c.logger.Debug("connectivity check passed", logging.String("url", c.baseURL))
	return nil
}

// GetAsset fetches one asset's metadata.
func (c *Client) GetAsset(ctx context.Context, id string) (AssetInfo, error) {
	resp, err := c.get(ctx, "/api/assets/"+id, true)
	if err != nil {
		return AssetInfo{}, fmt.Errorf("fetch asset %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return AssetInfo{}, &StatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	var info AssetInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return AssetInfo{}, fmt.Errorf("decode asset %s: %w", id, err)
	}
	return info, nil
}

// SetLivePhotoVideo updates the live-photo cross reference on a photo asset.
// A nil videoID clears the link. Non-200 responses are returned as a
// *StatusError carrying the decoded error body.
func (c *Client) SetLivePhotoVideo(ctx context.Context, photoID string, videoID *string) error {
	payload, err := json.Marshal(map[string]any{"livePhotoVideoId": videoID})
	if err != nil {
		return fmt.Errorf("marshal update payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/assets/"+photoID, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("update asset %s: %w", photoID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	drainBody(resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, path string, withKey bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if withKey {
		req.Header.Set("x-api-key", c.apiKey)
	}
	return c.client.Do(req)
}

// readErrorMessage formats an API error body as "Error: message", falling
// back to placeholders when fields are absent or the body is not JSON.
func readErrorMessage(body io.Reader) string {
	var detail struct {
		Error   string `json:"error"`
		Message any    `json:"message"`
	}
	errLabel := "Unknown error"
	message := "No message provided"
	if err := json.NewDecoder(body).Decode(&detail); err == nil {
		if detail.Error != "" {
			errLabel = detail.Error
		}
		switch v := detail.Message.(type) {
		case string:
			if v != "" {
				message = v
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) > 0 {
				message = strings.Join(parts, "; ")
			}
		}
	}
	return errLabel + ": " + message
}

func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

func drainAndClose(resp *http.Response) {
	drainBody(resp.Body)
	_ = resp.Body.Close()
}
