package curseforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://minecraft.curseforge.com"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxErrorBody   = 1 << 10
)

// Client reads the Minecraft game version catalog from the CurseForge API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a CurseForge client authenticating with token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		backoff: initialBackoff,
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// StatusError is returned for non-2xx responses other than exhausted rate limits.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// Versions fetches every game version.
func (c *Client) Versions(ctx context.Context) ([]Version, error) {
	var out []Version
	if err := c.getJSON(ctx, "/api/game/versions", &out); err != nil {
		return nil, fmt.Errorf("fetching versions: %w", err)
	}
	if out == nil {
		out = []Version{}
	}
	return out, nil
}

// VersionTypes fetches every game version type.
func (c *Client) VersionTypes(ctx context.Context) ([]VersionType, error) {
	var out []VersionType
	if err := c.getJSON(ctx, "/api/game/version-types", &out); err != nil {
		return nil, fmt.Errorf("fetching version types: %w", err)
	}
	if out == nil {
		out = []VersionType{}
	}
	return out, nil
}

// getJSON issues a GET, retrying on 429 with exponential backoff.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	var lastErr error
	for attempt := range maxRetries {
		err := c.doGet(ctx, path, v)
		if err == nil {
			return nil
		}
		if !isRateLimit(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doGet(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Token", c.token)
}
