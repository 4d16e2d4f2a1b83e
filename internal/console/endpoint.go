package console

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QueryPath is the endpoint path relative to the server root.
const QueryPath = "query.json"

// HTTPEndpoint posts the raw query text to <base>/query.json.
type HTTPEndpoint struct {
	url        string
	httpClient *http.Client
}

// NewHTTPEndpoint creates an endpoint for the server at baseURL. A nil
// client gets a 30 second timeout.
func NewHTTPEndpoint(baseURL string, client *http.Client) (*HTTPEndpoint, error) {
	u, err := url.JoinPath(strings.TrimRight(baseURL, "/"), QueryPath)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPEndpoint{url: u, httpClient: client}, nil
}

// URL returns the full endpoint address.
func (e *HTTPEndpoint) URL() string { return e.url }

// Post sends body as-is. Any HTTP response, ok or not, is returned without
// error; only transport failures are errors.
func (e *HTTPEndpoint) Post(ctx context.Context, body string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, strings.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("server not reachable, is versionsql running? (%w)", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	return Response{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Body:   data,
	}, nil
}
