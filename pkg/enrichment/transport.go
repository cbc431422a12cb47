package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrHTMLResponse marks a 2xx response whose body is an HTML page instead of
// JSON. Misconfigured reverse proxies answer API paths with the SPA shell, so
// a successful status alone proves nothing.
var ErrHTMLResponse = errors.New("enrichment: received HTML instead of JSON")

// Transport fetches the internal user profile for an access token. Fetch
// returns the raw JSON payload on success.
type Transport interface {
	Tier() string
	Fetch(ctx context.Context, accessToken string) (json.RawMessage, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// ProxyTransport reaches the internal API through the same-origin reverse
// proxy path
type ProxyTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewProxyTransport creates the proxy-path transport. baseURL is the full
// proxied API base, e.g. https://host/copiloto-vendas-api/v1.
func NewProxyTransport(baseURL string, httpClient *http.Client) *ProxyTransport {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &ProxyTransport{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// Tier identifies this transport in logs and metrics
func (t *ProxyTransport) Tier() string { return "proxy" }

// Fetch performs a bearer GET against {base}/users/me. Any 2xx body that
// sniffs as HTML is treated as a failure so the chain can move on.
func (t *ProxyTransport) Fetch(ctx context.Context, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html") {
		return nil, ErrHTMLResponse
	}
	if trimmed == "" {
		return nil, fmt.Errorf("proxy returned an empty body")
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("proxy returned invalid JSON")
	}

	return json.RawMessage(trimmed), nil
}

// FunctionTransport reaches the internal API through the server-side
// function, which holds the upstream host and credentials
type FunctionTransport struct {
	url        string
	httpClient *http.Client
}

// NewFunctionTransport creates the server-side function transport
func NewFunctionTransport(url string, httpClient *http.Client) *FunctionTransport {
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	return &FunctionTransport{url: url, httpClient: httpClient}
}

// Tier identifies this transport in logs and metrics
func (t *FunctionTransport) Tier() string { return "function" }

// Fetch posts the access token to the function and returns its JSON payload
func (t *FunctionTransport) Fetch(ctx context.Context, accessToken string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"accessToken": accessToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode function request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build function request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("function request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read function response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("function returned status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("function returned invalid JSON")
	}

	return json.RawMessage(body), nil
}
