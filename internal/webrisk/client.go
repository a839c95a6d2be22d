// Package webrisk is a thin HTTP client for the Web Risk threat-intelligence
// API. Lookup and evaluate authenticate with an API key; submission and
// operation polling require an OAuth-authorized *http.Client supplied by the
// caller.
package webrisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the production API base URL.
const DefaultEndpoint = "https://webrisk.googleapis.com"

// userAgent is sent on evaluate calls, which go through the early-access
// surface and are tracked separately upstream.
const userAgent = "urivet-console/1.0"

// APIError is returned when the upstream service answers with a non-success
// status. It carries the status code and the verbatim response body so callers
// can render a diagnostic message.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webrisk API error %d: %s", e.StatusCode, e.Body)
}

// LookupResponse is the decoded body of a uris:search call. Threat is nil
// when the URI is clean.
type LookupResponse struct {
	Threat map[string]any `json:"threat"`
}

// SubmitResponse is the decoded body of a uris:submit call.
type SubmitResponse struct {
	Name string `json:"name"`
}

// Client talks to the Web Risk API.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API base URL. Used in tests against httptest
// servers.
func WithEndpoint(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

// WithHTTPClient sets the http.Client used for key-authenticated calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client against the production endpoint unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		base:       DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup calls GET /v1/uris:search with the given API key, URI, and threat
// types. The returned raw body is the verbatim upstream JSON.
func (c *Client) Lookup(ctx context.Context, apiKey, uri string, threatTypes []string) (*LookupResponse, string, error) {
	q := url.Values{}
	q.Set("key", apiKey)
	for _, t := range threatTypes {
		q.Add("threatTypes", t)
	}
	q.Set("uri", uri)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/uris:search?"+q.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := doStatusBody(c.httpClient, req)
	if err != nil {
		return nil, "", err
	}
	if status >= 300 {
		return nil, string(body), &APIError{StatusCode: status, Body: string(body)}
	}

	var result LookupResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, string(body), fmt.Errorf("decode lookup response: %w", err)
	}
	return &result, string(body), nil
}

// Evaluate calls POST /v1eap1:evaluateUri. The raw body is captured and
// returned even when the call fails, so callers can attempt to interpret
// whatever the service sent back.
func (c *Client) Evaluate(ctx context.Context, apiKey, uri string, threatTypes []string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"uri":         uri,
		"threatTypes": threatTypes,
	})
	if err != nil {
		return "", fmt.Errorf("marshal evaluate request: %w", err)
	}

	endpoint := c.base + "/v1eap1:evaluateUri?key=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	status, body, err := doStatusBody(c.httpClient, req)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return string(body), &APIError{StatusCode: status, Body: string(body)}
	}
	return string(body), nil
}

// Submit calls POST /v1/projects/{projectID}/uris:submit through the supplied
// OAuth-authorized client and returns the created operation name plus the raw
// response body.
func (c *Client) Submit(ctx context.Context, authed *http.Client, projectID, uri string, threatTypes []string) (*SubmitResponse, string, error) {
	payload, err := json.Marshal(map[string]any{
		"submission": map[string]any{
			"uri":         uri,
			"threatTypes": threatTypes,
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal submit request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/uris:submit", c.base, url.PathEscape(projectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := doStatusBody(authed, req)
	if err != nil {
		return nil, "", err
	}
	if status >= 300 {
		return nil, string(body), &APIError{StatusCode: status, Body: string(body)}
	}

	var result SubmitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, string(body), fmt.Errorf("decode submit response: %w", err)
	}
	return &result, string(body), nil
}

// GetOperation calls GET /v1/{operationName} through the supplied
// OAuth-authorized client. operationName must already be fully qualified
// (projects/{p}/operations/{id}).
func (c *Client) GetOperation(ctx context.Context, authed *http.Client, operationName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/"+operationName, nil)
	if err != nil {
		return "", fmt.Errorf("build operation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := doStatusBody(authed, req)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return string(body), &APIError{StatusCode: status, Body: string(body)}
	}
	return string(body), nil
}

// doStatusBody executes a request and returns (statusCode, body, error)
// without failing on 4xx/5xx responses. The caller interprets the status.
func doStatusBody(hc *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
