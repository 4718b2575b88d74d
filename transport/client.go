// Package transport performs authenticated requests against the Deta HTTP
// APIs. It is shared by the base and drive clients.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// APIKeyHeader carries the project key on every request.
const APIKeyHeader = "X-API-Key"

const jsonContentType = "application/json"

// Request describes a single API call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// ContentType is sent with Body. JSONBody always uses application/json.
	ContentType string
	Body        []byte
	JSONBody    interface{}
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	apiKey     string
	logger     log.Logger
}

// New returns a Client sending requests to baseURL, authenticated with apiKey.
// Requests are never retried.
func New(baseURL, apiKey string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewLogger()
	}

	httpClient := retryhttp.NewClient(logger)
	httpClient.RetryMax = 0
	httpClient.CheckRetry = noRetryPolicy

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// BaseURL ...
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKey ...
func (c *Client) APIKey() string {
	return c.apiKey
}

// URL returns the absolute URL of path with the given query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do sends the request and returns the response of a 2xx reply.
// Any other status is returned as *HTTPError. The caller closes the body.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	var body interface{}
	contentType := r.ContentType
	switch {
	case r.JSONBody != nil:
		b, err := json.Marshal(r.JSONBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = b
		contentType = jsonContentType
	case r.Body != nil:
		body = r.Body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, r.Method, c.URL(r.Path, r.Query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer c.closeBody(resp.Body)
		return nil, newHTTPError(r, resp)
	}

	return resp, nil
}

// JSON sends the request and decodes the JSON reply into out. A nil out
// discards the reply.
func (c *Client) JSON(ctx context.Context, r Request, out interface{}) error {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", r.Method, r.Path, err)
	}
	return nil
}

// Bytes sends the request and returns the raw reply body.
func (c *Client) Bytes(ctx context.Context, r Request) ([]byte, error) {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", r.Method, r.Path, err)
	}
	return data, nil
}

// StandardClient returns an *http.Client backed by the same transport.
func (c *Client) StandardClient() *http.Client {
	return c.httpClient.StandardClient()
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warnf("close response body: %s", err)
	}
}

func noRetryPolicy(_ context.Context, _ *http.Response, _ error) (bool, error) {
	return false, nil
}
