// Package backend talks to the Hasura-style GraphQL API that owns rooms,
// memberships and messages. Queries and mutations go over HTTP; the live
// message stream uses the graphql-transport-ws protocol.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"spacechat/backend/internal/taskqueue"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 15 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 4 * 1024 * 1024
)

// ErrNotFound is returned when a lookup by primary key finds nothing.
var ErrNotFound = errors.New("not found")

// GraphQLError is an error reported in the "errors" member of a response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *GraphQLError) Error() string {
	if code := e.Code(); code != "" {
		return fmt.Sprintf("graphql [%s]: %s", code, e.Message)
	}
	return "graphql: " + e.Message
}

// Code returns the Hasura error code from the extensions, if any.
func (e *GraphQLError) Code() string {
	if e.Extensions == nil {
		return ""
	}
	code, _ := e.Extensions["code"].(string)
	return code
}

// HTTPError is returned for non-2xx responses that carry no GraphQL errors.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql endpoint returned HTTP %d: %s", e.Status, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Options configure a Client.
type Options struct {
	// URL is the HTTP GraphQL endpoint.
	URL string
	// WSURL is the websocket endpoint; derived from URL when empty.
	WSURL string
	// Token is sent as a bearer token on every request.
	Token string
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// ReconnectBase and ReconnectMax bound the delay between attempts to
	// restore a dropped message stream.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

// Client is a GraphQL client for the backend.
type Client struct {
	url       string
	wsURL     string
	token     string
	http      *http.Client
	reconnect taskqueue.Policy
}

// New returns a client for the endpoint in opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: opts.Timeout,
		}
	}
	wsURL := opts.WSURL
	if wsURL == "" {
		wsURL = websocketURL(opts.URL)
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	return &Client{
		url:       opts.URL,
		wsURL:     wsURL,
		token:     opts.Token,
		http:      httpClient,
		reconnect: taskqueue.Policy{BaseBackoff: opts.ReconnectBase, MaxBackoff: opts.ReconnectMax},
	}
}

func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}

type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Do runs one query or mutation and decodes its data member into out.
func (c *Client) Do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(request{Query: query, Variables: vars, OperationName: op})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%s: %w", op, &HTTPError{Status: resp.StatusCode, Body: truncate(string(raw), 200)})
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if len(decoded.Errors) > 0 {
		return fmt.Errorf("%s: %w", op, &decoded.Errors[0])
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: %w", op, &HTTPError{Status: resp.StatusCode, Body: truncate(string(raw), 200)})
	}
	if out == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
