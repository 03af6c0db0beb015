// Package connector posts reply activities to a conversation on the
// messaging platform's connector service.
package connector

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

	"github.com/iesreza/homa-teams-bot/lib/textutil"
)

const (
	// DefaultTimeout bounds a single delivery.
	DefaultTimeout = 10 * time.Second
	// MaxBodySnippet caps how much of a response body is kept.
	MaxBodySnippet = 2000
)

// TokenSource hands out bearer tokens per tenant.
type TokenSource interface {
	Token(ctx context.Context, tenantID string) (string, error)
}

// Request is a single reply to deliver.
type Request struct {
	// ServiceURL is the regional endpoint from the inbound activity.
	ServiceURL     string
	ConversationID string
	// Payload is sent verbatim when it is json.RawMessage or []byte and
	// JSON encoded otherwise.
	Payload any
}

// Result is the classified outcome of a delivery.
type Result struct {
	URL           string
	Success       bool
	StatusCode    int
	AuthChallenge string
	Body          string
	Duration      time.Duration
}

// Client delivers activities with tokens from a TokenSource. It never retries.
type Client struct {
	tokens       TokenSource
	httpClient   *http.Client
	allowedHosts []string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with its 10 second timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAllowedHosts restricts the service URLs a bearer token is sent to.
// Entries are host names, "host:port" pairs or "*.domain" wildcards; "*"
// allows any host. Without this option every host is allowed.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *Client) {
		c.allowedHosts = hosts
	}
}

// NewClient creates a Client.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActivitiesURL builds the endpoint replies to conversationID are posted to.
// Trailing slashes on serviceURL are ignored.
func ActivitiesURL(serviceURL, conversationID string) string {
	return strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
}

// Deliver posts req.Payload to the conversation. A non-nil error is returned
// together with the Result whenever the connector did not accept the reply.
// Token errors are returned unchanged.
func (c *Client) Deliver(ctx context.Context, tenantID string, req Request) (Result, error) {
	if req.ServiceURL == "" {
		return Result{}, fmt.Errorf("%w: service url is empty", ErrInvalidRequest)
	}
	if req.ConversationID == "" {
		return Result{}, fmt.Errorf("%w: conversation id is empty", ErrInvalidRequest)
	}

	result := Result{URL: ActivitiesURL(req.ServiceURL, req.ConversationID)}
	if c.allowedHosts != nil && !HostAllowed(c.allowedHosts, req.ServiceURL) {
		return result, fmt.Errorf("%w: %s", ErrUntrustedServiceURL, req.ServiceURL)
	}

	body, err := encodePayload(req.Payload)
	if err != nil {
		return result, err
	}

	token, err := c.tokens.Token(ctx, tenantID)
	if err != nil {
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, result.URL, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	result.Duration = time.Since(start)
	if err != nil {
		return result, &DeliveryError{Kind: KindNoResponse, URL: result.URL, Err: err}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxBodySnippet+1))
	result.StatusCode = resp.StatusCode
	result.Body = textutil.Truncate(string(respBody), MaxBodySnippet)
	if readErr != nil {
		result.Body += fmt.Sprintf(" [reading body: %v]", readErr)
	}
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if result.Success {
		return result, nil
	}

	result.AuthChallenge = resp.Header.Get("WWW-Authenticate")
	return result, &DeliveryError{
		Kind:          KindStatus,
		URL:           result.URL,
		StatusCode:    result.StatusCode,
		AuthChallenge: result.AuthChallenge,
		Body:          result.Body,
	}
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	case nil:
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidRequest)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding reply payload: %w", err)
	}
	return body, nil
}

// HostAllowed reports whether serviceURL is an http(s) URL whose host matches
// one of the patterns.
func HostAllowed(patterns []string, serviceURL string) bool {
	u, err := url.Parse(serviceURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	hostname := strings.ToLower(u.Hostname())

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
			continue
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(hostname, pattern[1:]) {
				return true
			}
		case strings.Contains(pattern, ":"):
			if host == pattern {
				return true
			}
		case hostname == pattern:
			return true
		}
	}
	return false
}
