package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Client is the interface to the load balancer API. The default rule's
// target group determines which environment receives production traffic.
type Client interface {
	// DescribeDefaultRule returns the target group the listener's default
	// rule currently forwards to
	DescribeDefaultRule(ctx context.Context, listenerRef string) (string, error)

	// ModifyDefaultRule atomically repoints the default rule at
	// targetGroupRef
	ModifyDefaultRule(ctx context.Context, listenerRef, targetGroupRef string) error
}

// APIError is a non-2xx response from the routing API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("routing API returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient reports whether err is a retryable infrastructure error
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HTTPClient talks JSON over HTTP to the load balancer API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a routing client for the API at baseURL
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type defaultRule struct {
	TargetGroup string `json:"target_group"`
}

// DescribeDefaultRule implements Client
func (c *HTTPClient) DescribeDefaultRule(ctx context.Context, listenerRef string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/listeners/%s/default-rule", c.baseURL, url.PathEscape(listenerRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create describe request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("routing API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	var rule defaultRule
	if err := json.NewDecoder(resp.Body).Decode(&rule); err != nil {
		return "", fmt.Errorf("failed to decode routing API response: %w", err)
	}

	return rule.TargetGroup, nil
}

// ModifyDefaultRule implements Client
func (c *HTTPClient) ModifyDefaultRule(ctx context.Context, listenerRef, targetGroupRef string) error {
	body, err := json.Marshal(defaultRule{TargetGroup: targetGroupRef})
	if err != nil {
		return fmt.Errorf("failed to encode modify request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/listeners/%s/default-rule", c.baseURL, url.PathEscape(listenerRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create modify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("routing API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	return nil
}

func apiError(resp *http.Response) error {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return &APIError{StatusCode: resp.StatusCode, Body: buf.String()}
}
