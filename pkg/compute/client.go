package compute

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

	"github.com/nkefor/cutover/pkg/types"
)

// Client is the interface to the container-orchestration API. The platform
// owns scheduling; callers only trigger updates and observe convergence.
type Client interface {
	// UpdateService updates the service to run imageRef, forcing a fresh
	// rollout. Returns the platform's deployment handle.
	UpdateService(ctx context.Context, serviceID, imageRef string) (string, error)

	// DescribeService returns the current running/desired/pending counts
	DescribeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error)
}

// APIError is a non-2xx response from the compute API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("compute API returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying (throttling or
// server-side failure)
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient reports whether err is a retryable infrastructure error:
// a transient API status, a network timeout, or a connection failure.
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

// HTTPClient talks JSON over HTTP to the compute orchestration API
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a compute client for the API at baseURL
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type updateRequest struct {
	Image          string `json:"image"`
	ForceNewDeploy bool   `json:"force_new_deploy"`
}

type updateResponse struct {
	DeploymentID string `json:"deployment_id"`
}

// UpdateService implements Client
func (c *HTTPClient) UpdateService(ctx context.Context, serviceID, imageRef string) (string, error) {
	body, err := json.Marshal(updateRequest{Image: imageRef, ForceNewDeploy: true})
	if err != nil {
		return "", fmt.Errorf("failed to encode update request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/services/%s/update", c.baseURL, url.PathEscape(serviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp updateResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}

	return resp.DeploymentID, nil
}

// DescribeService implements Client
func (c *HTTPClient) DescribeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/services/%s", c.baseURL, url.PathEscape(serviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create describe request: %w", err)
	}

	var status types.ServiceStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("compute API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: buf.String()}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode compute API response: %w", err)
	}

	return nil
}
