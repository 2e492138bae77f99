package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/nkefor/cutover/pkg/types"
)

// Prober issues HTTP probes against an environment's endpoint and evaluates
// status code, response headers, and latency. A single probe attempt hits
// the health path and the root path; both must return 200 and carry the
// required headers for the attempt to pass.
type Prober struct {
	// HealthPath is the well-known health endpoint (default: /health)
	HealthPath string

	// RequiredHeaders must be present on every probed response
	RequiredHeaders []string

	// LatencyWarn marks a passing probe as slow. Soft only.
	LatencyWarn time.Duration

	// LatencyMax fails the probe outright when exceeded
	LatencyMax time.Duration

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// New creates a prober with sensible defaults
func New(requiredHeaders []string) *Prober {
	return &Prober{
		HealthPath:      "/health",
		RequiredHeaders: requiredHeaders,
		LatencyWarn:     2 * time.Second,
		LatencyMax:      10 * time.Second,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type healthBody struct {
	Status string `json:"status"`
}

// Probe performs one probe attempt against baseURL
func (p *Prober) Probe(ctx context.Context, baseURL string, attempt int) types.HealthCheckResult {
	start := time.Now()

	result := types.HealthCheckResult{
		Attempt:   attempt,
		CheckedAt: start,
	}

	// Health path first: it carries the healthy indicator
	status, headers, body, err := p.get(ctx, baseURL+p.HealthPath)
	result.Latency = time.Since(start)
	result.HTTPStatus = status
	if err != nil {
		result.Message = fmt.Sprintf("health probe failed: %v", err)
		return result
	}

	present, missing := p.splitHeaders(headers)
	result.HeadersPresent = present
	result.HeadersMissing = missing

	if status != http.StatusOK {
		result.Message = fmt.Sprintf("health path returned %d", status)
		return result
	}

	var parsed healthBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		result.Message = "health path body is not valid JSON"
		return result
	}
	if !healthyIndicator(parsed.Status) {
		result.Message = fmt.Sprintf("health path reports status %q", parsed.Status)
		return result
	}

	// Root path smoke check
	rootStatus, rootHeaders, _, err := p.get(ctx, baseURL+"/")
	if err != nil {
		result.Message = fmt.Sprintf("root probe failed: %v", err)
		return result
	}
	if rootStatus != http.StatusOK {
		result.Message = fmt.Sprintf("root path returned %d", rootStatus)
		return result
	}

	_, rootMissing := p.splitHeaders(rootHeaders)
	result.HeadersMissing = lo.Uniq(append(result.HeadersMissing, rootMissing...))

	if len(result.HeadersMissing) > 0 {
		result.Message = fmt.Sprintf("missing required headers: %s", strings.Join(result.HeadersMissing, ", "))
		return result
	}

	if p.LatencyMax > 0 && result.Latency > p.LatencyMax {
		result.Message = fmt.Sprintf("latency %v exceeds ceiling %v", result.Latency, p.LatencyMax)
		return result
	}

	result.Passed = true
	if p.LatencyWarn > 0 && result.Latency > p.LatencyWarn {
		result.Message = fmt.Sprintf("slow response: %v", result.Latency)
	}

	return result
}

func (p *Prober) get(ctx context.Context, url string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, resp.Header, body, nil
}

func (p *Prober) splitHeaders(headers http.Header) (present, missing []string) {
	present = lo.Filter(p.RequiredHeaders, func(h string, _ int) bool {
		return headers.Get(h) != ""
	})
	missing = lo.Filter(p.RequiredHeaders, func(h string, _ int) bool {
		return headers.Get(h) == ""
	})
	return present, missing
}

func healthyIndicator(status string) bool {
	switch strings.ToLower(status) {
	case "healthy", "ok", "up":
		return true
	default:
		return false
	}
}
