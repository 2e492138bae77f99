package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/metrics"
	"github.com/nkefor/cutover/pkg/probe"
	"github.com/nkefor/cutover/pkg/retry"
	"github.com/nkefor/cutover/pkg/types"
)

// Mode distinguishes pre-switch gating (failure aborts before traffic is
// touched) from post-switch gating (failure triggers automatic rollback)
type Mode string

const (
	ModePreSwitch  Mode = "pre_switch"
	ModePostSwitch Mode = "post_switch"
)

// Result is the aggregated gate decision over all probe attempts
type Result struct {
	Passed        bool
	Mode          Mode
	ServicePassed bool
	Probes        []types.HealthCheckResult
	Reason        string
}

// lookupPolicy retries transient service-level lookups
var lookupPolicy = retry.Policy{Attempts: 3, Interval: 2 * time.Second}

// Gate combines the service-level check (running count has reached desired)
// with endpoint-level probes. Both layers must pass.
type Gate struct {
	compute compute.Client
	prober  *probe.Prober
	logger  zerolog.Logger
}

// New creates a health gate
func New(computeClient compute.Client, prober *probe.Prober) *Gate {
	return &Gate{
		compute: computeClient,
		prober:  prober,
		logger:  log.WithComponent("gate"),
	}
}

// Evaluate runs the gate against env. Up to attempts probes are issued,
// interval apart; the gate passes on the first fully-passing probe. A
// cancellation aborts the probe loop immediately.
func (g *Gate) Evaluate(ctx context.Context, env types.Environment, mode Mode, attempts int, interval time.Duration) (Result, error) {
	if attempts < 1 {
		attempts = 1
	}

	logger := g.logger.With().
		Str("mode", string(mode)).
		Str("color", string(env.Color)).
		Str("service_id", env.ServiceID).
		Logger()

	result := Result{Mode: mode}

	// Layer 1: service-level
	status, err := g.describeService(ctx, env.ServiceID)
	if err != nil {
		result.Reason = fmt.Sprintf("service check failed: %v", err)
		return result, err
	}

	if status.RunningCount < status.DesiredCount {
		result.Reason = fmt.Sprintf("service running count %d below desired %d", status.RunningCount, status.DesiredCount)
		logger.Error().Int("running", status.RunningCount).Int("desired", status.DesiredCount).Msg("service-level check failed")
		return result, nil
	}
	result.ServicePassed = true

	// Layer 2: endpoint-level
	for attempt := 1; attempt <= attempts; attempt++ {
		probeResult := g.prober.Probe(ctx, env.EndpointURL, attempt)
		result.Probes = append(result.Probes, probeResult)

		metrics.ProbeLatency.Observe(probeResult.Latency.Seconds())
		metrics.ProbesTotal.WithLabelValues(string(mode), outcome(probeResult.Passed)).Inc()

		if probeResult.Passed {
			if probeResult.Message != "" {
				// Passing but slow: soft warning, never a gate failure
				logger.Warn().Int("attempt", attempt).Str("warning", probeResult.Message).Msg("probe passed with warning")
			} else {
				logger.Info().Int("attempt", attempt).Dur("latency", probeResult.Latency).Msg("probe passed")
			}
			result.Passed = true
			return result, nil
		}

		logger.Warn().
			Int("attempt", attempt).
			Int("http_status", probeResult.HTTPStatus).
			Str("reason", probeResult.Message).
			Msg("probe failed")

		if attempt < attempts {
			if err := retry.Sleep(ctx, interval); err != nil {
				result.Reason = "probe loop cancelled"
				return result, err
			}
		}
	}

	result.Reason = fmt.Sprintf("all %d probe attempts failed; last: %s", attempts, lastMessage(result.Probes))
	logger.Error().Int("attempts", attempts).Msg("endpoint-level check failed")
	return result, nil
}

func (g *Gate) describeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error) {
	var status *types.ServiceStatus
	err := retry.Do(ctx, lookupPolicy, func(ctx context.Context) error {
		var describeErr error
		status, describeErr = g.compute.DescribeService(ctx, serviceID)
		if describeErr != nil && !compute.IsTransient(describeErr) {
			return retry.Permanent(describeErr)
		}
		return describeErr
	})
	return status, err
}

func lastMessage(probes []types.HealthCheckResult) string {
	if len(probes) == 0 {
		return "no probes executed"
	}
	return probes[len(probes)-1].Message
}

func outcome(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
