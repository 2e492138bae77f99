package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/retry"
	"github.com/nkefor/cutover/pkg/types"
)

// ErrDeploymentTimeout means the standby service did not converge within the
// deploy timeout. The caller must not proceed to switch. No rollback is
// needed: standby carries no traffic, so nothing user-facing has changed.
var ErrDeploymentTimeout = errors.New("deployment timed out waiting for standby service to stabilize")

// updatePolicy retries the transient failures of the update call itself
var updatePolicy = retry.Policy{Attempts: 3, Interval: 2 * time.Second}

// Executor updates the standby environment's compute service and waits for
// convergence. The platform performs its own internal scheduling; the
// executor only detects convergence or gives up.
type Executor struct {
	compute      compute.Client
	pollInterval time.Duration
	logger       zerolog.Logger
}

// New creates an executor polling at pollInterval
func New(computeClient compute.Client, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Executor{
		compute:      computeClient,
		pollInterval: pollInterval,
		logger:       log.WithComponent("executor"),
	}
}

// Deploy triggers a fresh rollout of imageRef on the standby environment and
// polls until runningCount == desiredCount with no pending tasks, or until
// timeout elapses.
func (e *Executor) Deploy(ctx context.Context, standby types.Environment, imageRef string, timeout time.Duration) (types.Environment, error) {
	logger := e.logger.With().
		Str("service_id", standby.ServiceID).
		Str("color", string(standby.Color)).
		Str("image", imageRef).
		Logger()

	var handle string
	err := retry.Do(ctx, updatePolicy, func(ctx context.Context) error {
		var updateErr error
		handle, updateErr = e.compute.UpdateService(ctx, standby.ServiceID, imageRef)
		if updateErr != nil && !compute.IsTransient(updateErr) {
			return retry.Permanent(updateErr)
		}
		return updateErr
	})
	if err != nil {
		return standby, fmt.Errorf("failed to update standby service: %w", err)
	}

	logger.Info().Str("deployment_handle", handle).Msg("standby update triggered, waiting for convergence")

	deadline := time.Now().Add(timeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		status, err := e.compute.DescribeService(pollCtx, standby.ServiceID)
		switch {
		case err == nil:
			logger.Debug().
				Int("running", status.RunningCount).
				Int("desired", status.DesiredCount).
				Int("pending", status.PendingCount).
				Msg("polled standby service")

			if status.Converged() {
				standby.ImageRef = imageRef
				standby.RunningCount = status.RunningCount
				standby.DesiredCount = status.DesiredCount
				logger.Info().Msg("standby service converged")
				return standby, nil
			}
		case compute.IsTransient(err):
			// Transient poll failures do not fail the deployment on their
			// own; the next tick retries.
			logger.Warn().Err(err).Msg("transient error polling standby service")
		default:
			return standby, fmt.Errorf("failed to poll standby service: %w", err)
		}

		if err := retry.Sleep(pollCtx, e.pollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return standby, ErrDeploymentTimeout
			}
			return standby, err
		}
	}
}
