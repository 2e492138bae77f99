package traffic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/metrics"
	"github.com/nkefor/cutover/pkg/retry"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

// Recorder persists rollback records for postmortems and loop detection
type Recorder interface {
	SaveRollback(record *types.RollbackRecord) error
}

// RollbackManager reverts the default rule to a previously active color.
// It never stops or deletes the environment being rolled back away from;
// that environment stays running for forensic inspection, which is why
// rollback is near-instantaneous.
type RollbackManager struct {
	cfg      *config.PipelineConfig
	routing  routing.Client
	recorder Recorder
	logger   zerolog.Logger
}

// NewRollbackManager creates a rollback manager. recorder may be nil.
func NewRollbackManager(cfg *config.PipelineConfig, routingClient routing.Client, recorder Recorder) *RollbackManager {
	return &RollbackManager{
		cfg:      cfg,
		routing:  routingClient,
		recorder: recorder,
		logger:   log.WithComponent("rollback"),
	}
}

// Rollback repoints traffic at toColor. Idempotent: when the load balancer
// already reports toColor active, no mutation is issued. A RollbackRecord is
// created regardless of outcome.
func (m *RollbackManager) Rollback(ctx context.Context, toColor types.Color, reason string) (types.RoutingState, error) {
	logger := m.logger.With().Str("to_color", string(toColor)).Str("reason", reason).Logger()

	record := &types.RollbackRecord{
		ID:        uuid.NewString(),
		Service:   m.cfg.Service,
		FromColor: toColor.Other(),
		ToColor:   toColor,
		Reason:    reason,
		Timestamp: time.Now(),
	}

	state, err := m.execute(ctx, toColor, logger)
	record.Succeeded = err == nil

	if m.recorder != nil {
		if saveErr := m.recorder.SaveRollback(record); saveErr != nil {
			logger.Error().Err(saveErr).Msg("failed to persist rollback record")
		}
	}

	if err != nil {
		metrics.RollbacksTotal.WithLabelValues("failure").Inc()
		return state, err
	}

	metrics.RollbacksTotal.WithLabelValues("success").Inc()
	return state, nil
}

func (m *RollbackManager) execute(ctx context.Context, toColor types.Color, logger zerolog.Logger) (types.RoutingState, error) {
	env, err := m.cfg.EnvironmentFor(toColor)
	if err != nil {
		return types.RoutingState{}, err
	}

	var current string
	err = retry.Do(ctx, mutatePolicy, func(ctx context.Context) error {
		var describeErr error
		current, describeErr = m.routing.DescribeDefaultRule(ctx, m.cfg.ListenerRef)
		if describeErr != nil && !routing.IsTransient(describeErr) {
			return retry.Permanent(describeErr)
		}
		return describeErr
	})
	if err != nil {
		return types.RoutingState{}, fmt.Errorf("failed to read routing state before rollback: %w", err)
	}

	if m.cfg.ColorForTargetGroup(current) == toColor {
		logger.Info().Msg("routing already points at rollback target, nothing to do")
		return types.RoutingState{
			ActiveColor:    toColor,
			RuleRef:        m.cfg.ListenerRef,
			TargetGroupRef: current,
		}, nil
	}

	logger.Warn().Msg("reverting default rule")

	state, err := modifyAndVerify(ctx, m.cfg, m.routing, env.TargetGroupRef, toColor)
	if err != nil {
		logger.Error().Err(err).Msg("rollback failed; routing state is indeterminate")
		return state, fmt.Errorf("rollback to %s failed: %w", toColor, err)
	}

	logger.Info().Msg("rollback verified")
	return state, nil
}
