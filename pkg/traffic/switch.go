package traffic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/metrics"
	"github.com/nkefor/cutover/pkg/retry"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

// ErrSwitchVerificationFailed means the default rule did not report the
// requested color after the modify call. It indicates an inconsistent or
// racing external state and is treated like a post-switch health failure.
var ErrSwitchVerificationFailed = errors.New("switch verification failed: active color does not match requested color")

// mutatePolicy retries transient failures of the modify/describe calls
var mutatePolicy = retry.Policy{Attempts: 3, Interval: 2 * time.Second}

// Switcher performs the atomic cutover: one modify-rule operation followed
// by a verification read.
type Switcher struct {
	cfg     *config.PipelineConfig
	routing routing.Client
	logger  zerolog.Logger
}

// NewSwitcher creates a traffic switcher
func NewSwitcher(cfg *config.PipelineConfig, routingClient routing.Client) *Switcher {
	return &Switcher{
		cfg:     cfg,
		routing: routingClient,
		logger:  log.WithComponent("switch"),
	}
}

// Switch repoints the default rule at toColor's target group and verifies
// that the change took effect.
func (s *Switcher) Switch(ctx context.Context, toColor types.Color) (types.RoutingState, error) {
	env, err := s.cfg.EnvironmentFor(toColor)
	if err != nil {
		return types.RoutingState{}, err
	}

	s.logger.Info().
		Str("to_color", string(toColor)).
		Str("target_group", env.TargetGroupRef).
		Msg("switching default rule")

	state, err := modifyAndVerify(ctx, s.cfg, s.routing, env.TargetGroupRef, toColor)
	if err != nil {
		metrics.SwitchesTotal.WithLabelValues(string(toColor), "failure").Inc()
		return state, err
	}

	metrics.SwitchesTotal.WithLabelValues(string(toColor), "success").Inc()
	s.logger.Info().Str("active_color", string(state.ActiveColor)).Msg("cutover verified")
	return state, nil
}

// modifyAndVerify is the shared modify + re-read sequence used by both the
// switcher and the rollback manager.
func modifyAndVerify(ctx context.Context, cfg *config.PipelineConfig, client routing.Client, targetGroupRef string, want types.Color) (types.RoutingState, error) {
	err := retry.Do(ctx, mutatePolicy, func(ctx context.Context) error {
		modifyErr := client.ModifyDefaultRule(ctx, cfg.ListenerRef, targetGroupRef)
		if modifyErr != nil && !routing.IsTransient(modifyErr) {
			return retry.Permanent(modifyErr)
		}
		return modifyErr
	})
	if err != nil {
		return types.RoutingState{}, fmt.Errorf("failed to modify default rule: %w", err)
	}

	// Re-read immediately: the load balancer is the source of truth, not
	// the ack of the modify call.
	var current string
	err = retry.Do(ctx, mutatePolicy, func(ctx context.Context) error {
		var describeErr error
		current, describeErr = client.DescribeDefaultRule(ctx, cfg.ListenerRef)
		if describeErr != nil && !routing.IsTransient(describeErr) {
			return retry.Permanent(describeErr)
		}
		return describeErr
	})
	if err != nil {
		return types.RoutingState{}, fmt.Errorf("failed to verify default rule: %w", err)
	}

	state := types.RoutingState{
		ActiveColor:    cfg.ColorForTargetGroup(current),
		RuleRef:        cfg.ListenerRef,
		TargetGroupRef: current,
	}

	if state.ActiveColor != want {
		metrics.SwitchVerificationFailures.Inc()
		return state, fmt.Errorf("%w: wanted %s, load balancer reports %s", ErrSwitchVerificationFailed, want, state.ActiveColor)
	}

	return state, nil
}
