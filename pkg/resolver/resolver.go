package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/retry"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

// ErrAmbiguousRoutingState means the default rule points at a target group
// that is neither blue nor green. The system refuses to guess which
// environment is active rather than risk an incorrect switch.
var ErrAmbiguousRoutingState = errors.New("routing state is ambiguous: default rule matches neither blue nor green target group")

// lookupPolicy retries transient routing/compute lookups at the call site
var lookupPolicy = retry.Policy{Attempts: 3, Interval: 2 * time.Second}

// Resolver determines which color is active and which is standby by asking
// the load balancer. It has no side effects.
type Resolver struct {
	cfg     *config.PipelineConfig
	routing routing.Client
	compute compute.Client
	logger  zerolog.Logger
}

// New creates a resolver
func New(cfg *config.PipelineConfig, routingClient routing.Client, computeClient compute.Client) *Resolver {
	return &Resolver{
		cfg:     cfg,
		routing: routingClient,
		compute: computeClient,
		logger:  log.WithComponent("resolver"),
	}
}

// RoutingState reads the load balancer's default rule and maps it to a color
func (r *Resolver) RoutingState(ctx context.Context) (types.RoutingState, error) {
	var target string
	err := retry.Do(ctx, lookupPolicy, func(ctx context.Context) error {
		var lookupErr error
		target, lookupErr = r.routing.DescribeDefaultRule(ctx, r.cfg.ListenerRef)
		if lookupErr != nil && !routing.IsTransient(lookupErr) {
			return retry.Permanent(lookupErr)
		}
		return lookupErr
	})
	if err != nil {
		return types.RoutingState{}, fmt.Errorf("transient lookup error reading default rule: %w", err)
	}

	state := types.RoutingState{
		ActiveColor:    r.cfg.ColorForTargetGroup(target),
		RuleRef:        r.cfg.ListenerRef,
		TargetGroupRef: target,
	}

	if state.ActiveColor == types.ColorUnknown {
		r.logger.Error().
			Str("target_group", target).
			Str("blue", r.cfg.Blue.TargetGroupRef).
			Str("green", r.cfg.Green.TargetGroupRef).
			Msg("default rule matches neither known target group")
		return state, ErrAmbiguousRoutingState
	}

	return state, nil
}

// Resolve returns the active and standby environments for the configured
// service, with current counts filled in from the compute platform.
func (r *Resolver) Resolve(ctx context.Context) (active, standby types.Environment, err error) {
	state, err := r.RoutingState(ctx)
	if err != nil {
		return types.Environment{}, types.Environment{}, err
	}

	active, err = r.environmentWithCounts(ctx, state.ActiveColor)
	if err != nil {
		return types.Environment{}, types.Environment{}, err
	}

	standby, err = r.environmentWithCounts(ctx, state.ActiveColor.Other())
	if err != nil {
		return types.Environment{}, types.Environment{}, err
	}

	r.logger.Info().
		Str("active", string(active.Color)).
		Str("standby", string(standby.Color)).
		Int("active_running", active.RunningCount).
		Int("standby_running", standby.RunningCount).
		Msg("resolved environments")

	return active, standby, nil
}

func (r *Resolver) environmentWithCounts(ctx context.Context, color types.Color) (types.Environment, error) {
	env, err := r.cfg.EnvironmentFor(color)
	if err != nil {
		return types.Environment{}, err
	}

	var status *types.ServiceStatus
	err = retry.Do(ctx, lookupPolicy, func(ctx context.Context) error {
		var lookupErr error
		status, lookupErr = r.compute.DescribeService(ctx, env.ServiceID)
		if lookupErr != nil && !compute.IsTransient(lookupErr) {
			return retry.Permanent(lookupErr)
		}
		return lookupErr
	})
	if err != nil {
		return types.Environment{}, fmt.Errorf("failed to describe %s service %s: %w", color, env.ServiceID, err)
	}

	env.RunningCount = status.RunningCount
	env.DesiredCount = status.DesiredCount
	return env, nil
}
