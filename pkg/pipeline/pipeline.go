package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/events"
	"github.com/nkefor/cutover/pkg/executor"
	"github.com/nkefor/cutover/pkg/gate"
	"github.com/nkefor/cutover/pkg/log"
	"github.com/nkefor/cutover/pkg/metrics"
	"github.com/nkefor/cutover/pkg/probe"
	"github.com/nkefor/cutover/pkg/resolver"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/store"
	"github.com/nkefor/cutover/pkg/traffic"
	"github.com/nkefor/cutover/pkg/types"
)

// ErrDeploymentInProgress is returned when a second pipeline run is started
// for a service that already has one in flight. The second run is rejected,
// not queued: overlapping pipelines would race on the same routing rule.
var ErrDeploymentInProgress = errors.New("a deployment for this service is already in progress")

// rollbackLoopWindow is how far back repeated rollbacks are counted when
// warning about a rollback loop
const rollbackLoopWindow = time.Hour

// Controller sequences the deployment state machine: resolve, deploy
// standby, pre-switch gate, cutover, post-switch gate, promote — with
// automatic rollback on post-switch failure.
type Controller struct {
	cfg      *config.PipelineConfig
	resolver *resolver.Resolver
	executor *executor.Executor
	gate     *gate.Gate
	switcher *traffic.Switcher
	rollback *traffic.RollbackManager
	store    store.Store
	broker   *events.Broker
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithStore attaches the audit store. Phase transitions and rollback
// records are persisted through it.
func WithStore(s store.Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

// WithBroker attaches an event broker for live progress consumers
func WithBroker(b *events.Broker) Option {
	return func(c *Controller) {
		c.broker = b
	}
}

// New wires a controller from the pipeline configuration and the two
// external API clients
func New(cfg *config.PipelineConfig, computeClient compute.Client, routingClient routing.Client, opts ...Option) *Controller {
	prober := probe.New(cfg.Health.RequiredHeaders)
	prober.HealthPath = cfg.Health.Path
	prober.LatencyWarn = cfg.Health.LatencyWarn.Std()
	prober.LatencyMax = cfg.Health.LatencyMax.Std()
	prober.Client.Timeout = cfg.Timeouts.Probe.Std()

	c := &Controller{
		cfg:      cfg,
		resolver: resolver.New(cfg, routingClient, computeClient),
		executor: executor.New(computeClient, cfg.PollInterval.Std()),
		gate:     gate.New(computeClient, prober),
		switcher: traffic.NewSwitcher(cfg, routingClient),
		logger:   log.WithComponent("pipeline"),
		inflight: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	// The rollback manager shares the audit store as its recorder
	var recorder traffic.Recorder
	if c.store != nil {
		recorder = c.store
	}
	c.rollback = traffic.NewRollbackManager(cfg, routingClient, recorder)

	return c
}

// Run executes one full blue/green deployment of imageRef. The returned
// Deployment carries the terminal phase and the full transition log; err is
// non-nil for every terminal state except Promoted.
func (c *Controller) Run(ctx context.Context, imageRef string) (*types.Deployment, error) {
	if imageRef == "" {
		return nil, fmt.Errorf("image reference is required")
	}

	if !c.acquire(c.cfg.Service) {
		return nil, ErrDeploymentInProgress
	}
	defer c.release(c.cfg.Service)

	deployment := &types.Deployment{
		ID:        uuid.NewString(),
		Service:   c.cfg.Service,
		ImageRef:  imageRef,
		StartedAt: time.Now(),
	}

	logger := c.logger.With().
		Str("deployment_id", deployment.ID).
		Str("service", deployment.Service).
		Str("image", imageRef).
		Logger()
	logger.Info().Msg("starting blue/green deployment")

	run := &runState{deployment: deployment, logger: logger, lastTransition: deployment.StartedAt}

	// RESOLVE
	c.advance(run, types.PhaseResolving, "")
	active, standby, err := c.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, resolver.ErrAmbiguousRoutingState) {
			// Fatal: no rollback is possible when we cannot tell which
			// environment is live
			return c.fail(run, fmt.Sprintf("routing state is ambiguous: %v", err))
		}
		return c.fail(run, fmt.Sprintf("failed to resolve environments: %v", err))
	}
	deployment.TargetColor = standby.Color

	c.warnOnRollbackLoop(logger)

	// DEPLOY_STANDBY
	c.advance(run, types.PhaseDeployingStandby, "")
	standby, err = c.executor.Deploy(ctx, standby, imageRef, c.cfg.Timeouts.Deploy.Std())
	if err != nil {
		// Standby carries no traffic, so no rollback is needed
		return c.fail(run, fmt.Sprintf("standby deployment failed: %v", err))
	}

	// PRE_HEALTH
	c.advance(run, types.PhasePreSwitchHealthCheck, "")
	preResult, err := c.gate.Evaluate(ctx, standby, gate.ModePreSwitch, c.cfg.Health.Attempts, c.cfg.Health.Interval.Std())
	if err != nil {
		return c.fail(run, fmt.Sprintf("pre-switch health check aborted: %v", err))
	}
	if !preResult.Passed {
		// Abort before any traffic is affected
		return c.fail(run, fmt.Sprintf("pre-switch health check failed: %s", preResult.Reason))
	}

	if err := ctx.Err(); err != nil {
		return c.fail(run, "cancelled before switch; standby left deployed but not live")
	}

	// SWITCH. Cancellation is not honored mid-flight: a half-completed
	// switch is a worse failure mode than a slightly delayed cancellation.
	c.advance(run, types.PhaseSwitching, "")
	switchCtx, cancelSwitch := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeouts.Switch.Std())
	_, err = c.switcher.Switch(switchCtx, standby.Color)
	cancelSwitch()
	if err != nil {
		return c.rollbackAndFinish(ctx, run, active.Color, fmt.Sprintf("switch failed: %v", err))
	}

	// POST_HEALTH
	c.advance(run, types.PhasePostSwitchHealthCheck, "")
	postResult, err := c.gate.Evaluate(ctx, standby, gate.ModePostSwitch, c.cfg.Health.Attempts, c.cfg.Health.Interval.Std())
	if err != nil {
		// Traffic has already moved; a cancelled gate still rolls back
		return c.rollbackAndFinish(ctx, run, active.Color, fmt.Sprintf("post-switch health check aborted: %v", err))
	}
	if !postResult.Passed {
		return c.rollbackAndFinish(ctx, run, active.Color, fmt.Sprintf("post-switch health check failed: %s", postResult.Reason))
	}

	// PROMOTED
	c.advance(run, types.PhasePromoted, "")
	c.finish(run, "promoted")
	c.publish(run, events.EventPromoted, "deployment promoted")
	logger.Info().Str("active_color", string(standby.Color)).Msg("deployment promoted")
	return deployment, nil
}

// runState carries per-run bookkeeping alongside the deployment record
type runState struct {
	deployment     *types.Deployment
	logger         zerolog.Logger
	lastTransition time.Time
}

func (c *Controller) rollbackAndFinish(ctx context.Context, run *runState, toColor types.Color, reason string) (*types.Deployment, error) {
	c.advance(run, types.PhaseRollingBack, reason)
	run.logger.Warn().Str("to_color", string(toColor)).Str("reason", reason).Msg("rolling back")

	// The revert must complete even if the operator cancelled; it is the
	// only way back to a known-good state.
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeouts.Switch.Std())
	defer cancel()

	if _, err := c.rollback.Rollback(rollbackCtx, toColor, reason); err != nil {
		msg := fmt.Sprintf("rollback failed, traffic state is indeterminate: %v; manual intervention required: run `cutover rollback --to %s`", err, toColor)
		return c.fail(run, msg)
	}

	c.advance(run, types.PhaseRolledBack, reason)
	c.finish(run, "rolled_back")
	c.publish(run, events.EventRolledBack, reason)
	return run.deployment, fmt.Errorf("deployment rolled back: %s", reason)
}

func (c *Controller) fail(run *runState, reason string) (*types.Deployment, error) {
	c.advance(run, types.PhaseFailed, reason)
	c.finish(run, "failed")
	c.publish(run, events.EventFailed, reason)
	run.logger.Error().Str("reason", reason).Msg("deployment failed")
	return run.deployment, errors.New(reason)
}

// advance records a phase transition: append to the deployment's log,
// persist, publish, and observe the previous phase's duration.
func (c *Controller) advance(run *runState, phase types.Phase, reason string) {
	deployment := run.deployment

	prev := deployment.Phase
	if prev != "" {
		metrics.PhaseDuration.WithLabelValues(string(prev)).Observe(time.Since(run.lastTransition).Seconds())
	}
	run.lastTransition = time.Now()

	deployment.Advance(phase, reason)
	run.logger.Info().
		Str("phase", string(phase)).
		Str("previous", string(prev)).
		Msg("phase transition")

	if c.store != nil {
		if err := c.store.SaveDeployment(deployment); err != nil {
			run.logger.Error().Err(err).Msg("failed to persist deployment record")
		}
	}

	c.publish(run, events.EventPhaseChanged, reason)
}

func (c *Controller) finish(run *runState, outcome string) {
	run.deployment.FinishedAt = time.Now()
	metrics.DeploymentsTotal.WithLabelValues(outcome).Inc()

	if c.store != nil {
		if err := c.store.SaveDeployment(run.deployment); err != nil {
			run.logger.Error().Err(err).Msg("failed to persist deployment record")
		}
	}
}

func (c *Controller) publish(run *runState, eventType events.EventType, message string) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		Type:         eventType,
		DeploymentID: run.deployment.ID,
		Service:      run.deployment.Service,
		Phase:        run.deployment.Phase,
		Color:        run.deployment.TargetColor,
		Message:      message,
	})
}

func (c *Controller) warnOnRollbackLoop(logger zerolog.Logger) {
	if c.store == nil {
		return
	}

	count, err := c.store.RollbacksSince(c.cfg.Service, time.Now().Add(-rollbackLoopWindow))
	if err != nil {
		logger.Warn().Err(err).Msg("could not check rollback history")
		return
	}
	if count >= 2 {
		logger.Warn().
			Int("rollbacks_last_hour", count).
			Msg("repeated rollbacks detected for this service; the image or its dependencies are likely unhealthy")
	}
}

func (c *Controller) acquire(service string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[service]; busy {
		return false
	}
	c.inflight[service] = struct{}{}
	return true
}

func (c *Controller) release(service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, service)
}
