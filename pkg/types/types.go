package types

import (
	"time"
)

// Color identifies one of the two deployment environments
type Color string

const (
	ColorBlue    Color = "blue"
	ColorGreen   Color = "green"
	ColorUnknown Color = "unknown"
)

// Other returns the opposite color. Unknown has no opposite.
func (c Color) Other() Color {
	switch c {
	case ColorBlue:
		return ColorGreen
	case ColorGreen:
		return ColorBlue
	default:
		return ColorUnknown
	}
}

// Environment represents one complete copy of the service (blue or green).
// Color and the target group reference are fixed for the lifetime of the
// topology; ImageRef and the counts mutate on each deployment.
type Environment struct {
	Color          Color  `json:"color"`
	ServiceID      string `json:"service_id"`
	TargetGroupRef string `json:"target_group_ref"`
	EndpointURL    string `json:"endpoint_url"`
	ImageRef       string `json:"image_ref,omitempty"`
	DesiredCount   int    `json:"desired_count"`
	RunningCount   int    `json:"running_count"`
}

// RoutingState is what the load balancer currently says. It is the only
// source of truth for which environment is live.
type RoutingState struct {
	ActiveColor    Color  `json:"active_color"`
	RuleRef        string `json:"rule_ref"`
	TargetGroupRef string `json:"target_group_ref"`
}

// ServiceStatus is the compute platform's view of a single service
type ServiceStatus struct {
	ServiceID    string `json:"service_id"`
	RunningCount int    `json:"running_count"`
	DesiredCount int    `json:"desired_count"`
	PendingCount int    `json:"pending_count"`
	Status       string `json:"status"`
}

// Converged reports whether the service has reached its desired state
func (s *ServiceStatus) Converged() bool {
	return s.RunningCount == s.DesiredCount && s.PendingCount == 0
}

// Phase represents a stage of the deployment pipeline
type Phase string

const (
	PhaseResolving             Phase = "resolving"
	PhaseDeployingStandby      Phase = "deploying_standby"
	PhasePreSwitchHealthCheck  Phase = "pre_switch_health_check"
	PhaseSwitching             Phase = "switching"
	PhasePostSwitchHealthCheck Phase = "post_switch_health_check"
	PhasePromoted              Phase = "promoted"
	PhaseRollingBack           Phase = "rolling_back"
	PhaseRolledBack            Phase = "rolled_back"
	PhaseFailed                Phase = "failed"
)

// Terminal reports whether the phase ends the pipeline
func (p Phase) Terminal() bool {
	return p == PhasePromoted || p == PhaseRolledBack || p == PhaseFailed
}

// PhaseTransition is one entry in a deployment's append-only phase log
type PhaseTransition struct {
	Phase  Phase     `json:"phase"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Deployment represents a single pipeline run. The phase log is append-only:
// transitions are recorded, never rewritten.
type Deployment struct {
	ID          string            `json:"id"`
	Service     string            `json:"service"`
	TargetColor Color             `json:"target_color"`
	ImageRef    string            `json:"image_ref"`
	Phase       Phase             `json:"phase"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at,omitzero"`
	Transitions []PhaseTransition `json:"transitions"`
	Reason      string            `json:"reason,omitempty"`
}

// Advance records a phase transition in the log and updates the current phase
func (d *Deployment) Advance(phase Phase, reason string) {
	d.Phase = phase
	d.Reason = reason
	d.Transitions = append(d.Transitions, PhaseTransition{
		Phase:  phase,
		At:     time.Now(),
		Reason: reason,
	})
}

// HealthCheckResult is the outcome of a single probe attempt against an
// environment's endpoint
type HealthCheckResult struct {
	Attempt        int           `json:"attempt"`
	HTTPStatus     int           `json:"http_status"`
	Latency        time.Duration `json:"latency"`
	HeadersPresent []string      `json:"headers_present,omitempty"`
	HeadersMissing []string      `json:"headers_missing,omitempty"`
	Passed         bool          `json:"passed"`
	Message        string        `json:"message,omitempty"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// RollbackRecord is created whenever the rollback manager executes,
// regardless of outcome. Kept for postmortems and rollback-loop detection.
type RollbackRecord struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	FromColor Color     `json:"from_color"`
	ToColor   Color     `json:"to_color"`
	Reason    string    `json:"reason"`
	Succeeded bool      `json:"succeeded"`
	Timestamp time.Time `json:"timestamp"`
}
