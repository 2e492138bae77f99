package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nkefor/cutover/pkg/types"
)

// EnvironmentConfig identifies one color's service, target group, and endpoint
type EnvironmentConfig struct {
	ServiceID      string `yaml:"serviceId"`
	TargetGroupRef string `yaml:"targetGroup"`
	EndpointURL    string `yaml:"endpoint"`
}

// HealthConfig controls the health gate
type HealthConfig struct {
	Path            string   `yaml:"path"`
	Attempts        int      `yaml:"attempts"`
	Interval        Duration `yaml:"interval"`
	RequiredHeaders []string `yaml:"requiredHeaders"`
	LatencyWarn     Duration `yaml:"latencyWarn"`
	LatencyMax      Duration `yaml:"latencyMax"`
}

// TimeoutConfig bounds each pipeline phase
type TimeoutConfig struct {
	Deploy Duration `yaml:"deploy"`
	Switch Duration `yaml:"switch"`
	Probe  Duration `yaml:"probe"`
}

// PipelineConfig is the full configuration for one blue/green pipeline.
// It is passed explicitly through every component; there is no hidden
// environment-variable coupling.
type PipelineConfig struct {
	Service      string            `yaml:"service"`
	ListenerRef  string            `yaml:"listener"`
	ComputeAPI   string            `yaml:"computeApi"`
	RoutingAPI   string            `yaml:"routingApi"`
	Blue         EnvironmentConfig `yaml:"blue"`
	Green        EnvironmentConfig `yaml:"green"`
	Health       HealthConfig      `yaml:"health"`
	Timeouts     TimeoutConfig     `yaml:"timeouts"`
	PollInterval Duration          `yaml:"pollInterval"`
	DataDir      string            `yaml:"dataDir"`
}

// Load reads and validates a pipeline configuration file
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *PipelineConfig) applyDefaults() {
	if c.Health.Path == "" {
		c.Health.Path = "/health"
	}
	if c.Health.Attempts == 0 {
		c.Health.Attempts = 5
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = Duration(10 * time.Second)
	}
	if c.Health.LatencyWarn == 0 {
		c.Health.LatencyWarn = Duration(2 * time.Second)
	}
	if c.Health.LatencyMax == 0 {
		c.Health.LatencyMax = Duration(10 * time.Second)
	}
	if c.Timeouts.Deploy == 0 {
		c.Timeouts.Deploy = Duration(10 * time.Minute)
	}
	if c.Timeouts.Switch == 0 {
		c.Timeouts.Switch = Duration(30 * time.Second)
	}
	if c.Timeouts.Probe == 0 {
		c.Timeouts.Probe = Duration(5 * time.Second)
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(10 * time.Second)
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// Validate checks that every required identifier is present. Configuration
// errors fail fast: nothing has been mutated yet, so there is no retry and
// no rollback.
func (c *PipelineConfig) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("config: service name is required")
	}
	if c.ListenerRef == "" {
		return fmt.Errorf("config: listener reference is required")
	}
	if c.ComputeAPI == "" {
		return fmt.Errorf("config: compute API address is required")
	}
	if c.RoutingAPI == "" {
		return fmt.Errorf("config: routing API address is required")
	}

	for color, env := range map[types.Color]EnvironmentConfig{
		types.ColorBlue:  c.Blue,
		types.ColorGreen: c.Green,
	} {
		if env.ServiceID == "" {
			return fmt.Errorf("config: %s serviceId is required", color)
		}
		if env.TargetGroupRef == "" {
			return fmt.Errorf("config: %s targetGroup is required", color)
		}
		if env.EndpointURL == "" {
			return fmt.Errorf("config: %s endpoint is required", color)
		}
	}

	if c.Blue.TargetGroupRef == c.Green.TargetGroupRef {
		return fmt.Errorf("config: blue and green target groups must differ")
	}
	if c.Blue.ServiceID == c.Green.ServiceID {
		return fmt.Errorf("config: blue and green serviceIds must differ")
	}

	return nil
}

// EnvironmentFor returns the environment skeleton for a color
func (c *PipelineConfig) EnvironmentFor(color types.Color) (types.Environment, error) {
	switch color {
	case types.ColorBlue:
		return types.Environment{
			Color:          types.ColorBlue,
			ServiceID:      c.Blue.ServiceID,
			TargetGroupRef: c.Blue.TargetGroupRef,
			EndpointURL:    c.Blue.EndpointURL,
		}, nil
	case types.ColorGreen:
		return types.Environment{
			Color:          types.ColorGreen,
			ServiceID:      c.Green.ServiceID,
			TargetGroupRef: c.Green.TargetGroupRef,
			EndpointURL:    c.Green.EndpointURL,
		}, nil
	default:
		return types.Environment{}, fmt.Errorf("no environment for color %q", color)
	}
}

// ColorForTargetGroup maps a target group reference back to its color.
// Returns ColorUnknown when the reference matches neither environment.
func (c *PipelineConfig) ColorForTargetGroup(ref string) types.Color {
	switch ref {
	case c.Blue.TargetGroupRef:
		return types.ColorBlue
	case c.Green.TargetGroupRef:
		return types.ColorGreen
	default:
		return types.ColorUnknown
	}
}
