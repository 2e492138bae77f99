package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkefor/cutover/pkg/types"
)

const validYAML = `
service: storefront
listener: lb-listener-1
computeApi: http://compute.internal:9400
routingApi: http://routing.internal:9500
blue:
  serviceId: storefront-blue
  targetGroup: tg-blue
  endpoint: http://blue.internal:8080
green:
  serviceId: storefront-green
  targetGroup: tg-green
  endpoint: http://green.internal:8080
health:
  attempts: 3
  interval: 1s
  requiredHeaders:
    - X-Content-Type-Options
    - X-Frame-Options
    - Referrer-Policy
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.Service)
	assert.Equal(t, "tg-blue", cfg.Blue.TargetGroupRef)
	assert.Equal(t, 3, cfg.Health.Attempts)
	assert.Equal(t, time.Second, cfg.Health.Interval.Std())

	// Defaults fill in unspecified fields
	assert.Equal(t, "/health", cfg.Health.Path)
	assert.Equal(t, 10*time.Minute, cfg.Timeouts.Deploy.Std())
	assert.Equal(t, 10*time.Second, cfg.PollInterval.Std())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "service: [unclosed"))
	assert.Error(t, err)
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"missing service", func(c *PipelineConfig) { c.Service = "" }},
		{"missing listener", func(c *PipelineConfig) { c.ListenerRef = "" }},
		{"missing compute api", func(c *PipelineConfig) { c.ComputeAPI = "" }},
		{"missing routing api", func(c *PipelineConfig) { c.RoutingAPI = "" }},
		{"missing blue serviceId", func(c *PipelineConfig) { c.Blue.ServiceID = "" }},
		{"missing green target group", func(c *PipelineConfig) { c.Green.TargetGroupRef = "" }},
		{"missing green endpoint", func(c *PipelineConfig) { c.Green.EndpointURL = "" }},
		{"identical target groups", func(c *PipelineConfig) { c.Green.TargetGroupRef = c.Blue.TargetGroupRef }},
		{"identical serviceIds", func(c *PipelineConfig) { c.Green.ServiceID = c.Blue.ServiceID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestColorForTargetGroup(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, types.ColorBlue, cfg.ColorForTargetGroup("tg-blue"))
	assert.Equal(t, types.ColorGreen, cfg.ColorForTargetGroup("tg-green"))
	assert.Equal(t, types.ColorUnknown, cfg.ColorForTargetGroup("tg-surprise"))
}

func TestEnvironmentFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	env, err := cfg.EnvironmentFor(types.ColorGreen)
	require.NoError(t, err)
	assert.Equal(t, "storefront-green", env.ServiceID)
	assert.Equal(t, "tg-green", env.TargetGroupRef)

	_, err = cfg.EnvironmentFor(types.ColorUnknown)
	assert.Error(t, err)
}
