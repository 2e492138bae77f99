package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkefor/cutover/pkg/config"
	"github.com/nkefor/cutover/pkg/routing"
	"github.com/nkefor/cutover/pkg/types"
)

type fakeRouting struct {
	target        string
	describeErr   error
	describeCalls int
	modifyCalls   int
}

func (f *fakeRouting) DescribeDefaultRule(ctx context.Context, listenerRef string) (string, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return f.target, nil
}

func (f *fakeRouting) ModifyDefaultRule(ctx context.Context, listenerRef, targetGroupRef string) error {
	f.modifyCalls++
	f.target = targetGroupRef
	return nil
}

type fakeCompute struct {
	statuses      map[string]*types.ServiceStatus
	describeCalls int
}

func (f *fakeCompute) UpdateService(ctx context.Context, serviceID, imageRef string) (string, error) {
	return "dep-1", nil
}

func (f *fakeCompute) DescribeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error) {
	f.describeCalls++
	status, ok := f.statuses[serviceID]
	if !ok {
		return nil, errors.New("no such service")
	}
	return status, nil
}

func testConfig() *config.PipelineConfig {
	cfg := &config.PipelineConfig{
		Service:     "web",
		ListenerRef: "lsn-1",
		ComputeAPI:  "http://compute",
		RoutingAPI:  "http://routing",
		Blue: config.EnvironmentConfig{
			ServiceID:      "web-blue",
			TargetGroupRef: "tg-blue",
			EndpointURL:    "http://blue",
		},
		Green: config.EnvironmentConfig{
			ServiceID:      "web-green",
			TargetGroupRef: "tg-green",
			EndpointURL:    "http://green",
		},
	}
	return cfg
}

func TestResolve_BlueActive(t *testing.T) {
	routingClient := &fakeRouting{target: "tg-blue"}
	computeClient := &fakeCompute{statuses: map[string]*types.ServiceStatus{
		"web-blue":  {ServiceID: "web-blue", RunningCount: 3, DesiredCount: 3},
		"web-green": {ServiceID: "web-green", RunningCount: 0, DesiredCount: 3},
	}}

	r := New(testConfig(), routingClient, computeClient)

	active, standby, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.ColorBlue, active.Color)
	assert.Equal(t, types.ColorGreen, standby.Color)
	assert.Equal(t, 3, active.RunningCount)
	assert.Equal(t, 0, standby.RunningCount)
}

func TestResolve_GreenActive(t *testing.T) {
	routingClient := &fakeRouting{target: "tg-green"}
	computeClient := &fakeCompute{statuses: map[string]*types.ServiceStatus{
		"web-blue":  {ServiceID: "web-blue", RunningCount: 2, DesiredCount: 2},
		"web-green": {ServiceID: "web-green", RunningCount: 2, DesiredCount: 2},
	}}

	r := New(testConfig(), routingClient, computeClient)

	active, standby, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.ColorGreen, active.Color)
	assert.Equal(t, types.ColorBlue, standby.Color)
}

func TestResolve_AmbiguousRoutingState(t *testing.T) {
	routingClient := &fakeRouting{target: "tg-manual-override"}
	computeClient := &fakeCompute{}

	r := New(testConfig(), routingClient, computeClient)

	_, _, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrAmbiguousRoutingState)

	// Ambiguity is detected before any compute lookup and without mutation
	assert.Equal(t, 0, computeClient.describeCalls)
	assert.Equal(t, 0, routingClient.modifyCalls)
}

func TestResolve_NonTransientLookupNotRetried(t *testing.T) {
	routingClient := &fakeRouting{describeErr: &routing.APIError{StatusCode: 400, Body: "bad listener"}}

	r := New(testConfig(), routingClient, &fakeCompute{})

	_, _, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, routingClient.describeCalls)
}

func TestRoutingState_ReportsTargetGroup(t *testing.T) {
	routingClient := &fakeRouting{target: "tg-blue"}

	r := New(testConfig(), routingClient, &fakeCompute{})

	state, err := r.RoutingState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, state.ActiveColor)
	assert.Equal(t, "tg-blue", state.TargetGroupRef)
	assert.Equal(t, "lsn-1", state.RuleRef)
}
