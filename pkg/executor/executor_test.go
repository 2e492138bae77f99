package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkefor/cutover/pkg/compute"
	"github.com/nkefor/cutover/pkg/types"
)

type fakeCompute struct {
	updateErr   error
	updateCalls int

	// statuses are returned in order; the last one repeats
	statuses      []*types.ServiceStatus
	describeErr   error
	describeCalls int
}

func (f *fakeCompute) UpdateService(ctx context.Context, serviceID, imageRef string) (string, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return "", f.updateErr
	}
	return "handle-1", nil
}

func (f *fakeCompute) DescribeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	idx := f.describeCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func standbyEnv() types.Environment {
	return types.Environment{
		Color:          types.ColorGreen,
		ServiceID:      "web-green",
		TargetGroupRef: "tg-green",
		EndpointURL:    "http://green",
	}
}

func TestDeploy_ConvergesAfterPolling(t *testing.T) {
	client := &fakeCompute{statuses: []*types.ServiceStatus{
		{RunningCount: 0, DesiredCount: 3, PendingCount: 3},
		{RunningCount: 2, DesiredCount: 3, PendingCount: 1},
		{RunningCount: 3, DesiredCount: 3, PendingCount: 0},
	}}

	e := New(client, 5*time.Millisecond)

	env, err := e.Deploy(context.Background(), standbyEnv(), "web:v2", time.Second)
	require.NoError(t, err)

	assert.Equal(t, "web:v2", env.ImageRef)
	assert.Equal(t, 3, env.RunningCount)
	assert.Equal(t, 1, client.updateCalls)
	assert.Equal(t, 3, client.describeCalls)
}

func TestDeploy_TimeoutWhenNeverConverges(t *testing.T) {
	client := &fakeCompute{statuses: []*types.ServiceStatus{
		{RunningCount: 1, DesiredCount: 3, PendingCount: 2},
	}}

	e := New(client, 5*time.Millisecond)

	_, err := e.Deploy(context.Background(), standbyEnv(), "web:v2", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrDeploymentTimeout)
}

func TestDeploy_UpdateFailureNotRetriedWhenPermanent(t *testing.T) {
	client := &fakeCompute{updateErr: &compute.APIError{StatusCode: 404, Body: "no such service"}}

	e := New(client, 5*time.Millisecond)

	_, err := e.Deploy(context.Background(), standbyEnv(), "web:v2", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeploymentTimeout)
	assert.Equal(t, 1, client.updateCalls)
}

func TestDeploy_PermanentPollErrorFails(t *testing.T) {
	client := &fakeCompute{describeErr: errors.New("forbidden")}

	e := New(client, 5*time.Millisecond)

	_, err := e.Deploy(context.Background(), standbyEnv(), "web:v2", time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeploymentTimeout)
}

func TestDeploy_TransientPollErrorsTolerated(t *testing.T) {
	client := &fakeCompute{describeErr: &compute.APIError{StatusCode: 503, Body: "busy"}}

	e := New(client, 5*time.Millisecond)

	// All polls fail transiently, so the deploy times out rather than failing
	_, err := e.Deploy(context.Background(), standbyEnv(), "web:v2", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrDeploymentTimeout)
	assert.Greater(t, client.describeCalls, 1)
}

func TestDeploy_CancelledDuringPolling(t *testing.T) {
	client := &fakeCompute{statuses: []*types.ServiceStatus{
		{RunningCount: 1, DesiredCount: 3, PendingCount: 2},
	}}

	ctx, cancel := context.WithCancel(context.Background())

	e := New(client, 50*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := e.Deploy(ctx, standbyEnv(), "web:v2", time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Deploy did not return after cancellation")
	}
}
