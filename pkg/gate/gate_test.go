package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkefor/cutover/pkg/probe"
	"github.com/nkefor/cutover/pkg/types"
)

type fakeCompute struct {
	status        *types.ServiceStatus
	describeCalls int
}

func (f *fakeCompute) UpdateService(ctx context.Context, serviceID, imageRef string) (string, error) {
	return "handle", nil
}

func (f *fakeCompute) DescribeService(ctx context.Context, serviceID string) (*types.ServiceStatus, error) {
	f.describeCalls++
	return f.status, nil
}

func healthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func env(endpoint string) types.Environment {
	return types.Environment{
		Color:       types.ColorGreen,
		ServiceID:   "web-green",
		EndpointURL: endpoint,
	}
}

func TestEvaluate_PassesOnFirstProbe(t *testing.T) {
	server := healthyServer(t)
	client := &fakeCompute{status: &types.ServiceStatus{RunningCount: 3, DesiredCount: 3}}

	g := New(client, probe.New(nil))

	result, err := g.Evaluate(context.Background(), env(server.URL), ModePreSwitch, 3, time.Millisecond)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.True(t, result.ServicePassed)
	assert.Len(t, result.Probes, 1)
}

func TestEvaluate_ServiceLevelFailureSkipsProbes(t *testing.T) {
	server := healthyServer(t)
	client := &fakeCompute{status: &types.ServiceStatus{RunningCount: 1, DesiredCount: 3}}

	g := New(client, probe.New(nil))

	result, err := g.Evaluate(context.Background(), env(server.URL), ModePreSwitch, 3, time.Millisecond)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.False(t, result.ServicePassed)
	assert.Empty(t, result.Probes, "endpoint probes must not run when the service-level check fails")
}

func TestEvaluate_ExhaustsAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := &fakeCompute{status: &types.ServiceStatus{RunningCount: 3, DesiredCount: 3}}

	g := New(client, probe.New(nil))

	result, err := g.Evaluate(context.Background(), env(server.URL), ModePostSwitch, 3, time.Millisecond)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Len(t, result.Probes, 3)
	assert.NotEmpty(t, result.Reason)
}

func TestEvaluate_RecoversOnLaterAttempt(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := &fakeCompute{status: &types.ServiceStatus{RunningCount: 3, DesiredCount: 3}}

	g := New(client, probe.New(nil))

	result, err := g.Evaluate(context.Background(), env(server.URL), ModePreSwitch, 5, time.Millisecond)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Len(t, result.Probes, 3, "gate passes on the first fully-passing probe")
}

func TestEvaluate_CancelledBetweenAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := &fakeCompute{status: &types.ServiceStatus{RunningCount: 3, DesiredCount: 3}}

	g := New(client, probe.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := g.Evaluate(ctx, env(server.URL), ModePreSwitch, 100, time.Minute)
		assert.False(t, result.Passed)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Evaluate did not return after cancellation")
	}
}
