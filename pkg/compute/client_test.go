package compute

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_UpdateService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/services/web-green/update" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Image != "registry.local/web:v2" {
			t.Errorf("unexpected image: %s", req.Image)
		}
		if !req.ForceNewDeploy {
			t.Error("expected force_new_deploy to be set")
		}

		_ = json.NewEncoder(w).Encode(updateResponse{DeploymentID: "dep-42"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	handle, err := client.UpdateService(context.Background(), "web-green", "registry.local/web:v2")
	if err != nil {
		t.Fatalf("UpdateService failed: %v", err)
	}
	if handle != "dep-42" {
		t.Errorf("expected handle 'dep-42', got %q", handle)
	}
}

func TestHTTPClient_DescribeService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/services/web-blue" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"service_id":"web-blue","running_count":3,"desired_count":3,"pending_count":0,"status":"ACTIVE"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	status, err := client.DescribeService(context.Background(), "web-blue")
	if err != nil {
		t.Fatalf("DescribeService failed: %v", err)
	}

	if status.RunningCount != 3 || status.DesiredCount != 3 {
		t.Errorf("unexpected counts: %+v", status)
	}
	if !status.Converged() {
		t.Error("expected service to report converged")
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.DescribeService(context.Background(), "web-blue")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("429 should be transient, got %v", err)
	}
}

func TestHTTPClient_NotFoundNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such service", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.DescribeService(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Errorf("404 should not be transient, got %v", err)
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	// Closed server to force a connection failure
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.DescribeService(context.Background(), "web-blue")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransient(err) {
		t.Errorf("connection failure should be transient, got %v", err)
	}
}
