package session

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/mjpeg-streamer/internal/source"
)

func newIdleSession(t *testing.T, registry *Registry) *Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return New(server, source.NewStatic(nil), registry, testConfig(), newTestLogger(), registry.metrics)
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	registry := NewRegistry(newTestMetrics())
	s := newIdleSession(t, registry)

	if !registry.Add(s) {
		t.Fatal("Expected first Add to succeed")
	}
	if registry.Add(s) {
		t.Error("Expected second Add to be skipped")
	}
	if s.Register() {
		t.Error("Expected Register of an already present session to be skipped")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Len())
	}
	if got := testutil.ToFloat64(registry.metrics.SessionsOpened); got != 1 {
		t.Errorf("Expected 1 opened session, got %v", got)
	}
}

func TestRegistryRemoveOnce(t *testing.T) {
	registry := NewRegistry(newTestMetrics())
	s := newIdleSession(t, registry)
	registry.Add(s)

	if !registry.Remove(s) {
		t.Fatal("Expected first Remove to succeed")
	}
	if registry.Remove(s) {
		t.Error("Expected second Remove to report false")
	}
	if got := testutil.ToFloat64(registry.metrics.SessionsClosed); got != 1 {
		t.Errorf("Expected 1 closed session, got %v", got)
	}
}

func TestRegistryGetAndSnapshot(t *testing.T) {
	registry := NewRegistry(newTestMetrics())
	a := newIdleSession(t, registry)
	b := newIdleSession(t, registry)
	registry.Add(a)
	registry.Add(b)

	if got, ok := registry.Get(a.ID); !ok || got != a {
		t.Errorf("Expected Get to return session a")
	}

	snapshot := registry.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 sessions in snapshot, got %d", len(snapshot))
	}

	// Mutating the registry does not affect an existing snapshot
	registry.Remove(a)
	if len(snapshot) != 2 || registry.Len() != 1 {
		t.Errorf("Snapshot should be detached from registry")
	}
}

func TestRegistryClear(t *testing.T) {
	registry := NewRegistry(newTestMetrics())
	for i := 0; i < 3; i++ {
		registry.Add(newIdleSession(t, registry))
	}

	removed := registry.Clear()
	if len(removed) != 3 {
		t.Errorf("Expected 3 removed sessions, got %d", len(removed))
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", registry.Len())
	}

	// Sessions removed by Clear cannot be removed again
	for _, s := range removed {
		if registry.Remove(s) {
			t.Errorf("Expected Remove after Clear to report false")
		}
	}
	if got := testutil.ToFloat64(registry.metrics.SessionsClosed); got != 3 {
		t.Errorf("Expected 3 closed sessions, got %v", got)
	}
}
