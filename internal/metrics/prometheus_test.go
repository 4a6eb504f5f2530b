package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsSeparateRegistries(t *testing.T) {
	// Two instances on separate registries must not collide
	m1 := NewMetrics(prometheus.NewRegistry())
	m2 := NewMetrics(prometheus.NewRegistry())

	m1.RecordSessionOpened()
	if got := testutil.ToFloat64(m2.SessionsOpened); got != 0 {
		t.Errorf("Expected isolated counters, got %v", got)
	}
}

func TestRecordFrameSent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFrameSent(100, 0.001)
	m.RecordFrameSent(50, 0.002)

	if got := testutil.ToFloat64(m.FramesSent); got != 2 {
		t.Errorf("Expected 2 frames sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.BytesSent); got != 150 {
		t.Errorf("Expected 150 bytes sent, got %v", got)
	}
}

func TestRecordWriteError(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordWriteError("timeout")
	m.RecordWriteError("timeout")
	m.RecordWriteError("reset")

	if got := testutil.ToFloat64(m.WriteErrors.WithLabelValues("timeout")); got != 2 {
		t.Errorf("Expected 2 timeout errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.WriteErrors.WithLabelValues("reset")); got != 1 {
		t.Errorf("Expected 1 reset error, got %v", got)
	}
}

func TestSessionGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetActiveSessions(3)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 3 {
		t.Errorf("Expected 3 active sessions, got %v", got)
	}
	m.SetActiveSessions(0)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
}
