package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/skypro1111/mjpeg-streamer/internal/metrics"
	"github.com/skypro1111/mjpeg-streamer/internal/mjpeg"
	"github.com/skypro1111/mjpeg-streamer/internal/source"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func testOptions(payload []byte) Options {
	return Options{
		Source:      source.NewStatic(payload),
		Interval:    5 * time.Millisecond,
		SendTimeout: 2 * time.Second,
	}
}

func startTestServer(t *testing.T, opts Options, m *metrics.Metrics) *Server {
	t.Helper()
	srv := New(opts, newTestLogger(), m)
	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	addr := srv.Addr()
	if addr == nil {
		t.Fatal("Server has no listener address")
	}
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// eventually polls cond until it holds or the timeout expires
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestServerStartStop(t *testing.T) {
	srv := New(testOptions([]byte("x")), newTestLogger(), newTestMetrics())

	if srv.IsRunning() {
		t.Fatal("Expected new server to be stopped")
	}
	// Stop before Start is a no-op
	srv.Stop()

	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !srv.IsRunning() {
		t.Fatal("Expected server to be running after Start")
	}

	srv.Stop()
	if srv.IsRunning() {
		t.Error("Expected server to be stopped after Stop")
	}
	if srv.Addr() != nil {
		t.Error("Expected no address after Stop")
	}

	// A stopped instance is terminal
	if err := srv.Start("127.0.0.1", 0); !errors.Is(err, ErrServerStopped) {
		t.Errorf("Expected ErrServerStopped, got %v", err)
	}

	// Repeated Stop is a no-op
	srv.Stop()
}

func TestServerDoubleStartKeepsOriginalConfig(t *testing.T) {
	m := newTestMetrics()
	srv := startTestServer(t, testOptions([]byte("x")), m)
	first := srv.Addr().String()

	if err := srv.Start("127.0.0.1", 1); err != nil {
		t.Fatalf("Second Start returned error: %v", err)
	}
	if srv.Addr().String() != first {
		t.Errorf("Expected address %s to stay in effect, got %s", first, srv.Addr())
	}
	if got := testutil.ToFloat64(m.ServerStarts); got != 1 {
		t.Errorf("Expected exactly one acceptor start, got %v", got)
	}

	cfg, ok := srv.Config()
	if !ok || cfg.Port != 0 || cfg.BindAddress != "127.0.0.1" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestServerStartErrors(t *testing.T) {
	srv := New(Options{Interval: time.Millisecond}, newTestLogger(), newTestMetrics())
	if err := srv.Start("127.0.0.1", 0); err == nil {
		t.Error("Expected error when starting without a source")
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	srv = New(testOptions([]byte("x")), newTestLogger(), newTestMetrics())
	if err := srv.Start("127.0.0.1", port); err == nil {
		srv.Stop()
		t.Error("Expected error when port is in use")
	}
	if srv.IsRunning() {
		t.Error("Expected server not running after failed bind")
	}
}

func TestServerWireFormat(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	srv := startTestServer(t, testOptions(payload), newTestMetrics())
	conn := dial(t, srv)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	header := mjpeg.StreamHeader()
	frameHeader := mjpeg.FrameHeader(100)

	wire := make([]byte, len(header)+len(frameHeader)+100+2)
	if _, err := io.ReadFull(conn, wire); err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}

	if !bytes.Equal(wire[:len(header)], header) {
		t.Fatalf("Expected stream header first, got %q", wire[:len(header)])
	}
	wire = wire[len(header):]

	if !bytes.Equal(wire[:len(frameHeader)], frameHeader) {
		t.Fatalf("Expected frame header, got %q", wire[:len(frameHeader)])
	}
	wire = wire[len(frameHeader):]

	if !bytes.Equal(wire[:100], payload) {
		t.Error("Payload mismatch")
	}
	if string(wire[100:]) != "\r\n" {
		t.Errorf("Expected trailing delimiter, got %q", wire[100:])
	}
}

func TestServerRegistryTracksClients(t *testing.T) {
	const viewers = 5

	srv := startTestServer(t, testOptions([]byte("frame")), newTestMetrics())

	conns := make([]net.Conn, 0, viewers)
	for i := 0; i < viewers; i++ {
		conn := dial(t, srv)
		r := mjpeg.NewReader(conn)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := r.ReadStreamHeader(); err != nil {
			t.Fatalf("Client %d: ReadStreamHeader failed: %v", i, err)
		}
		conns = append(conns, conn)
	}

	if got := srv.SessionCount(); got != viewers {
		t.Fatalf("Expected %d sessions, got %d", viewers, got)
	}
	if got := len(srv.Sessions()); got != viewers {
		t.Errorf("Expected %d session infos, got %d", viewers, got)
	}

	// Disconnect two viewers concurrently
	go conns[0].Close()
	go conns[1].Close()

	eventually(t, "registry to shrink to 3", func() bool {
		return srv.SessionCount() == viewers-2
	})
}

func TestServerAbruptCloseLeavesOthersStreaming(t *testing.T) {
	m := newTestMetrics()
	srv := startTestServer(t, testOptions(bytes.Repeat([]byte{1}, 4096)), m)

	abrupt := dial(t, srv)
	steady := dial(t, srv)

	eventually(t, "two sessions", func() bool { return srv.SessionCount() == 2 })

	// Reset instead of FIN
	if tcp, ok := abrupt.(*net.TCPConn); ok {
		tcp.SetLinger(0)
	}
	abrupt.Close()

	eventually(t, "abrupt session to deregister", func() bool { return srv.SessionCount() == 1 })

	r := mjpeg.NewReader(steady)
	steady.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := r.ReadStreamHeader(); err != nil {
		t.Fatalf("ReadStreamHeader failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.ReadFrame(); err != nil {
			t.Fatalf("Remaining viewer stopped receiving frames: %v", err)
		}
	}

	if !srv.IsRunning() {
		t.Error("Acceptor must survive a viewer failure")
	}
	if got := testutil.ToFloat64(m.SessionsClosed); got != 1 {
		t.Errorf("Expected exactly one deregistration, got %v", got)
	}

	// New viewers are still accepted
	dial(t, srv)
	eventually(t, "new viewer", func() bool { return srv.SessionCount() == 2 })
}

func TestServerStopClosesAllSessions(t *testing.T) {
	m := newTestMetrics()
	holder := NewHolder(newTestLogger(), m)

	srv := holder.Get(testOptions([]byte("x")))
	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conns := make([]net.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, srv))
	}
	eventually(t, "three sessions", func() bool { return srv.SessionCount() == 3 })

	srv.Stop()

	if got := srv.SessionCount(); got != 0 {
		t.Errorf("Expected empty registry after Stop, got %d", got)
	}
	if holder.Current() != nil {
		t.Error("Expected holder to release the stopped server")
	}

	// Every viewer observes its connection closing
	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := io.Copy(io.Discard, conn); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Errorf("Viewer %d connection was not closed", i)
			}
		}
	}

	// A later start builds a fresh, empty server
	next := holder.Get(testOptions([]byte("y")))
	if next == srv {
		t.Fatal("Expected a new server instance after Stop")
	}
	if err := next.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer next.Stop()

	if got := next.SessionCount(); got != 0 {
		t.Errorf("Expected empty registry on new server, got %d", got)
	}
}

func TestServerKickSession(t *testing.T) {
	srv := startTestServer(t, testOptions([]byte("x")), newTestMetrics())
	conn := dial(t, srv)

	eventually(t, "one session", func() bool { return srv.SessionCount() == 1 })
	id := srv.Sessions()[0].ID

	info, err := srv.Session(id)
	if err != nil {
		t.Fatalf("Session lookup failed: %v", err)
	}
	if info.ID != id {
		t.Errorf("Expected session %s, got %s", id, info.ID)
	}

	if err := srv.Kick(id); err != nil {
		t.Fatalf("Kick failed: %v", err)
	}
	eventually(t, "kicked session to deregister", func() bool { return srv.SessionCount() == 0 })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	io.Copy(io.Discard, conn)

	if err := srv.Kick(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if _, err := srv.Session("not-a-uuid"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for bad id, got %v", err)
	}
}

func TestServerStatus(t *testing.T) {
	opts := testOptions([]byte("x"))
	opts.Interval = 100 * time.Millisecond

	srv := New(opts, newTestLogger(), newTestMetrics())
	if status := srv.Status(); status.Running || status.Address != "" {
		t.Errorf("Unexpected status for stopped server: %+v", status)
	}

	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	status := srv.Status()
	if !status.Running || status.Address == "" || status.StartedAt == nil {
		t.Errorf("Unexpected status for running server: %+v", status)
	}
	if status.FPS != 10 {
		t.Errorf("Expected 10 fps, got %v", status.FPS)
	}
}

func TestStartStopSequencesKeepOneAcceptor(t *testing.T) {
	m := newTestMetrics()
	holder := NewHolder(newTestLogger(), m)

	for i := 0; i < 5; i++ {
		srv := holder.Get(testOptions([]byte("x")))
		if err := srv.Start("127.0.0.1", 0); err != nil {
			t.Fatalf("Iteration %d: Start failed: %v", i, err)
		}
		srv.Start("127.0.0.1", 0)

		if holder.Get(testOptions([]byte("other"))) != srv {
			t.Fatalf("Iteration %d: expected the live instance", i)
		}
		if !srv.IsRunning() {
			t.Fatalf("Iteration %d: expected running", i)
		}

		srv.Stop()
		if srv.IsRunning() {
			t.Fatalf("Iteration %d: expected stopped", i)
		}
	}

	if got := testutil.ToFloat64(m.ServerStarts); got != 5 {
		t.Errorf("Expected 5 acceptor starts, got %v", got)
	}
	if got := testutil.ToFloat64(m.ServerStops); got != 5 {
		t.Errorf("Expected 5 stops, got %v", got)
	}
}
