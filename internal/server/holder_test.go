package server

import (
	"testing"
)

func TestHolderFirstConstructionWins(t *testing.T) {
	holder := NewHolder(newTestLogger(), newTestMetrics())

	if holder.Current() != nil {
		t.Fatal("Expected empty holder")
	}

	first := holder.Get(testOptions([]byte("first")))
	second := holder.Get(testOptions([]byte("second")))
	if first != second {
		t.Fatal("Expected the same instance from repeated Get calls")
	}
	if holder.Current() != first {
		t.Error("Expected Current to return the held instance")
	}
}

func TestHolderReleasesStoppedServer(t *testing.T) {
	holder := NewHolder(newTestLogger(), newTestMetrics())

	srv := holder.Get(testOptions([]byte("x")))
	if err := srv.Start("127.0.0.1", 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	srv.Stop()

	if holder.Current() != nil {
		t.Fatal("Expected holder to be empty after Stop")
	}

	next := holder.Get(testOptions([]byte("x")))
	if next == srv {
		t.Fatal("Expected a fresh instance")
	}
	if next.IsRunning() {
		t.Error("Expected fresh instance to be stopped")
	}
}

func TestHolderIgnoresForeignRelease(t *testing.T) {
	holder := NewHolder(newTestLogger(), newTestMetrics())
	held := holder.Get(testOptions([]byte("x")))

	holder.release(New(testOptions([]byte("y")), newTestLogger(), newTestMetrics()))

	if holder.Current() != held {
		t.Error("Release of another instance must not drop the held server")
	}
}
