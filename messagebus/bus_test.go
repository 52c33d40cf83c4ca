package messagebus

import (
	"errors"
	"testing"
	"time"
)

// TestCleanupWaitsForLoopsAndClosesSockets verifies that Cleanup
// returns only after all loops have exited and all sockets have been
// closed.
func TestCleanupWaitsForLoopsAndClosesSockets(t *testing.T) {
	ft := newFakeTransport()
	bus, err := New(DefaultConfig(), WithTransport(ft))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	loopExited := make(chan struct{})
	go func() {
		_ = bus.SubscribeLoop(6350, []string{"t"})
		close(loopExited)
	}()
	time.Sleep(20 * time.Millisecond)

	if err := bus.Cleanup(true); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	select {
	case <-loopExited:
	default:
		t.Error("expected Cleanup to return only after SubscribeLoop had already exited")
	}

	if n := bus.registry.activeConnections(); n != 0 {
		t.Errorf("expected no HEALTHY entries after Cleanup, got %d", n)
	}
}

// TestBindConflictSurfacesOnSecondBus uses PullResultsLoop rather than
// SubscribeLoop: SUB is a connect-role pattern, so two subscribers can
// never contend over binding the same port; PULL is bind-role and
// reproduces the conflict instead (a second bind on an occupied port
// fails and bumps failed_bind_count, the first bus is
// unaffected).
func TestBindConflictSurfacesOnSecondBus(t *testing.T) {
	ft := newFakeTransport()

	busA, err := New(DefaultConfig(), WithTransport(ft))
	if err != nil {
		t.Fatalf("New (busA): %v", err)
	}
	t.Cleanup(func() { _ = busA.Cleanup(true) })

	loopAExited := make(chan error, 1)
	go func() {
		loopAExited <- busA.PullResultsLoop(6360, func(interface{}) {})
	}()
	time.Sleep(20 * time.Millisecond)

	busB, err := New(DefaultConfig(), WithTransport(ft))
	if err != nil {
		t.Fatalf("New (busB): %v", err)
	}
	t.Cleanup(func() { _ = busB.Cleanup(true) })

	err = busB.PullResultsLoop(6360, func(interface{}) {})
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected busB to receive a *BindError, got %v", err)
	}
	if busB.GetMetrics().FailedBindCount != 1 {
		t.Errorf("expected busB's failed_bind_count == 1, got %d", busB.GetMetrics().FailedBindCount)
	}

	select {
	case err := <-loopAExited:
		t.Fatalf("expected busA's PullResultsLoop to still be running, but it exited with %v", err)
	default:
	}
}

func TestGetMetricsSnapshotReflectsActivity(t *testing.T) {
	ft := newFakeTransport()
	bus, err := New(DefaultConfig(), WithTransport(ft))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = bus.Cleanup(true) })

	bus.Publish("t", 1, 6361)
	bus.PushResult(1, 6362)

	snap := bus.GetMetrics()
	m := snap.Map()
	if m["messages_sent"] != 2 {
		t.Errorf("expected messages_sent == 2 in snapshot map, got %d", m["messages_sent"])
	}
	if m["active_connections"] != snap.ActiveConnections {
		t.Error("expected Snapshot.Map() to agree with the struct fields")
	}
	if snap.String() == "" {
		t.Error("expected a non-empty Snapshot.String() rendering")
	}
}
