package messagebus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSubscribeLoopFanOut verifies that messages published on a
// subscribed topic reach its registered handler in send order, and are
// counted once as sent and once as received.
func TestSubscribeLoopFanOut(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, func(c *Config) { c.HandlerMaxConcurrency = 1 })

	var mu sync.Mutex
	var got []int

	bus.RegisterHandler("t", CooperativeHandler(func(topic string, payload interface{}) {
		m := payload.(map[string]interface{})
		n := m["n"].(float64)
		mu.Lock()
		got = append(got, int(n))
		mu.Unlock()
	}))

	go bus.SubscribeLoop(6320, []string{"t"})
	time.Sleep(20 * time.Millisecond)

	bus.Publish("t", map[string]interface{}{"n": float64(1)}, 6320)
	bus.Publish("t", map[string]interface{}{"n": float64(2)}, 6320)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected fan-out in send order [1 2], got %v", got)
	}

	snap := bus.GetMetrics()
	if snap.MessagesSent != 2 || snap.MessagesReceived != 2 {
		t.Errorf("expected sent=2 received=2, got sent=%d received=%d", snap.MessagesSent, snap.MessagesReceived)
	}
}

// TestSubscribeLoopConcurrencyCap verifies that HandlerMaxConcurrency
// bounds the number of handler invocations running at once.
func TestSubscribeLoopConcurrencyCap(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, func(c *Config) { c.HandlerMaxConcurrency = 2 })

	var running atomic.Int32
	var maxRunning atomic.Int32
	var completed atomic.Int32

	bus.RegisterHandler("t", CooperativeHandler(func(topic string, payload interface{}) {
		n := running.Add(1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		completed.Add(1)
	}))

	go bus.SubscribeLoop(6321, []string{"t"})
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 10; i++ {
		bus.Publish("t", map[string]interface{}{"n": i}, 6321)
	}

	deadline := time.Now().Add(2 * time.Second)
	for completed.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if completed.Load() != 10 {
		t.Fatalf("expected all 10 handler invocations to complete, got %d", completed.Load())
	}
	if maxRunning.Load() > 2 {
		t.Errorf("expected at most 2 concurrent handler invocations, observed %d", maxRunning.Load())
	}
}

// TestSubscribeLoopHandlerPanicIsolated verifies that a panicking
// handler is recovered and counted as an error without taking down the
// loop or other handlers.
func TestSubscribeLoopHandlerPanicIsolated(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, nil)

	bus.RegisterHandler("boom", CooperativeHandler(func(string, interface{}) {
		panic("handler exploded")
	}))

	go bus.SubscribeLoop(6322, []string{"boom", "ok"})
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		bus.Publish("boom", i, 6322)
	}
	time.Sleep(80 * time.Millisecond)

	var okFired atomic.Bool
	bus.RegisterHandler("ok", CooperativeHandler(func(string, interface{}) {
		okFired.Store(true)
	}))
	bus.Publish("ok", 1, 6322)
	time.Sleep(80 * time.Millisecond)

	snap := bus.GetMetrics()
	if snap.MessagesReceived != 4 {
		t.Errorf("expected messages_received == 4 (3 panics + 1 ok), got %d", snap.MessagesReceived)
	}
	if snap.Errors < 3 {
		t.Errorf("expected errors >= 3, got %d", snap.Errors)
	}
	if !okFired.Load() {
		t.Error("expected the subscribe loop to still be running and dispatch a later handler")
	}
}
