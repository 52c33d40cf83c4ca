package messagebus

import (
	"sync"
	"testing"
	"time"
)

func TestPullResultsLoopDeliversToHook(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, nil)

	var mu sync.Mutex
	var got []interface{}

	go bus.PullResultsLoop(6330, func(payload interface{}) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	time.Sleep(20 * time.Millisecond)

	bus.PushResult(map[string]interface{}{"n": float64(1)}, 6330)
	bus.PushResult(map[string]interface{}{"n": float64(2)}, 6330)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 delivered payloads, got %d", len(got))
	}

	snap := bus.GetMetrics()
	if snap.MessagesReceived != 2 {
		t.Errorf("expected messages_received == 2, got %d", snap.MessagesReceived)
	}
}

func TestPullResultsLoopHookPanicIsolated(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, nil)

	calls := 0
	var mu sync.Mutex

	go bus.PullResultsLoop(6331, func(payload interface{}) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("pull hook exploded")
	})
	time.Sleep(20 * time.Millisecond)

	bus.PushResult(1, 6331)
	bus.PushResult(2, 6331)
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected the pull loop to keep running past a hook panic, got %d calls", calls)
	}
}
