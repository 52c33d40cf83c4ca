package messagebus

import "testing"

func newTestBus(t *testing.T, transport Transport, configure func(*Config)) *MessageBus {
	t.Helper()
	cfg := DefaultConfig()
	if configure != nil {
		configure(&cfg)
	}
	bus, err := New(cfg, WithTransport(transport))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = bus.Cleanup(true) })
	return bus
}

// TestPublishAccounting verifies that
// messages_sent + outbound_dropped + encode_errors == n.
func TestPublishAccounting(t *testing.T) {
	bus := newTestBus(t, newFakeTransport(), nil)

	bus.Publish("t", map[string]interface{}{"n": 1}, 6300)
	bus.Publish("t", map[string]interface{}{"n": 2}, 6300)

	snap := bus.GetMetrics()
	if snap.MessagesSent != 2 {
		t.Errorf("expected messages_sent == 2, got %d", snap.MessagesSent)
	}
	if snap.OutboundDropped != 0 {
		t.Errorf("expected outbound_dropped == 0, got %d", snap.OutboundDropped)
	}
}

func TestPublishDefaultsToGlobalEventsPort(t *testing.T) {
	ft := newFakeTransport()
	bus := newTestBus(t, ft, nil)

	bus.Publish("t", 1, 0)

	link := ft.link(PortGlobalEvents)
	select {
	case <-link.toConnect:
	default:
		t.Error("expected Publish(port=0) to send on PortGlobalEvents")
	}
}

func TestPublishEncodeErrorCountsAsErrorAndDrop(t *testing.T) {
	bus := newTestBus(t, newFakeTransport(), nil)

	// A Go channel is never JSON-serializable: forces an encode error.
	bus.Publish("t", make(chan int), 6301)

	snap := bus.GetMetrics()
	if snap.Errors == 0 {
		t.Error("expected errors to be incremented on an encode failure")
	}
	if snap.OutboundDropped != 1 {
		t.Errorf("expected outbound_dropped == 1, got %d", snap.OutboundDropped)
	}
	if snap.MessagesSent != 0 {
		t.Errorf("expected messages_sent == 0, got %d", snap.MessagesSent)
	}
}
