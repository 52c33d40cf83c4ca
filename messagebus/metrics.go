package messagebus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/metric"
)

// otelCtx is used for the fire-and-forget OTel counter mirrors below;
// none of them do I/O or respect cancellation, so a background context
// is the correct, idiomatic choice rather than threading a live ctx
// through every counter increment call site.
var otelCtx = context.Background()

// Snapshot is the bus's metrics mapping, exposed as a named struct so a
// debug log line can call Snapshot.String() instead of formatting a
// bare map.
type Snapshot struct {
	MessagesSent       int64
	MessagesReceived   int64
	Errors             int64
	OutboundDropped    int64
	InboundDropped     int64
	BackpressureEvents int64
	RequestTimeouts    int64
	FailedBindCount    int64
	ActiveConnections  int64
}

// Map returns the snapshot as a plain mapping, for callers that want
// the raw counter-name-to-value shape.
func (s Snapshot) Map() map[string]int64 {
	return map[string]int64{
		"messages_sent":       s.MessagesSent,
		"messages_received":   s.MessagesReceived,
		"errors":              s.Errors,
		"outbound_dropped":    s.OutboundDropped,
		"inbound_dropped":     s.InboundDropped,
		"backpressure_events": s.BackpressureEvents,
		"request_timeouts":    s.RequestTimeouts,
		"failed_bind_count":   s.FailedBindCount,
		"active_connections":  s.ActiveConnections,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"sent=%s received=%s errors=%s outbound_dropped=%s inbound_dropped=%s backpressure=%s "+
			"request_timeouts=%s failed_binds=%s active=%s",
		humanize.Comma(s.MessagesSent), humanize.Comma(s.MessagesReceived), humanize.Comma(s.Errors),
		humanize.Comma(s.OutboundDropped), humanize.Comma(s.InboundDropped), humanize.Comma(s.BackpressureEvents),
		humanize.Comma(s.RequestTimeouts), humanize.Comma(s.FailedBindCount), humanize.Comma(s.ActiveConnections),
	)
}

// metricsCounters holds the bus's monotonic counters. Every field is a
// plain atomic.Int64: each loop (subscribe, pull, response, publish,
// push, request) runs on its own goroutine, so increments need real
// atomicity rather than a single-threaded assumption.
type metricsCounters struct {
	messagesSent       atomic.Int64
	messagesReceived   atomic.Int64
	errors             atomic.Int64
	outboundDropped    atomic.Int64
	inboundDropped     atomic.Int64
	backpressureEvents atomic.Int64
	requestTimeouts    atomic.Int64
	failedBindCount    atomic.Int64

	otel *otelMirror
}

// otelMirror mirrors the plain counters into OpenTelemetry instruments.
// A nil *otelMirror (no meter configured) makes every method a no-op.
type otelMirror struct {
	messagesSent       metric.Int64Counter
	messagesReceived   metric.Int64Counter
	errors             metric.Int64Counter
	outboundDropped    metric.Int64Counter
	inboundDropped     metric.Int64Counter
	backpressureEvents metric.Int64Counter
	requestTimeouts    metric.Int64Counter
	failedBindCount    metric.Int64Counter
}

func newOtelMirror(meter metric.Meter) *otelMirror {
	if meter == nil {
		return nil
	}
	m := &otelMirror{}
	m.messagesSent, _ = meter.Int64Counter("messagebus.messages_sent")
	m.messagesReceived, _ = meter.Int64Counter("messagebus.messages_received")
	m.errors, _ = meter.Int64Counter("messagebus.errors")
	m.outboundDropped, _ = meter.Int64Counter("messagebus.outbound_dropped")
	m.inboundDropped, _ = meter.Int64Counter("messagebus.inbound_dropped")
	m.backpressureEvents, _ = meter.Int64Counter("messagebus.backpressure_events")
	m.requestTimeouts, _ = meter.Int64Counter("messagebus.request_timeouts")
	m.failedBindCount, _ = meter.Int64Counter("messagebus.failed_bind_count")
	return m
}

func (c *metricsCounters) incMessagesSent() {
	c.messagesSent.Add(1)
	if c.otel != nil {
		c.otel.messagesSent.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incMessagesReceived() {
	c.messagesReceived.Add(1)
	if c.otel != nil {
		c.otel.messagesReceived.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incErrors() {
	c.errors.Add(1)
	if c.otel != nil {
		c.otel.errors.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incOutboundDropped() {
	c.outboundDropped.Add(1)
	if c.otel != nil {
		c.otel.outboundDropped.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incInboundDropped() {
	c.inboundDropped.Add(1)
	if c.otel != nil {
		c.otel.inboundDropped.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incBackpressureEvents() {
	c.backpressureEvents.Add(1)
	if c.otel != nil {
		c.otel.backpressureEvents.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incRequestTimeouts() {
	c.requestTimeouts.Add(1)
	if c.otel != nil {
		c.otel.requestTimeouts.Add(otelCtx, 1)
	}
}

func (c *metricsCounters) incFailedBindCount() {
	c.failedBindCount.Add(1)
	if c.otel != nil {
		c.otel.failedBindCount.Add(otelCtx, 1)
	}
}

// snapshot builds a Snapshot, with activeConnections supplied by the
// registry (the counters struct has no view of socket health on its
// own).
func (c *metricsCounters) snapshot(activeConnections int64) Snapshot {
	return Snapshot{
		MessagesSent:       c.messagesSent.Load(),
		MessagesReceived:   c.messagesReceived.Load(),
		Errors:             c.errors.Load(),
		OutboundDropped:    c.outboundDropped.Load(),
		InboundDropped:     c.inboundDropped.Load(),
		BackpressureEvents: c.backpressureEvents.Load(),
		RequestTimeouts:    c.requestTimeouts.Load(),
		FailedBindCount:    c.failedBindCount.Load(),
		ActiveConnections:  activeConnections,
	}
}
