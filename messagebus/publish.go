package messagebus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Publish encodes data as a {topic, data, ts} envelope and sends it on
// the PUB socket bound to port. A zero port defaults to
// PortGlobalEvents.
//
// Publish never returns a transport or timeout error: failures are
// recorded in metrics and absorbed, the same propagation policy
// PushResult and Request follow.
func (b *MessageBus) Publish(topic string, data interface{}, port int) {
	if port == 0 {
		port = PortGlobalEvents
	}
	b.publishOn(PatternPub, topic, data, port, b.cfg.PubSendTimeout)
}

// publishSeq is a purely observational per-process counter stamped into
// pubsubEnvelope.Seq; nothing in the bus reads it back.
var publishSeq atomic.Int64

func (b *MessageBus) publishOn(pattern Pattern, topic string, data interface{}, port int, timeout time.Duration) {
	entry, err := b.registry.get(b.ctx, pattern, port, nil)
	if err != nil {
		b.metrics.incOutboundDropped()
		return
	}

	body := pubsubEnvelope{ID: newMessageID(), Topic: topic, Data: data, TS: time.Now(), Seq: publishSeq.Add(1)}
	encoded, err := b.serializer.Encode(body)
	if err != nil {
		b.debugf("publish: encode error on port %d: %v", port, err)
		b.metrics.incErrors()
		b.metrics.incOutboundDropped()
		return
	}

	sendCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	if err := entry.sock.Send(sendCtx, [][]byte{[]byte(topic), encoded}); err != nil {
		b.metrics.incOutboundDropped()
		if errors.Is(err, context.DeadlineExceeded) {
			b.metrics.incBackpressureEvents()
		} else {
			b.metrics.incErrors()
		}
		b.registry.fail(entry)
		return
	}

	b.metrics.incMessagesSent()
}
