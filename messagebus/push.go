package messagebus

import (
	"context"
	"errors"
	"time"
)

// PushResult encodes data as a {data, ts} envelope and sends it on the
// PUSH socket connected to port: an identical contract to Publish, on
// a different socket pattern. A zero port defaults to PortTaskResults.
func (b *MessageBus) PushResult(data interface{}, port int) {
	if port == 0 {
		port = PortTaskResults
	}

	entry, err := b.registry.get(b.ctx, PatternPush, port, nil)
	if err != nil {
		b.metrics.incOutboundDropped()
		return
	}

	body := pushpullEnvelope{ID: newMessageID(), Data: data, TS: time.Now()}
	encoded, err := b.serializer.Encode(body)
	if err != nil {
		b.debugf("push: encode error on port %d: %v", port, err)
		b.metrics.incErrors()
		b.metrics.incOutboundDropped()
		return
	}

	sendCtx, cancel := context.WithTimeout(b.ctx, b.cfg.PushSendTimeout)
	defer cancel()

	if err := entry.sock.Send(sendCtx, [][]byte{encoded}); err != nil {
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
