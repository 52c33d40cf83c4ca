package messagebus

import (
	"context"
	"errors"
)

// PullResultsLoop receives single-frame payloads on the PULL socket
// bound to port and invokes handle for each. It is symmetric to
// SubscribeLoop but applies no concurrency cap - pull is already a
// natural backpressure point at the transport layer - and calls handle
// directly rather than routing through the handler table.
//
// handle is the overridable message-handling hook; a panic inside it
// is isolated the same way a subscriber handler's is. A zero port
// defaults to PortTaskResults.
func (b *MessageBus) PullResultsLoop(port int, handle func(payload interface{})) error {
	if port == 0 {
		port = PortTaskResults
	}

	b.loopWG.Add(1)
	defer b.loopWG.Done()

	for {
		if b.ctx.Err() != nil {
			return nil
		}

		entry, err := b.registry.get(b.ctx, PatternPull, port, nil)
		if err != nil {
			var bindErr *BindError
			if errors.As(err, &bindErr) {
				return err
			}
			if !b.sleepOrDone(b.cfg.FailedSocketCooldown) {
				return nil
			}
			continue
		}

		b.pullRecv(entry, handle)

		if b.ctx.Err() != nil {
			return nil
		}
	}
}

func (b *MessageBus) pullRecv(entry *socketEntry, handle func(payload interface{})) {
	for {
		if b.ctx.Err() != nil {
			return
		}

		recvCtx, cancel := context.WithTimeout(b.ctx, subscribePollInterval)
		frames, err := entry.sock.Recv(recvCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			b.metrics.incErrors()
			b.registry.fail(entry)
			return
		}

		if len(frames) != 1 {
			b.metrics.incInboundDropped()
			continue
		}

		var body pushpullEnvelope
		if err := b.serializer.Decode(frames[0], &body); err != nil {
			b.metrics.incInboundDropped()
			continue
		}

		b.metrics.incMessagesReceived()
		b.invokePullHandler(handle, body.Data)
	}
}

func (b *MessageBus) invokePullHandler(handle func(payload interface{}), payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.incErrors()
			b.logf("pull: handler panic: %v", r)
		}
	}()
	handle(payload)
}
