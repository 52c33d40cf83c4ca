package messagebus

import (
	"context"
	"errors"
	"fmt"
)

// ResponseLoop receives requests on the REP socket bound to port and
// invokes handle for each, sending back whatever it returns - or an
// error envelope if it returns an error or panics. It enforces the REP
// state machine invariant: exactly one reply frame is sent per request
// frame received, including error replies.
//
// handle is the overridable request-handling hook. A zero port defaults
// to PortStateManagement.
func (b *MessageBus) ResponseLoop(port int, handle func(req interface{}) (interface{}, error)) error {
	if port == 0 {
		port = PortStateManagement
	}

	b.loopWG.Add(1)
	defer b.loopWG.Done()

	for {
		if b.ctx.Err() != nil {
			return nil
		}

		entry, err := b.registry.get(b.ctx, PatternRep, port, nil)
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

		if !b.responseRecv(entry, handle) {
			return nil
		}
	}
}

// responseRecv runs the recv-invoke-reply cycle on entry until
// cancellation or a transport error fails the entry. It returns false
// when the bus is shutting down, true when the entry should be
// reconstructed and the cycle retried.
func (b *MessageBus) responseRecv(entry *socketEntry, handle func(req interface{}) (interface{}, error)) bool {
	for {
		if b.ctx.Err() != nil {
			return false
		}

		recvCtx, cancel := context.WithTimeout(b.ctx, b.cfg.RepRecvTimeout)
		frames, err := entry.sock.Recv(recvCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			b.metrics.incErrors()
			b.registry.fail(entry)
			return true
		}

		if len(frames) != 1 {
			b.metrics.incInboundDropped()
			// The state machine still requires exactly one reply: a
			// malformed request gets an error envelope, not silence.
			b.sendReply(entry, nil, "frame_error", fmt.Errorf("expected exactly one frame, got %d", len(frames)))
			continue
		}

		var req requestEnvelope
		if err := b.serializer.Decode(frames[0], &req); err != nil {
			b.metrics.incInboundDropped()
			b.sendReply(entry, nil, "decode_error", err)
			continue
		}

		// request/reply is deliberately not counted in
		// messages_sent/messages_received; those counters track
		// publish/subscribe and push/pull traffic only.
		reply, herr := b.invokeRequestHandler(handle, req.Data)
		b.sendReply(entry, reply, "handler_error", herr)
	}
}

func (b *MessageBus) invokeRequestHandler(handle func(req interface{}) (interface{}, error), data interface{}) (reply interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.incErrors()
			b.logf("response: handler panic: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handle(data)
}

// sendReply encodes reply (or a "<kind>: <message>" errorReply if herr
// is non-nil) and sends it under rep_send_timeout, satisfying the
// one-reply-per-request invariant regardless of handler outcome.
func (b *MessageBus) sendReply(entry *socketEntry, reply interface{}, kind string, herr error) {
	var encoded []byte
	var err error

	if herr != nil {
		b.metrics.incErrors()
		encoded, err = b.serializer.Encode(errorReply{Error: fmt.Sprintf("%s: %s", kind, herr.Error())})
	} else {
		encoded, err = b.serializer.Encode(reply)
	}

	if err != nil {
		b.metrics.incErrors()
		// Still must send exactly one frame: fall back to a minimal,
		// always-encodable error envelope.
		encoded, _ = b.serializer.Encode(errorReply{Error: "encode_error: reply could not be encoded"})
	}

	sendCtx, cancel := context.WithTimeout(b.ctx, b.cfg.RepSendTimeout)
	defer cancel()

	if err := entry.sock.Send(sendCtx, [][]byte{encoded}); err != nil {
		b.metrics.incErrors()
		b.registry.fail(entry)
	}
}
