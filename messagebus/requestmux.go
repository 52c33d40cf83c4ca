package messagebus

import (
	"context"
	"errors"
	"time"
)

// requestMux wraps REQ sockets with a per-port mutex, enforcing the
// strict send-then-recv alternation the REQ pattern's state machine
// requires.
type requestMux struct {
	registry   *socketRegistry
	serializer Serializer
	metrics    *metricsCounters
}

func newRequestMux(registry *socketRegistry, serializer Serializer, metrics *metricsCounters) *requestMux {
	return &requestMux{registry: registry, serializer: serializer, metrics: metrics}
}

// request performs one request/reply exchange on port, returning the
// decoded reply or nil on any failure. On any step's failure the REQ
// socket is considered poisoned and failed-marked, since the REQ state
// machine cannot be resynchronized after a partial send or recv.
func (m *requestMux) request(ctx context.Context, payload interface{}, port int) (interface{}, error) {
	entry, err := m.registry.get(ctx, PatternReq, port, nil)
	if err != nil {
		// Cooldown or connect-side construction failure: drop silently.
		m.metrics.incOutboundDropped()
		return nil, nil
	}

	entry.reqMu.Lock()
	defer entry.reqMu.Unlock()

	half := ctxRemaining(ctx) / 2
	sendCtx, cancelSend := context.WithTimeout(ctx, half)
	defer cancelSend()

	body := requestEnvelope{ID: newMessageID(), Data: payload, TS: time.Now()}
	encoded, err := m.serializer.Encode(body)
	if err != nil {
		m.metrics.incErrors()
		m.metrics.incOutboundDropped()
		return nil, nil
	}

	if err := entry.sock.Send(sendCtx, [][]byte{encoded}); err != nil {
		m.onFailure(entry, err)
		return nil, nil
	}

	recvCtx, cancelRecv := context.WithTimeout(ctx, half)
	defer cancelRecv()

	frames, err := entry.sock.Recv(recvCtx)
	if err != nil {
		m.onFailure(entry, err)
		return nil, nil
	}
	if len(frames) != 1 {
		m.registry.fail(entry)
		m.metrics.incErrors()
		return nil, nil
	}

	var reply interface{}
	if err := m.serializer.Decode(frames[0], &reply); err != nil {
		m.registry.fail(entry)
		m.metrics.incErrors()
		return nil, nil
	}

	return reply, nil
}

func (m *requestMux) onFailure(entry *socketEntry, err error) {
	m.registry.fail(entry)
	if errors.Is(err, context.DeadlineExceeded) {
		m.metrics.incRequestTimeouts()
	} else {
		m.metrics.incErrors()
	}
}

// ctxRemaining returns the time remaining until ctx's deadline, or a
// generous fallback if ctx carries none (callers always set one via
// context.WithTimeout in bus.Request, so the fallback is defensive
// only).
func ctxRemaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 30 * time.Second
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	return remaining
}
