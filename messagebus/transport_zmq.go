package messagebus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// zmqTransport is the default Transport, backed by the pure-Go ZeroMQ
// socket library go-zeromq/zmq4.
type zmqTransport struct {
	ctx context.Context
}

// NewZMQTransport builds a Transport whose sockets are real ZeroMQ
// PUB/SUB/PUSH/PULL/REQ/REP sockets. The returned Transport is owned
// exclusively by whichever MessageBus constructs it.
func NewZMQTransport(ctx context.Context) Transport {
	return &zmqTransport{ctx: ctx}
}

func (t *zmqTransport) newSocket(pattern Pattern) (zmq4.Socket, error) {
	switch pattern {
	case PatternPub:
		return zmq4.NewPub(t.ctx), nil
	case PatternSub:
		return zmq4.NewSub(t.ctx), nil
	case PatternPush:
		return zmq4.NewPush(t.ctx), nil
	case PatternPull:
		return zmq4.NewPull(t.ctx), nil
	case PatternReq:
		return zmq4.NewReq(t.ctx), nil
	case PatternRep:
		return zmq4.NewRep(t.ctx), nil
	default:
		return nil, fmt.Errorf("messagebus: unknown pattern %q", pattern)
	}
}

func (t *zmqTransport) Bind(_ context.Context, pattern Pattern, port int, hwm int) (Socket, error) {
	sock, err := t.newSocket(pattern)
	if err != nil {
		return nil, err
	}
	setHWM(sock, hwm)

	endpoint := fmt.Sprintf("tcp://*:%d", port)
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (t *zmqTransport) Connect(_ context.Context, pattern Pattern, port int, hwm int) (Socket, error) {
	sock, err := t.newSocket(pattern)
	if err != nil {
		return nil, err
	}
	setHWM(sock, hwm)

	endpoint := fmt.Sprintf("tcp://127.0.0.1:%d", port)
	if err := sock.Dial(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (t *zmqTransport) Close() error {
	// zmq4 sockets are closed individually via zmqSocket.Close; the
	// library has no separate process-wide context object to tear down
	// beyond the context passed at construction, which the caller owns.
	return nil
}

// setHWM applies the configured high-water mark. zmq4's pure-Go
// implementation buffers on Go channels sized at construction rather
// than exposing a mutable ZMQ_SNDHWM/ZMQ_RCVHWM socket option, so this
// is best-effort: unsupported options are ignored rather than failing
// the whole socket construction over a tuning knob.
func setHWM(sock zmq4.Socket, hwm int) {
	if hwm <= 0 {
		return
	}
	_ = sock.SetOption(zmq4.OptionHWM, hwm)
}

// zmqSocket adapts a zmq4.Socket to the narrower Socket interface
// MessageBus depends on.
type zmqSocket struct {
	sock zmq4.Socket
}

func (s *zmqSocket) Send(ctx context.Context, frames [][]byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.sock.Send(zmq4.NewMsgFrom(frames...))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *zmqSocket) Recv(ctx context.Context) ([][]byte, error) {
	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.sock.Recv()
		done <- result{msg: msg, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.msg.Frames, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *zmqSocket) Subscribe(topic string) error {
	return s.sock.SetOption(zmq4.OptionSubscribe, topic)
}

func (s *zmqSocket) Close(lingerMs int) error {
	// go-zeromq/zmq4 doesn't expose a ZMQ_LINGER socket option, so
	// close_linger_ms is honored here instead: block for the configured
	// grace period before tearing down, giving any Send that already
	// returned to its caller a chance to actually reach the wire.
	if lingerMs > 0 {
		time.Sleep(time.Duration(lingerMs) * time.Millisecond)
	}
	return s.sock.Close()
}
