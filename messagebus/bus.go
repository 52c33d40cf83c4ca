package messagebus

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

// dispatchGrace bounds how long Cleanup(cancelRunning=true) waits for
// in-flight handler tasks before abandoning them. Go has no way to
// forcibly preempt a running goroutine, so "cancel" here means "stop
// waiting on it", the same trade-off processor.Stop()'s shutdown timeout
// makes for its own handler goroutines.
const dispatchGrace = 5 * time.Second

// MessageBus multiplexes publish/subscribe, push/pull, and
// request/response over a single transport context. One instance owns
// its transport, registry, handler table, metrics, and in-flight
// dispatch tasks exclusively; instances are freely constructible and
// never share state.
type MessageBus struct {
	cfg        Config
	transport  Transport
	serializer Serializer
	metrics    *metricsCounters
	registry   *socketRegistry
	handlers   *handlerTable
	reqMux     *requestMux
	logger     *log.Logger

	sem          *semaphore.Weighted // nil when HandlerMaxConcurrency == 0 (unlimited)
	blockingJobs chan func()         // worker-pool queue for Blocking handler dispatch

	ctx    context.Context
	cancel context.CancelFunc

	dispatchWG sync.WaitGroup // in-flight subscriber handler tasks
	loopWG     sync.WaitGroup // running SubscribeLoop/PullLoop/ResponseLoop goroutines
}

// Option configures optional collaborators a MessageBus doesn't
// construct on its own (transport, OTel meter). Config itself carries
// every tunable; Option is for wiring, not tuning.
type Option func(*busOptions)

type busOptions struct {
	transport Transport
	meter     metric.Meter
}

// WithTransport overrides the default ZeroMQ transport, primarily for
// tests (a fake Transport) or to share a transport's underlying context
// across sockets within one process.
func WithTransport(t Transport) Option {
	return func(o *busOptions) { o.transport = t }
}

// WithMeter wires an OpenTelemetry Meter for the metrics mirror.
// Without it, metrics are still fully available via GetMetrics(); only
// the OTel mirror is skipped.
func WithMeter(meter metric.Meter) Option {
	return func(o *busOptions) { o.meter = meter }
}

// New constructs a MessageBus. cfg should normally come from
// DefaultConfig() or LoadConfig(), possibly with fields overridden.
func New(cfg Config, opts ...Option) (*MessageBus, error) {
	cfg.applyDefaults()

	options := busOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport := options.transport
	if transport == nil {
		transport = NewZMQTransport(ctx)
	}

	serializer, err := newSerializer(cfg.Serializer)
	if err != nil {
		cancel()
		return nil, err
	}

	metrics := &metricsCounters{otel: newOtelMirror(options.meter)}
	registry := newSocketRegistry(transport, cfg, metrics)

	var sem *semaphore.Weighted
	if cfg.HandlerMaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(cfg.HandlerMaxConcurrency))
	}

	bus := &MessageBus{
		cfg:        cfg,
		transport:  transport,
		serializer: serializer,
		metrics:    metrics,
		registry:   registry,
		handlers:   newHandlerTable(),
		reqMux:     newRequestMux(registry, serializer, metrics),
		logger:     cfg.Logger,
		sem:        sem,
		ctx:        ctx,
		cancel:     cancel,
	}
	bus.startWorkerPool()
	return bus, nil
}

// RegisterHandler binds fn for topic, replacing any prior binding for
// the same topic.
func (b *MessageBus) RegisterHandler(topic string, h Handler) {
	b.handlers.register(topic, h)
}

// Request performs one request/reply exchange on the REQ socket
// connected to port, returning the decoded reply or nil if the request
// failed or timed out. A zero port defaults to PortStateManagement.
func (b *MessageBus) Request(data interface{}, port int) (interface{}, error) {
	if port == 0 {
		port = PortStateManagement
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.ReqTotalTimeout)
	defer cancel()
	return b.reqMux.request(ctx, data, port)
}

// GetMetrics returns the current counter snapshot.
func (b *MessageBus) GetMetrics() Snapshot {
	return b.metrics.snapshot(b.registry.activeConnections())
}

// Cleanup signals cancellation to every running loop, then waits for
// in-flight dispatched handler tasks, closes every socket with
// close_linger_ms, and tears down the transport context.
//
// cancelRunning=true (the documented default) abandons handler tasks
// still running after dispatchGrace; false waits for them to finish
// naturally with no timeout.
func (b *MessageBus) Cleanup(cancelRunning bool) error {
	b.cancel() // stop all loops
	b.loopWG.Wait()

	if cancelRunning {
		done := make(chan struct{})
		go func() {
			b.dispatchWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(dispatchGrace):
			b.logf("Cleanup: abandoning in-flight handler tasks after %s", dispatchGrace)
		}
	} else {
		b.dispatchWG.Wait()
	}

	b.registry.closeAll()
	return b.transport.Close()
}

func (b *MessageBus) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

func (b *MessageBus) debugf(format string, args ...interface{}) {
	if b.cfg.Debug {
		b.logf(format, args...)
	}
}
