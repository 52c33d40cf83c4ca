// Package messagebus is a reusable asynchronous messaging middleware that
// multiplexes publish/subscribe, push/pull, and request/response over a
// ZeroMQ socket transport.
//
// It is the communication backbone for the snail-trader runtime: the
// scheduler, data-fetch, analytics, and strategy-worker services exchange
// market ticks, task results, and control queries through a MessageBus
// instance each, without knowing about one another's transport details.
//
// The trading domain itself, the scheduler, configuration loading, the
// logging sink, persistent storage, and auth are all external collaborators.
// This package owns exactly one thing: the lifecycle, concurrency-safety,
// failure-isolation, and backpressure policy of the socket family bound to
// a MessageBus instance.
package messagebus
