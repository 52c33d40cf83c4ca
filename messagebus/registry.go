package messagebus

import (
	"context"
	"sync"
	"time"
)

type socketState int

const (
	stateHealthy socketState = iota
	stateFailed
)

// socketEntry is one SocketEntry per (pattern, port, role).
type socketEntry struct {
	pattern Pattern
	port    int
	role    Role

	sock Socket

	mu       sync.Mutex // guards state/failedAt/subscriptions
	state    socketState
	failedAt time.Time

	subscriptions map[string]struct{} // SUB only

	// reqMu is the per-port REQ mutual-exclusion lock, enforcing REQ's
	// strict send-then-recv alternation. Only used for REQ entries; zero
	// value is fine for every other pattern since it is never locked.
	reqMu sync.Mutex
}

// registryKey identifies a SocketEntry slot: at most one SocketEntry
// exists per (pattern, port) at any time.
type registryKey struct {
	pattern Pattern
	port    int
}

// socketRegistry opens, caches, reuses, cools down, and rebuilds
// sockets keyed by (pattern, port).
type socketRegistry struct {
	transport Transport
	cfg       Config
	metrics   *metricsCounters

	mu      sync.Mutex
	entries map[registryKey]*socketEntry
}

func newSocketRegistry(transport Transport, cfg Config, metrics *metricsCounters) *socketRegistry {
	return &socketRegistry{
		transport: transport,
		cfg:       cfg,
		metrics:   metrics,
		entries:   make(map[registryKey]*socketEntry),
	}
}

// errUnavailableType is the sentinel error socketRegistry.get returns
// for an entry that is FAILED and still cooling down (or a connect-side
// construction failure): the caller counts a drop and returns without
// surfacing an error to business logic.
type errUnavailableType struct{}

func (errUnavailableType) Error() string { return "messagebus: socket unavailable (cooldown)" }

var errUnavailable = errUnavailableType{}

// get returns the HEALTHY entry for (pattern, port), constructing one
// on first use or after cooldown elapses. topics is applied only when a
// SUB entry is (re)built. A non-nil, non-unavailable error is a
// BindError, surfaced only to bind-role callers.
func (r *socketRegistry) get(ctx context.Context, pattern Pattern, port int, topics []string) (*socketEntry, error) {
	key := registryKey{pattern: pattern, port: port}

	r.mu.Lock()
	entry, exists := r.entries[key]
	r.mu.Unlock()

	if exists {
		entry.mu.Lock()
		state := entry.state
		failedAt := entry.failedAt
		entry.mu.Unlock()

		if state == stateHealthy {
			return entry, nil
		}

		if time.Since(failedAt) < r.cfg.FailedSocketCooldown {
			return nil, errUnavailable
		}

		// Cooldown elapsed: discard and fall through to construction,
		// reapplying prior subscriptions for SUB entries.
		if len(topics) == 0 {
			entry.mu.Lock()
			for t := range entry.subscriptions {
				topics = append(topics, t)
			}
			entry.mu.Unlock()
		}
		r.mu.Lock()
		delete(r.entries, key)
		r.mu.Unlock()
	}

	return r.construct(ctx, pattern, port, topics)
}

func (r *socketRegistry) construct(ctx context.Context, pattern Pattern, port int, topics []string) (*socketEntry, error) {
	role := roleFor(pattern)

	var sock Socket
	var err error
	if role == RoleBind {
		sock, err = r.transport.Bind(ctx, pattern, port, r.cfg.HWMOutbound)
	} else {
		hwm := r.cfg.HWMOutbound
		if pattern == PatternSub {
			hwm = r.cfg.HWMInbound
		}
		sock, err = r.transport.Connect(ctx, pattern, port, hwm)
	}

	if err != nil {
		if role == RoleBind {
			r.metrics.incFailedBindCount()
			r.mu.Lock()
			r.entries[registryKey{pattern: pattern, port: port}] = &socketEntry{
				pattern:  pattern,
				port:     port,
				role:     role,
				state:    stateFailed,
				failedAt: time.Now(),
			}
			r.mu.Unlock()
			return nil, &BindError{Port: port, Pattern: pattern, Err: err}
		}
		// Connect-side construction failures (PUSH/SUB/REQ): the caller
		// (a sender) retries after cooldown rather than seeing an error.
		return nil, errUnavailable
	}

	subs := make(map[string]struct{}, len(topics))
	if pattern == PatternSub {
		for _, t := range topics {
			if err := sock.Subscribe(t); err == nil {
				subs[t] = struct{}{}
			}
		}
	}

	entry := &socketEntry{
		pattern:       pattern,
		port:          port,
		role:          role,
		sock:          sock,
		state:         stateHealthy,
		subscriptions: subs,
	}

	r.mu.Lock()
	r.entries[registryKey{pattern: pattern, port: port}] = entry
	r.mu.Unlock()

	return entry, nil
}

// fail closes the underlying socket with the configured linger, marks
// the entry FAILED, and bumps the error counter.
func (r *socketRegistry) fail(entry *socketEntry) {
	entry.mu.Lock()
	if entry.state == stateFailed {
		entry.mu.Unlock()
		return
	}
	entry.state = stateFailed
	entry.failedAt = time.Now()
	sock := entry.sock
	entry.mu.Unlock()

	if sock != nil {
		_ = sock.Close(r.cfg.CloseLingerMs)
	}
	r.metrics.incErrors()
}

// activeConnections counts HEALTHY entries, exclusive of FAILED ones
// even mid-cooldown.
func (r *socketRegistry) activeConnections() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, entry := range r.entries {
		entry.mu.Lock()
		if entry.state == stateHealthy {
			n++
		}
		entry.mu.Unlock()
	}
	return n
}

// closeAll tears down every entry, regardless of state, as part of
// bus lifecycle cleanup.
func (r *socketRegistry) closeAll() {
	r.mu.Lock()
	entries := make([]*socketEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[registryKey]*socketEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		sock := entry.sock
		entry.state = stateFailed
		entry.mu.Unlock()
		if sock != nil {
			_ = sock.Close(r.cfg.CloseLingerMs)
		}
	}
}
