// Package supervisor owns the set of live child processes, routes
// requests to them by name, and runs the periodic health check that
// classifies and restarts crashed children. Its RWMutex guards only the
// name-to-child map; two requests racing the same child are serialized
// by that child's own lock in childproc.ChildProcess.SendReceive.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kivo360/mcp-citadel/internal/childproc"
	"github.com/kivo360/mcp-citadel/jsonrpc"
	"github.com/kivo360/mcp-citadel/metrics"
)

// MaxRestarts bounds how many times a crashed child is revived before the
// supervisor gives up on it for the rest of the hub's lifetime.
const MaxRestarts = 3

// FastCrashThreshold is the uptime below which an exited child is
// classified as a configuration fault rather than a transient crash.
const FastCrashThreshold = 5 * time.Second

// HealthCheckInterval is how often the health-check tick runs.
const HealthCheckInterval = 30 * time.Second

// Supervisor owns name -> *childproc.ChildProcess and the restart policy.
type Supervisor struct {
	mu            sync.RWMutex
	children      map[string]*childproc.ChildProcess
	specs         map[string]childproc.Spec
	restartCounts map[string]int

	startTime time.Time
	logger    jsonrpc.Logger
	metrics   metrics.Sink

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithLogger overrides the default stderr logger.
func WithLogger(l jsonrpc.Logger) Option { return func(s *Supervisor) { s.logger = l } }

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m metrics.Sink) Option { return func(s *Supervisor) { s.metrics = m } }

// New attempts to start every spec in declared order. Specs that fail to
// spawn are logged and silently omitted from the live map — the hub
// still starts if some children come up, and a failed initial start is
// terminal for that spec until the hub restarts. The returned
// Supervisor's health-check loop runs until Close is called.
func New(ctx context.Context, specs []childproc.Spec, opts ...Option) *Supervisor {
	s := &Supervisor{
		children:      make(map[string]*childproc.ChildProcess, len(specs)),
		specs:         make(map[string]childproc.Spec, len(specs)),
		restartCounts: make(map[string]int, len(specs)),
		startTime:     time.Now(),
		logger:        jsonrpc.DefaultLogger,
		metrics:       metrics.Noop(),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, spec := range specs {
		s.specs[spec.Name] = spec
		child, err := childproc.Start(ctx, spec)
		if err != nil {
			s.logger.Errorf("supervisor: failed to start %q: %v", spec.Name, err)
			continue
		}
		s.children[spec.Name] = child
		s.metrics.IncCounter("children_started", spec.Name)
	}
	s.recordLiveChildGauge()

	hctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.healthLoop(hctx)
	return s
}

// RouteMessage forwards data to the named child under exclusive access and
// returns its reply verbatim.
func (s *Supervisor) RouteMessage(ctx context.Context, name string, data []byte) ([]byte, error) {
	s.mu.RLock()
	child, ok := s.children[name]
	s.mu.RUnlock()
	if !ok {
		s.metrics.IncCounter("route_errors", name, "not_found")
		return nil, &NotFoundError{Name: name}
	}

	start := time.Now()
	reply, err := child.SendReceive(ctx, data)
	s.metrics.ObserveDuration("route_duration", time.Since(start), name)
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.IncCounter("route_errors", name, "timeout")
			return nil, &TimeoutError{Name: name}
		}
		var ioErr *childproc.IOError
		if errors.As(err, &ioErr) {
			s.metrics.IncCounter("route_errors", name, "io_error")
			return nil, &IOError{Name: name, Err: err}
		}
		s.metrics.IncCounter("route_errors", name, "crash")
		return nil, &CrashError{Name: name, Err: err}
	}
	s.metrics.IncCounter("messages_routed", name)
	return reply, nil
}

// ListNames returns the currently live child names.
func (s *Supervisor) ListNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	return names
}

// Uptime returns how long the hub (this Supervisor) has been running.
func (s *Supervisor) Uptime() time.Duration { return time.Since(s.startTime) }

func (s *Supervisor) recordLiveChildGauge() {
	s.mu.RLock()
	n := len(s.children)
	s.mu.RUnlock()
	s.metrics.SetGauge("children_live", float64(n))
}

func (s *Supervisor) healthLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.healthTick(ctx)
		}
	}
}

// healthTick runs the per-tick classification: still alive resets the
// restart counter; a fast crash (uptime < threshold) retires that
// child's spec for the hub's lifetime; a slower crash is retried up to
// MaxRestarts; exceeding the cap retires it too.
func (s *Supervisor) healthTick(ctx context.Context) {
	s.mu.RLock()
	snapshot := make(map[string]*childproc.ChildProcess, len(s.children))
	for name, child := range s.children {
		snapshot[name] = child
	}
	s.mu.RUnlock()

	for name, child := range snapshot {
		exited, err := child.Poll()
		if !exited {
			s.mu.Lock()
			s.restartCounts[name] = 0
			s.mu.Unlock()
			continue
		}

		if child.Uptime() < FastCrashThreshold {
			s.logger.Errorf("supervisor: %q fast-crashed (config error): %v", name, err)
			s.metrics.IncCounter("children_retired", name, "fast_crash")
			s.mu.Lock()
			delete(s.children, name)
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		count := s.restartCounts[name]
		s.mu.Unlock()

		if count >= MaxRestarts {
			s.logger.Errorf("supervisor: %q exceeded restart cap (%d), retiring", name, MaxRestarts)
			s.metrics.IncCounter("children_retired", name, "restart_cap")
			s.mu.Lock()
			delete(s.children, name)
			s.mu.Unlock()
			continue
		}

		s.logger.Errorf("supervisor: %q crashed after %s uptime, restarting (attempt %d/%d)", name, child.Uptime(), count+1, MaxRestarts)
		spec := s.specs[name]
		fresh, startErr := childproc.Start(ctx, spec)
		s.mu.Lock()
		s.restartCounts[name] = count + 1
		if startErr == nil {
			s.children[name] = fresh
			s.metrics.IncCounter("children_restarted", name)
		} else {
			delete(s.children, name)
			s.logger.Errorf("supervisor: %q restart attempt failed: %v", name, startErr)
		}
		s.mu.Unlock()
	}
	s.recordLiveChildGauge()
}

// StopAll stops every live child; errors are logged, never raised — a
// best-effort shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for name, child := range s.children {
		if err := child.Stop(); err != nil {
			s.logger.Errorf("supervisor: error stopping %q: %v", name, err)
		}
		delete(s.children, name)
	}
	s.mu.Unlock()
	s.recordLiveChildGauge()
}

// Close stops the health-check loop and all children.
func (s *Supervisor) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.StopAll()
}
