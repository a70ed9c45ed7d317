package session

import (
	"context"
	"sync"
	"time"

	"github.com/kivo360/mcp-citadel/jsonrpc"
	"github.com/kivo360/mcp-citadel/metrics"
)

// Store maps session id to *Session. Access is serialized by a single
// lock; every operation is O(1) except Sweep, which is
// O(n) in the live session count. Only an in-memory implementation
// ships — see DESIGN.md for why a durable store (e.g. Redis) is not
// wired here.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	logger  jsonrpc.Logger
	metrics metrics.Sink
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default stderr logger.
func WithLogger(l jsonrpc.Logger) Option { return func(s *Store) { s.logger = l } }

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m metrics.Sink) Option { return func(s *Store) { s.metrics = m } }

// NewStore creates an empty Store and starts its 60s expiry sweeper,
// which removes sessions whose last activity exceeds timeout.
func NewStore(ctx context.Context, timeout time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		logger:   jsonrpc.DefaultLogger,
		metrics:  metrics.Noop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.sweepLoop(sctx, timeout)
	return s
}

// Create allocates a new session, stores it, and returns it.
func (s *Store) Create() *Session {
	sess := newSession()
	s.mu.Lock()
	s.sessions[sess.Id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetGauge("sessions_live", float64(n))
	return sess
}

// Get returns the session by id, if it exists.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove deletes a session by id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetGauge("sessions_live", float64(n))
}

// Sweep removes every session whose last activity predates timeout and
// returns how many were removed.
func (s *Store) Sweep(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetGauge("sessions_live", float64(n))
	return removed
}

func (s *Store) sweepLoop(ctx context.Context, timeout time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(timeout); n > 0 {
				s.logger.Infof("session: swept %d expired session(s)", n)
			}
		}
	}
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	s.cancel()
	<-s.done
}
