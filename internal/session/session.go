// Package session implements the HTTP transport's SessionStore: the
// per-session lifecycle bookkeeping, monotonic event-id allocation, and
// bounded replay buffer. LocalRouter is stateless
// and has no session concept; only transport/httptransport uses this
// package.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReplayBufferSize is the number of most-recent buffered messages a
// session retains for best-effort replay.
const ReplayBufferSize = 100

// OutboundCapacity is the channel capacity of a session's outbound SSE
// event sink.
const OutboundCapacity = 100

// BufferedMessage is one replayable SSE event.
type BufferedMessage struct {
	EventID   uint64
	EventType string // empty for a plain data event, e.g. "error" or "session"
	Data      []byte
}

// Session is one HTTP/SSE client session: a mutex-guarded struct with
// no RoundTrips/Handler/framer, since LocalRouter owns the stdio framing
// concerns and this package only ever sits behind the HTTP transport.
type Session struct {
	Id string

	mu           sync.Mutex
	serverName   string
	createdAt    time.Time
	lastActivity time.Time
	nextEventID  uint64
	buffer       []BufferedMessage
	outbound     chan *BufferedMessage
}

func newSession() *Session {
	now := time.Now()
	return &Session{
		Id:           uuid.New().String(),
		createdAt:    now,
		lastActivity: now,
	}
}

// Touch refreshes the session's last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// LastActivity returns the last time the session was touched.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// ServerName returns the child server this session is currently bound
// to (the target of its most recent streaming POST; direct-JSON POSTs
// do not change it), or "" if never bound.
func (s *Session) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverName
}

// SetServerName updates the bound server name.
func (s *Session) SetServerName(name string) {
	s.mu.Lock()
	s.serverName = name
	s.mu.Unlock()
}

// NextEventID allocates and returns the next monotonic event id.
func (s *Session) NextEventID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	return s.nextEventID
}

// BindOutbound allocates a fresh outbound channel and installs it as the
// session's current sink, replacing any prior one: each new stream gets
// its own channel.
func (s *Session) BindOutbound() chan *BufferedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *BufferedMessage, OutboundCapacity)
	s.outbound = ch
	return ch
}

// Outbound returns the session's current outbound channel, or nil if
// none is bound.
func (s *Session) Outbound() chan *BufferedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbound
}

// BufferMessage appends msg to the replay buffer, dropping from the
// front once it exceeds ReplayBufferSize.
func (s *Session) BufferMessage(msg BufferedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, msg)
	if excess := len(s.buffer) - ReplayBufferSize; excess > 0 {
		s.buffer = s.buffer[excess:]
	}
}

// MessagesAfter returns buffered messages with EventID > lastID, in
// order. If lastID predates the buffer's oldest retained message, the
// full remaining buffer is returned — best-effort replay, not durable
// delivery.
func (s *Session) MessagesAfter(lastID uint64) []BufferedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lastID == 0 {
		out := make([]BufferedMessage, len(s.buffer))
		copy(out, s.buffer)
		return out
	}
	idx := 0
	for idx < len(s.buffer) && s.buffer[idx].EventID <= lastID {
		idx++
	}
	if idx >= len(s.buffer) {
		return nil
	}
	out := make([]BufferedMessage, len(s.buffer)-idx)
	copy(out, s.buffer[idx:])
	return out
}
