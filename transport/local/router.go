// Package local implements the unix-domain stream-socket transport. It
// has no session concept — each connection binds to exactly one child
// name, learned from its first message, for the connection's whole
// lifetime.
package local

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/kivo360/mcp-citadel/internal/nameextract"
	"github.com/kivo360/mcp-citadel/jsonrpc"
)

// Supervisor is the subset of internal/supervisor.Supervisor this
// package depends on, kept narrow so tests can fake it without pulling
// in process spawning.
type Supervisor interface {
	RouteMessage(ctx context.Context, name string, data []byte) ([]byte, error)
}

// Router accepts connections on a unix-domain socket and forwards
// line-delimited JSON-RPC messages to Supervisor.
type Router struct {
	path       string
	supervisor Supervisor
	logger     jsonrpc.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithLogger overrides the default stderr logger.
func WithLogger(l jsonrpc.Logger) Option { return func(r *Router) { r.logger = l } }

// New creates a Router bound to path, not yet listening.
func New(path string, supervisor Supervisor, opts ...Option) *Router {
	r := &Router{path: path, supervisor: supervisor, logger: jsonrpc.DefaultLogger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listen unlinks any stale socket file, binds, and chmods to owner-only
// (0600).
func (r *Router) Listen() error {
	if _, err := os.Stat(r.path); err == nil {
		if rmErr := os.Remove(r.path); rmErr != nil {
			return rmErr
		}
	}
	ln, err := net.Listen("unix", r.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(r.path, 0o600); err != nil {
		ln.Close()
		return err
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()
	return nil
}

// Serve runs the accept loop over the listener obtained via Listen,
// spawning one goroutine per connection, until ctx is cancelled or the
// listener is closed.
func (r *Router) Serve(ctx context.Context) error {
	r.mu.Lock()
	ln := r.listener
	r.mu.Unlock()
	if ln == nil {
		return net.ErrClosed
	}
	return r.ServeListener(ctx, ln)
}

// ServeListener runs the accept loop over an externally supplied
// listener — used by cmd/hub when the listener comes from tableflip's
// graceful-handoff machinery instead of Router's own Listen.
func (r *Router) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go r.handleConn(ctx, conn)
	}
}

// Close closes the listener obtained via Listen, which stops accepting
// new connections. A listener passed to ServeListener is not tracked by
// Close; it is closed when that call's ctx is cancelled.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

func (r *Router) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	boundName := ""

	for {
		line, err := reader.ReadString('\n')
		if len(line) == 0 {
			if err != nil && err != io.EOF {
				r.logger.Errorf("local: read error: %v", err)
			}
			return
		}

		trimmed := strings.TrimRight(line, "\n")
		if boundName == "" {
			name, ok := nameextract.Extract([]byte(trimmed))
			if !ok {
				r.writeError(conn, trimmed, jsonrpc.InvalidParams, "Server name not specified")
				if err == io.EOF {
					return
				}
				continue
			}
			boundName = name
		}

		reply, routeErr := r.supervisor.RouteMessage(ctx, boundName, []byte(trimmed))
		if routeErr != nil {
			r.writeError(conn, trimmed, jsonrpc.InternalError, routeErr.Error())
		} else {
			if _, werr := conn.Write(appendNewline(reply)); werr != nil {
				r.logger.Errorf("local: write error: %v", werr)
				return
			}
		}

		if err == io.EOF {
			return
		}
	}
}

func (r *Router) writeError(conn net.Conn, line string, code int, message string) {
	id := peekID(line)
	resp := jsonrpc.NewErrorResponse(id, jsonrpc.NewError(code, message, nil))
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Errorf("local: marshal error response: %v", err)
		return
	}
	if _, werr := conn.Write(appendNewline(data)); werr != nil {
		r.logger.Errorf("local: write error: %v", werr)
	}
}

func appendNewline(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return data
	}
	return append(append([]byte(nil), data...), '\n')
}

type idProbe struct {
	Id jsonrpc.RequestId `json:"id"`
}

// peekID best-effort extracts the request id from a raw line so error
// responses can echo it; returns nil if the line has none.
func peekID(line string) jsonrpc.RequestId {
	var p idProbe
	if err := json.Unmarshal([]byte(line), &p); err != nil {
		return nil
	}
	return p.Id
}
