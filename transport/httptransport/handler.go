// Package httptransport implements HttpTransport: the single POST/GET
// /mcp endpoint, covering origin defence, protocol-version negotiation,
// session resolution, and the SSE streaming path with best-effort replay.
package httptransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kivo360/mcp-citadel/internal/nameextract"
	"github.com/kivo360/mcp-citadel/internal/session"
	"github.com/kivo360/mcp-citadel/internal/supervisor"
	"github.com/kivo360/mcp-citadel/jsonrpc"
)

const (
	currentProtocolVersion  = "2025-06-18"
	priorProtocolVersion    = "2025-03-26"
	sessionIDHeader         = "mcp-session-id"
	protocolVersionHeader   = "mcp-protocol-version"
	lastEventIDHeader       = "Last-Event-ID"
	keepAliveInterval       = 15 * time.Second
	sseContentType          = "text/event-stream"
	jsonContentType         = "application/json"
)

var streamingMethods = map[string]bool{
	"initialize":                  true,
	"initialized":                 true,
	"sampling/createMessage":      true,
	"roots/list_changed":          true,
	"notifications/cancelled":     true,
	"notifications/progress":      true,
}

func needsStreaming(method string) bool { return streamingMethods[method] }

// Supervisor is the subset of internal/supervisor.Supervisor this
// package depends on.
type Supervisor interface {
	RouteMessage(ctx context.Context, name string, data []byte) ([]byte, error)
}

// Handler implements http.Handler for the /mcp endpoint.
type Handler struct {
	supervisor Supervisor
	sessions   *session.Store
	logger     jsonrpc.Logger
}

// Option configures a Handler at construction time.
type Option func(*Handler)

// WithLogger overrides the default stderr logger.
func WithLogger(l jsonrpc.Logger) Option { return func(h *Handler) { h.logger = l } }

// New constructs a Handler backed by supervisor and sessions.
func New(sup Supervisor, sessions *session.Store, opts ...Option) *Handler {
	h := &Handler{supervisor: sup, sessions: sessions, logger: jsonrpc.DefaultLogger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) checkOriginAndProtocol(w http.ResponseWriter, r *http.Request) bool {
	if !checkOrigin(r) {
		h.logger.Errorf("httptransport: rejected origin %q (host=%s etld+1=%s)", r.Header.Get("Origin"), clientHost(r), effectiveTLDPlusOne(clientHost(r)))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return false
	}
	version := r.Header.Get(protocolVersionHeader)
	if version != "" && version != currentProtocolVersion && version != priorProtocolVersion {
		http.Error(w, "unsupported protocol version", http.StatusBadRequest)
		return false
	}
	return true
}

type envelope struct {
	Id     jsonrpc.RequestId `json:"id"`
	Method string            `json:"method"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	if !h.checkOriginAndProtocol(w, r) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	name, ok := nameextract.Extract(body)
	if !ok {
		http.Error(w, "server name not specified", http.StatusBadRequest)
		return
	}

	var sess *session.Session
	if env.Method == "initialize" {
		sess = h.sessions.Create()
	} else {
		sid := r.Header.Get(sessionIDHeader)
		if sid == "" {
			http.Error(w, "missing "+sessionIDHeader, http.StatusBadRequest)
			return
		}
		sess, ok = h.sessions.Get(sid)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	if !needsStreaming(env.Method) {
		h.handleDirect(w, r, env, name, body)
		return
	}
	h.handleSSEPost(w, r, sess, env, name, body)
}

func (h *Handler) handleDirect(w http.ResponseWriter, r *http.Request, env envelope, name string, body []byte) {
	reply, err := h.supervisor.RouteMessage(r.Context(), name, body)
	w.Header().Set("Content-Type", jsonContentType)
	if err != nil {
		resp := jsonrpc.NewErrorResponse(env.Id, jsonrpc.NewError(jsonrpc.InternalError, err.Error(), jsonrpc.RoutingErrorData{
			Type:   "routing_error",
			Server: name,
		}))
		data, _ := json.Marshal(resp)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (h *Handler) handleSSEPost(w http.ResponseWriter, r *http.Request, sess *session.Session, env envelope, name string, body []byte) {
	eventID := sess.NextEventID()
	outbound := sess.BindOutbound()
	sess.SetServerName(name)
	sess.Touch()

	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionIDHeader, sess.Id)
	w.WriteHeader(http.StatusOK)
	fw := newFlushWriter(w)

	if env.Method == "initialize" {
		bootstrap, _ := json.Marshal(map[string]string{"sessionId": sess.Id})
		_ = writeSSEEvent(fw, eventID, "session", bootstrap)
	}

	go h.routeAndEmit(sess, name, body, eventID)

	h.streamLoop(r.Context(), fw, outbound)
}

// routeAndEmit runs independently of the HTTP handler goroutine and
// delivers its result onto the session's outbound channel whenever
// RouteMessage returns.
func (h *Handler) routeAndEmit(sess *session.Session, name string, body []byte, eventID uint64) {
	reply, err := h.supervisor.RouteMessage(context.Background(), name, body)
	outbound := sess.Outbound()
	if err != nil {
		code, kind := classifyRouteErr(err)
		errObj := jsonrpc.NewError(code, err.Error(), jsonrpc.RoutingErrorData{Type: kind, Server: name})
		data, _ := json.Marshal(errObj)
		msg := session.BufferedMessage{EventID: eventID, EventType: "error", Data: data}
		sess.BufferMessage(msg)
		if outbound != nil {
			select {
			case outbound <- &msg:
			default:
			}
		}
		return
	}
	trimmed := bytes.TrimRight(reply, "\n")
	msg := session.BufferedMessage{EventID: eventID, Data: trimmed}
	sess.BufferMessage(msg)
	if outbound != nil {
		select {
		case outbound <- &msg:
		default:
		}
	}
}

func classifyRouteErr(err error) (code int, kind string) {
	var notFound *supervisor.NotFoundError
	if errors.As(err, &notFound) {
		return jsonrpc.ServerNotFound, "server_not_found"
	}
	var timeout *supervisor.TimeoutError
	if errors.As(err, &timeout) {
		return jsonrpc.Timeout, "timeout"
	}
	var crash *supervisor.CrashError
	if errors.As(err, &crash) {
		return jsonrpc.ServerCrash, "server_crash"
	}
	return jsonrpc.InternalError, "internal_error"
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.checkOriginAndProtocol(w, r) {
		return
	}

	sid := r.Header.Get(sessionIDHeader)
	if sid == "" {
		http.Error(w, "missing "+sessionIDHeader, http.StatusBadRequest)
		return
	}
	sess, ok := h.sessions.Get(sid)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.Touch()
	outbound := sess.BindOutbound()

	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fw := newFlushWriter(w)

	if last := strings.TrimSpace(r.Header.Get(lastEventIDHeader)); last != "" {
		if lastID, err := strconv.ParseUint(last, 10, 64); err == nil {
			go func() {
				for _, msg := range sess.MessagesAfter(lastID) {
					m := msg
					select {
					case outbound <- &m:
					default:
					}
				}
			}()
		}
	}

	h.streamLoop(r.Context(), fw, outbound)
}

// streamLoop writes events from outbound until the client disconnects,
// sending a keep-alive comment at the default cadence in between.
func (h *Handler) streamLoop(ctx context.Context, fw *flushWriter, outbound chan *session.BufferedMessage) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outbound:
			if msg == nil {
				continue
			}
			if err := writeSSEEvent(fw, msg.EventID, msg.EventType, msg.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeSSEComment(fw, "keep-alive"); err != nil {
				return
			}
		}
	}
}
