// Package wsrpc implements the WebSocket JSON-RPC transport of spec.md §6,
// grounded on the gorilla/websocket upgrader used in
// goadesign-goa-ai/example/cmd/assistant/http.go, generalized to a plain
// net/http handler (the teacher's is goa-generated; this plexus has no
// codegen layer, so the upgrade and read/write pump are written directly).
package wsrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/jsonrpc"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// defaultRequestRate and defaultRequestBurst bound how many requests a
	// single connection may dispatch per second before the session starts
	// answering with CodeInternalError instead of forwarding to the plexus.
	defaultRequestRate  = 50
	defaultRequestBurst = 100
)

// Handler upgrades connections to WebSocket and serves the plexus JSON-RPC
// subscription protocol over them: one Request per text frame, answered
// with interleaved Notification frames and a terminal Response frame.
type Handler struct {
	Plexus       *plexus.Plexus
	Logger       telemetry.Logger
	RequestRate  rate.Limit
	RequestBurst int
	upgrader     websocket.Upgrader
}

// New constructs a Handler. logger defaults to a no-op if nil.
func New(p *plexus.Plexus, logger telemetry.Logger) *Handler {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Handler{
		Plexus:       p,
		Logger:       logger,
		RequestRate:  defaultRequestRate,
		RequestBurst: defaultRequestBurst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn(r.Context(), "wsrpc: upgrade failed", "component", "wsrpc", "err", err)
		return
	}
	sess := &session{
		conn:    conn,
		logger:  h.Logger,
		plexus:  h.Plexus,
		limiter: rate.NewLimiter(h.RequestRate, h.RequestBurst),
	}
	sess.serve(r.Context())
}

// session owns one connection's lifetime: a single reader goroutine (this
// one, per gorilla's "one reader, one writer" concurrency rule) fans
// dispatched calls out to per-request goroutines that share a writer guarded
// by writeMu. limiter caps how fast that one connection may push requests
// into the plexus, independent of how many connections the server holds.
type session struct {
	conn    *websocket.Conn
	logger  telemetry.Logger
	plexus  *plexus.Plexus
	limiter *rate.Limiter

	writeMu sync.Mutex
}

func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(stop)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var req jsonrpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeJSON(jsonrpc.NewError(nil, jsonrpc.CodeParseError, err.Error()))
			continue
		}
		if !s.limiter.Allow() {
			s.writeJSON(jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, "rate limit exceeded"))
			continue
		}
		wg.Add(1)
		go func(req jsonrpc.Request) {
			defer wg.Done()
			s.handle(ctx, req)
		}(req)
	}
}

func (s *session) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) handle(ctx context.Context, req jsonrpc.Request) {
	stream := s.plexus.Call(ctx, req.Method, req.Params)
	resp, err := jsonrpc.RunSubscription(req.ID, stream, func(n jsonrpc.Notification) error {
		return s.writeJSON(n)
	})
	if err != nil {
		return
	}
	s.writeJSON(resp)
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}
