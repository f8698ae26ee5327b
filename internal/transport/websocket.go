// Package transport is the bidirectional message socket (§6): an
// http.Handler upgrading to a websocket connection at a configurable
// path, one inbound read loop per connection, and a mutex-guarded
// writer so both request/response frames and streaming frames share the
// same wire without interleaving. Grounded on kart-io-sentinel-x's
// goagent/stream/transport_websocket.go WebSocketStreamer: the
// lock-guarded single-writer-per-connection shape, generalized from its
// core.LegacyStreamChunk framing onto the dispatcher's JSON-RPC
// Request/Response/StreamEvent types.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/dispatcher"
)

// connKey is the context key under which a connection's id is stashed
// so dispatcher handlers can recover it via the connectionID callback.
type connKey struct{}

// ConnectionID extracts the websocket connection id stashed in ctx by
// Server.serveConn, satisfying the dispatcher.RegisterAll signature.
func ConnectionID(ctx context.Context) string {
	id, _ := ctx.Value(connKey{}).(string)
	return id
}

// SessionHooks lets the transport notify the session manager of
// connect/disconnect without importing internal/session directly. The
// caller wires a thin adapter over *session.Manager at composition time
// since Manager.Connect's domain.SessionContext return value is of no
// interest here.
type SessionHooks interface {
	Connect(connectionID string)
	Disconnect(connectionID string)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades inbound HTTP requests to websocket connections and
// routes each connection's frames through a dispatcher.Dispatcher.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	sessions   SessionHooks
	logger     *zap.Logger

	readTimeout time.Duration
}

func NewServer(d *dispatcher.Dispatcher, sessions SessionHooks, logger *zap.Logger) *Server {
	return &Server{dispatcher: d, sessions: sessions, logger: logger, readTimeout: 90 * time.Second}
}

// ServeHTTP upgrades the request and runs the connection's read loop
// until the client disconnects or a fatal write error occurs.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	connectionID := uuid.NewString()
	s.logger.Info("connection opened", zap.String("connection_id", connectionID))

	if s.sessions != nil {
		s.sessions.Connect(connectionID)
		defer s.sessions.Disconnect(connectionID)
	}

	s.serveConn(r.Context(), connectionID, conn)
}

// connWriter serializes every outbound frame through one mutex, since a
// single streaming method's chunk sequence and another method's
// response can race on the same connection.
type connWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *connWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (s *Server) serveConn(parent context.Context, connectionID string, conn *websocket.Conn) {
	defer conn.Close()
	writer := &connWriter{conn: conn}
	ctx := context.WithValue(parent, connKey{}, connectionID)

	for {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("connection read error", zap.String("connection_id", connectionID), zap.Error(err))
			}
			return
		}

		handled := s.dispatcher.DispatchStream(ctx, raw, func(resp dispatcher.Response) {
			if err := writer.writeJSON(resp); err != nil {
				s.logger.Warn("stream write failed", zap.String("connection_id", connectionID), zap.Error(err))
			}
		})
		if handled {
			continue
		}

		resp := s.dispatcher.Dispatch(ctx, raw)
		if err := writer.writeJSON(resp); err != nil {
			s.logger.Warn("response write failed", zap.String("connection_id", connectionID), zap.Error(err))
			return
		}
	}
}
