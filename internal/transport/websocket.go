// Package transport implements the graphql-ws transport contract
// (spec.md §6) over a real WebSocket connection, adapted from the
// teacher's wsClient read/write pumps
// (internal/graphql/subscription/websocket.go) — the protocol-level
// dispatch that file open-coded is now delegated to internal/handler.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"graphqlws/internal/handler"
	"graphqlws/internal/logger"
	"graphqlws/internal/protocol"
	"graphqlws/internal/session"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPingPeriod     = (defaultPongWait * 9) / 10
	defaultMaxMessageSize = 1024 * 1024
	sendBufferSize        = 256
)

// Config configures the WebSocket transport adapter. The ping/pong pair
// here is the transport-level liveness check gorilla/websocket performs;
// it is independent of the protocol-level "ka" keep-alive the handler
// emits (spec.md §4.C) — the teacher keeps the same distinction between
// its writePump ticker and graphql-transport-ws's own "ping" message.
type Config struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns sensible defaults; CheckOrigin must be overridden
// in production.
func DefaultConfig() Config {
	return Config{
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
		PingPeriod:     defaultPingPeriod,
		MaxMessageSize: defaultMaxMessageSize,
		CheckOrigin:    func(r *http.Request) bool { return false },
	}
}

// Server upgrades incoming HTTP requests to WebSocket connections and
// drives each one through a handler.Handler.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	handler  *handler.Handler
	nextID   func() string
}

// NewServer builds a transport Server. nextID supplies session ids; in
// production this is typically a ulid/uuid generator.
func NewServer(h *handler.Handler, cfg Config, nextID func() string) *Server {
	return &Server{
		handler: h,
		cfg:     cfg,
		nextID:  nextID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
			Subprotocols:    []string{"graphql-ws"},
		},
	}
}

// ServeHTTP upgrades the request and serves it until the peer disconnects
// or sends connection_terminate.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Sugar().Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(conn, s.cfg, s.handler, s.nextID())
	c.serve(r.Context())
}

// conn binds one WebSocket connection to one session and pumps frames
// through the handler in both directions.
type conn struct {
	ws      *websocket.Conn
	cfg     Config
	handler *handler.Handler
	sess    *session.Session
	send    chan []byte
}

func newConn(ws *websocket.Conn, cfg Config, h *handler.Handler, sessionID string) *conn {
	sess := session.New(sessionID)
	c := &conn{ws: ws, cfg: cfg, handler: h, sess: sess, send: make(chan []byte, sendBufferSize)}
	sess.CloseFunc = func() { _ = ws.Close() }
	return c
}

// serve runs the read and write pumps until either exits, then tears the
// connection down. Modeled on the teacher's readPump/writePump pair,
// coordinated here with errgroup instead of two bare goroutines so the
// first pump's exit reliably unblocks the other.
func (c *conn) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(ctx) })
	g.Go(func() error { return c.writePump(ctx) })

	// Closing the socket is what unblocks a readPump parked in
	// ReadMessage once the group's context is cancelled.
	go func() {
		<-ctx.Done()
		_ = c.ws.Close()
	}()

	_ = g.Wait()

	_ = c.ws.Close()
	logger.WithSession(c.sess.ID).Debug("connection closed")
}

func (c *conn) readPump(ctx context.Context) error {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		out := c.handler.Handle(ctx, frame, c.sess)
		go c.forward(ctx, out)
	}
}

// forward relays one frame's outbound sequence onto the shared send
// channel. Multiple frames' sequences run concurrently and are merged
// here; ordering across operations is explicitly unconstrained by
// spec.md §5.
func (c *conn) forward(ctx context.Context, out <-chan protocol.Message) {
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return
			}
			select {
			case c.send <- protocol.Encode(msg):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}
