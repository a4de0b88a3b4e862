package realtime

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/owner"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	defaultBuffer   = 64
	snapshotTimeout = 5 * time.Second
)

// CartSource loads the cart snapshot pushed on connect and on refresh.
type CartSource interface {
	GetCart(ctx context.Context, o owner.Owner) (*cart.Cart, error)
}

// OwnerResolver derives the connection's owner from the upgrade request.
type OwnerResolver func(r *http.Request) owner.Owner

// Server upgrades HTTP requests to websocket connections attached to the
// dispatcher's hub. Cart snapshots go through the dispatcher queue so they
// are ordered with the updates broadcast to the same client.
type Server struct {
	hub        *Hub
	dispatcher *Dispatcher
	carts      CartSource
	resolve    OwnerResolver
	upgrader   websocket.Upgrader
	buffer     int
	timeout    time.Duration
	logger     *zap.Logger
}

type ServerOption func(*Server)

// WithAllowedOrigins limits the Origin headers accepted on upgrade. An empty
// list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		if len(origins) == 0 || slices.Contains(origins, "*") {
			s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || slices.Contains(origins, o)
		}
	}
}

func WithSendBuffer(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.buffer = n
		}
	}
}

func WithSnapshotTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(d *Dispatcher, carts CartSource, resolve OwnerResolver, opts ...ServerOption) *Server {
	s := &Server{
		hub:        d.Hub(),
		dispatcher: d,
		carts:      carts,
		resolve:    resolve,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		buffer:  defaultBuffer,
		timeout: snapshotTimeout,
		logger:  zap.NewNop(),
	}
	WithAllowedOrigins(nil)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "websocket"))
	return s
}

// ServeHTTP upgrades the request, registers the connection, pushes the
// current cart and then serves it until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o := owner.Anonymous()
	if s.resolve != nil {
		o = s.resolve(r)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the 400
		s.logger.Debug("websocket_upgrade_failed", zap.Error(err))
		return
	}

	c := NewClient(o, s.buffer)
	s.hub.Register(c)
	c.MarkOpen()

	logger := s.logger.With(zap.String("client_id", c.ID()), zap.String("owner", o.Key()))
	logger.Info("websocket_connected")

	go s.writePump(conn, c)
	s.pushCart(c)
	s.readPump(conn, c, logger)

	logger.Info("websocket_disconnected")
}

// pushCart queues a snapshot of the client's cart behind every update
// already published, so it cannot overwrite a newer one.
func (s *Server) pushCart(c *Client) {
	if !s.dispatcher.SendSnapshot(c, s.loadCart(c)) {
		s.hub.SendTo(c, NewError("could not load cart"))
	}
}

func (s *Server) loadCart(c *Client) SnapshotFunc {
	return func(ctx context.Context) (Message, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		crt, err := s.carts.GetCart(ctx, c.Owner())
		if err != nil {
			return Message{}, err
		}
		return NewCartUpdate(crt, s.dispatcher.Origin())
	}
}

func (s *Server) readPump(conn *websocket.Conn, c *Client, logger *zap.Logger) {
	defer func() {
		c.Close()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				logger.Warn("websocket_read_failed", zap.Error(err))
			}
			return
		}

		msg, err := Decode(data)
		if err != nil || msg.Kind != KindRefreshCart {
			s.hub.SendTo(c, NewError("unsupported message"))
			continue
		}
		s.pushCart(c)
	}
}

func (s *Server) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
