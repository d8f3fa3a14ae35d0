// Package relay serves the latest dashboard projection to remote viewers:
// a JSON snapshot over HTTP and a push stream over websocket.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"coinwatch/internal/monitor/view"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 8
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	current []byte
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/view", s.handleView)
	r.GET("/ws", s.handleStream)
	return r
}

// Publish replaces the current projection and pushes it to every viewer.
// A viewer whose buffer is full misses this frame.
func (s *Server) Publish(p view.Projection) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal projection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = payload
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Debug("viewer lagging, frame dropped", zap.String("remote", c.conn.RemoteAddr().String()))
		}
	}
	return nil
}

// Viewers returns the number of connected websocket viewers.
func (s *Server) Viewers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ListenAndServe blocks until ctx is done or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "relay listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "relay shutdown")
	}
	return nil
}

// Close disconnects every viewer and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for c := range s.clients {
		c.close()
		delete(s.clients, c)
	}
}

func (s *Server) handleView(c *gin.Context) {
	s.mu.RLock()
	payload := s.current
	s.mu.RUnlock()

	if payload == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data yet"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.register(cl) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"))
		_ = conn.Close()
		return
	}
	s.logger.Info("viewer connected", zap.String("remote", conn.RemoteAddr().String()))

	go s.writePump(cl)
	s.readPump(cl)
}

// register adds cl and queues the current projection as its first frame.
func (s *Server) register(cl *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.clients[cl] = struct{}{}
	if s.current != nil {
		cl.send <- s.current
	}
	return true
}

func (s *Server) unregister(cl *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[cl]; ok {
		delete(s.clients, cl)
		cl.close()
	}
}

// readPump only drains control frames; viewers do not send commands.
func (s *Server) readPump(cl *client) {
	defer func() {
		s.unregister(cl)
		s.logger.Info("viewer disconnected", zap.String("remote", cl.conn.RemoteAddr().String()))
	}()

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("viewer read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
					s.logger.Debug("viewer write error", zap.Error(err))
				}
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
