// Package ws serves the executor command channel over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/hub"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

// sendBuffer bounds frames queued per connection before handlers block.
const sendBuffer = 64

// Dispatcher turns one raw frame into its response.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) *protocol.ResponseFrame
}

// Server handles WebSocket connections.
type Server struct {
	cfg        *config.Config
	hub        *hub.Hub
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	inflight   atomic.Int64
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, d Dispatcher, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		hub:        h,
		dispatcher: d,
		metrics:    m,
		logger:     logger.With(zap.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes registers the executor endpoints on e.
func (s *Server) Routes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
	e.GET("/health", s.HandleHealth)
	e.GET("/screenshot", s.HandleScreenshot)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, sendBuffer)
	s.hub.Register(conn)
	s.metrics.ConnectionOpened()
	s.logger.Info("client connected", zap.String("conn_id", conn.ID), zap.String("remote", c.RealIP()))

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads frames and hands each one to its own goroutine so a slow
// command never delays replies to others.
func (s *Server) readPump(conn *hub.Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
		s.metrics.ConnectionClosed()
		s.logger.Info("client disconnected", zap.String("conn_id", conn.ID))
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		go s.handleMessage(ctx, conn, message)
	}
}

// writePump writes queued frames and keepalive pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-conn.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one frame and queues exactly one response.
func (s *Server) handleMessage(ctx context.Context, conn *hub.Connection, data []byte) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	resp := s.dispatcher.Dispatch(ctx, data)
	out, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		out, _ = json.Marshal(protocol.Failed(resp.CommandID, "failed to encode response"))
	}

	if err := conn.Enqueue(ctx, out); err != nil {
		s.logger.Debug("dropping response for closed connection",
			zap.String("conn_id", conn.ID),
			zap.ByteString("command_id", resp.CommandID))
	}
}

// HandleHealth reports connection and in-flight command counts.
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.GetConnectionCount(),
		"in_flight":   s.inflight.Load(),
	})
}

// HandleScreenshot runs a screenshot through the normal dispatch path and
// returns the response frame.
func (s *Server) HandleScreenshot(c echo.Context) error {
	params := map[string]interface{}{}
	if format := c.QueryParam("format"); format != "" {
		params["format"] = format
	}
	if q := c.QueryParam("quality"); q != "" {
		quality, err := strconv.Atoi(q)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "quality must be an integer"})
		}
		params["quality"] = quality
	}

	frame, err := json.Marshal(map[string]interface{}{
		"command":    protocol.CommandScreenshot,
		"command_id": fmt.Sprintf("http_%s", uuid.New().String()),
		"params":     params,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := s.dispatcher.Dispatch(c.Request().Context(), frame)
	if !resp.Success {
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
