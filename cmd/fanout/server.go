package main

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The socket only carries events the caller's identity already
	// scopes, so cross-origin pages may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the WebSocket endpoint and health stats
type Server struct {
	hub *Hub
	log *logger.Logger
}

// NewServer creates a new server
func NewServer(hub *Hub, log *logger.Logger) *Server {
	return &Server{
		hub: hub,
		log: log,
	}
}

// Routes registers the fan-out endpoints on e
func (s *Server) Routes(e *echo.Echo) {
	e.GET("/ws", s.handleSocket)
	e.GET("/health", s.handleHealth)
}

// handleSocket upgrades the connection and registers it with the hub.
// Identity comes from the X-User-ID header, or from the user query
// parameter for browser clients that cannot set headers on a socket.
// An optional runId parameter narrows the stream to one run.
// GET /ws?user=alice&runId=...
func (s *Server) handleSocket(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		userID = c.QueryParam("user")
	}
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "identity required (X-User-ID header or user query parameter)",
		})
	}

	runID := c.QueryParam("runId")
	if runID != "" {
		if _, err := uuid.Parse(runID); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "runId must be a valid uuid",
			})
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response
		s.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return nil
	}

	client := NewClient(s.hub, conn, userID, runID, s.log)
	s.hub.register <- client
	s.log.Info("socket connected",
		"user_id", userID,
		"run_filter", runID,
		"remote", c.Request().RemoteAddr)

	go client.writePump()
	go client.readPump()
	return nil
}

// handleHealth reports liveness and connection counts
// GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "weft-fanout",
		"connections": s.hub.ConnectionCount(),
		"users":       s.hub.UserCount(),
	})
}
