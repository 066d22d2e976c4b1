package handler

import (
	"context"
	"log/slog"
	"net/http"

	"boardsync/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SocketServer runs one authenticated board socket.
type SocketServer interface {
	Serve(ctx context.Context, ws *websocket.Conn, userID uuid.UUID)
}

var _ SocketServer = (*realtime.Hub)(nil)

type SocketHandler struct {
	hub    SocketServer
	logger *slog.Logger
}

func NewSocketHandler(hub SocketServer, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketHandler{hub: hub, logger: logger}
}

// Connect upgrades to the board socket. Rooms are joined with join-board
// frames once connected.
//
// @Summary  Board realtime socket
// @Tags     Realtime
// @Security BearerAuth
// @Param    token query string false "JWT when headers cannot be set"
// @Success  101
// @Router   /boards/ws [get]
func (h *SocketHandler) Connect(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}

	h.hub.Serve(context.WithoutCancel(c.Request.Context()), ws, userID)
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
