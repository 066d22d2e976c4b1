package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"boardsync/internal/conflict"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrForbidden is reported to a socket whose user may not view the board.
var ErrForbidden = errors.New("forbidden")

// Backend is what the hub needs from the rest of the server.
type Backend interface {
	// CanViewBoard gates room membership.
	CanViewBoard(ctx context.Context, boardID, userID uuid.UUID) (bool, error)
	// ReorderIssues commits a reorder-issue frame. The implementation is
	// expected to Publish the resulting board change itself.
	ReorderIssues(ctx context.Context, actor, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) error
}

// ErrorCoder lets a Backend error choose the status code reported in an
// error frame.
type ErrorCoder interface {
	StatusCode() int
}

type HubConfig struct {
	PingInterval time.Duration
	StaleAfter   time.Duration
	ClientBuffer int
	WriteTimeout time.Duration
}

func (c HubConfig) withDefaults() HubConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 3 * c.PingInterval
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// conn is one connected socket.
type conn struct {
	ws     *websocket.Conn
	userID uuid.UUID
	send   chan Message

	mu       sync.Mutex // protects lastPong, closed
	lastPong time.Time
	closed   bool
}

func (c *conn) enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
}

// Hub tracks board rooms and fans board events out to their members.
type Hub struct {
	cfg     HubConfig
	backend Backend
	logger  *slog.Logger

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*conn]struct{}
	conns map[*conn]map[uuid.UUID]struct{}

	sequence     atomic.Int64
	shutdownOnce sync.Once
}

func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "hub"),
		rooms:  make(map[uuid.UUID]map[*conn]struct{}),
		conns:  make(map[*conn]map[uuid.UUID]struct{}),
	}
}

// Bind sets the backend. It must be called before Serve.
func (h *Hub) Bind(backend Backend) {
	h.backend = backend
}

// Serve runs one socket until it disconnects. Every membership of the socket
// is dropped on return.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, userID uuid.UUID) {
	c := &conn{
		ws:       ws,
		userID:   userID,
		send:     make(chan Message, h.cfg.ClientBuffer),
		lastPong: time.Now(),
	}

	h.mu.Lock()
	h.conns[c] = make(map[uuid.UUID]struct{})
	count := len(h.conns)
	h.mu.Unlock()
	connectionsGauge.Inc()
	h.logger.Info("client connected", "user_id", userID, "clients", count)

	go h.writer(c)
	defer func() {
		h.remove(c)
		h.logger.Info("client disconnected", "user_id", userID)
	}()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("socket read ended", "user_id", userID, "error", err)
			}
			return
		}
		h.handle(ctx, c, msg)
	}
}

func (h *Hub) handle(ctx context.Context, c *conn, msg Message) {
	switch msg.Type {
	case EventJoinBoard:
		h.join(ctx, c, msg)

	case EventLeaveBoard:
		h.leave(c, msg.BoardID)
		c.enqueue(Message{Type: EventAck, BoardID: msg.BoardID, RequestID: msg.RequestID})

	case EventReorderIssue:
		err := h.backend.ReorderIssues(ctx, c.userID, msg.BoardID, msg.ColumnID, msg.OrderedIssueIDs, msg.OrderVersion)
		if err != nil {
			h.replyError(c, msg, err)
			return
		}
		c.enqueue(Message{Type: EventAck, BoardID: msg.BoardID, RequestID: msg.RequestID})

	case EventPong:
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()

	default:
		h.replyError(c, msg, errors.New("unknown event type"))
	}
}

func (h *Hub) join(ctx context.Context, c *conn, msg Message) {
	ok, err := h.backend.CanViewBoard(ctx, msg.BoardID, c.userID)
	if err != nil {
		joinsTotal.WithLabelValues("error").Inc()
		h.replyError(c, msg, err)
		return
	}
	if !ok {
		joinsTotal.WithLabelValues("denied").Inc()
		h.replyError(c, msg, ErrForbidden)
		return
	}

	h.mu.Lock()
	memberships, connected := h.conns[c]
	_, already := memberships[msg.BoardID]
	if connected && !already {
		memberships[msg.BoardID] = struct{}{}
		room, ok := h.rooms[msg.BoardID]
		if !ok {
			room = make(map[*conn]struct{})
			h.rooms[msg.BoardID] = room
		}
		room[c] = struct{}{}
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	roomsGauge.Set(float64(rooms))
	if already {
		joinsTotal.WithLabelValues("duplicate").Inc()
	} else {
		joinsTotal.WithLabelValues("joined").Inc()
		h.logger.Debug("joined board room", "board_id", msg.BoardID, "user_id", c.userID)
	}
	c.enqueue(Message{Type: EventAck, BoardID: msg.BoardID, RequestID: msg.RequestID})
}

func (h *Hub) leave(c *conn, boardID uuid.UUID) {
	h.mu.Lock()
	if memberships, ok := h.conns[c]; ok {
		delete(memberships, boardID)
	}
	h.dropFromRoom(c, boardID)
	rooms := len(h.rooms)
	h.mu.Unlock()
	roomsGauge.Set(float64(rooms))
}

// dropFromRoom must be called with h.mu held.
func (h *Hub) dropFromRoom(c *conn, boardID uuid.UUID) {
	room, ok := h.rooms[boardID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, boardID)
	}
}

func (h *Hub) replyError(c *conn, msg Message, err error) {
	code := http.StatusInternalServerError
	var coder ErrorCoder
	switch {
	case errors.As(err, &coder):
		code = coder.StatusCode()
	case errors.Is(err, ErrForbidden):
		code = http.StatusForbidden
	case msg.Type != EventReorderIssue && msg.Type != EventJoinBoard:
		code = http.StatusBadRequest
	}
	reply := Message{
		Type:      EventError,
		BoardID:   msg.BoardID,
		RequestID: msg.RequestID,
		Code:      code,
		Error:     err.Error(),
	}
	if record, ok := conflict.As(err); ok {
		resp := conflict.NewResponse(record)
		reply.Conflict = &resp
	}
	c.enqueue(reply)
}

// Publish stamps msg with the next sequence number and queues it for every
// member of the board room. Slow members lose the frame.
func (h *Hub) Publish(boardID uuid.UUID, msg Message) {
	msg.BoardID = boardID
	msg.Sequence = h.sequence.Add(1)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	members := make([]*conn, 0, len(h.rooms[boardID]))
	for c := range h.rooms[boardID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	eventsPublished.WithLabelValues(string(msg.Type)).Inc()
	for _, c := range members {
		if !c.enqueue(msg) {
			eventsDropped.Inc()
			h.logger.Warn("client send queue full, event dropped", "board_id", boardID, "user_id", c.userID)
		}
	}
}

// RoomSize returns the number of sockets in a board room.
func (h *Hub) RoomSize(boardID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[boardID])
}

// Run pings clients and evicts the ones that stopped answering, until ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAndEvict()
		}
	}
}

func (h *Hub) pingAndEvict() {
	h.mu.RLock()
	clients := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	now := time.Now()
	for _, c := range clients {
		c.mu.Lock()
		silent := now.Sub(c.lastPong)
		c.mu.Unlock()

		if silent > h.cfg.StaleAfter {
			h.logger.Info("removing stale client", "user_id", c.userID, "silent_for", silent)
			h.remove(c)
			continue
		}
		if !c.enqueue(Message{Type: EventPing}) {
			h.logger.Debug("failed to queue ping", "user_id", c.userID)
		}
	}
}

// Shutdown closes every socket.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.mu.RLock()
		clients := make([]*conn, 0, len(h.conns))
		for c := range h.conns {
			clients = append(clients, c)
		}
		h.mu.RUnlock()

		for _, c := range clients {
			h.remove(c)
		}
		h.logger.Info("hub shut down", "clients", len(clients))
	})
}

func (h *Hub) writer(c *conn) {
	for msg := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
			break
		}
		if err := c.ws.WriteJSON(msg); err != nil {
			h.logger.Debug("socket write failed", "user_id", c.userID, "error", err)
			break
		}
	}
	_ = c.ws.Close()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	memberships, ok := h.conns[c]
	if ok {
		for boardID := range memberships {
			h.dropFromRoom(c, boardID)
		}
		delete(h.conns, c)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	if ok {
		connectionsGauge.Dec()
		roomsGauge.Set(float64(rooms))
	}
	c.close()
}
