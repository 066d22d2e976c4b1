package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"boardsync/internal/conflict"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrDisconnected = errors.New("realtime: connection lost before reply")
	ErrClosed       = errors.New("realtime: client torn down")
)

// RemoteError is an error frame answering one of our requests.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("realtime: server replied %d: %s", e.Code, e.Message)
}

// Event is a board change delivered to a Join handler. Remote is false when
// the change was made by the client's own identity.
type Event struct {
	Message
	Remote bool
}

// Handler receives the events of one board. It runs on the read loop and
// must not block.
type Handler func(Event)

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithToken authenticates the socket with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.header.Set("Authorization", "Bearer "+token) }
}

// WithBackoff configures reconnection. maxRetries 0 retries until Teardown.
func WithBackoff(base, max time.Duration, maxRetries int) ClientOption {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = max
		c.maxRetries = maxRetries
	}
}

func WithAckTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.ackTimeout = d }
}

// Client is a board socket connection shared by every session of one
// process. It must be started with Init and stopped with Teardown.
type Client struct {
	url        string
	self       uuid.UUID
	header     http.Header
	dialer     *websocket.Dialer
	logger     *slog.Logger
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
	ackTimeout time.Duration

	mu       sync.Mutex // protects everything below
	ws       *websocket.Conn
	handlers map[uuid.UUID]Handler
	lastSeq  map[uuid.UUID]int64
	pending  map[string]chan Message
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	writeMu sync.Mutex
	nextReq atomic.Int64
}

// NewClient prepares a client for url. self is the identity used to tell
// our own echoes apart from remote changes.
func NewClient(url string, self uuid.UUID, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		self:       self,
		header:     http.Header{},
		dialer:     websocket.DefaultDialer,
		logger:     slog.Default(),
		baseDelay:  500 * time.Millisecond,
		maxDelay:   30 * time.Second,
		ackTimeout: 10 * time.Second,
		handlers:   make(map[uuid.UUID]Handler),
		lastSeq:    make(map[uuid.UUID]int64),
		pending:    make(map[string]chan Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "realtime-client")
	return c
}

// Init dials the server and starts the read loop. The loop lives until
// Teardown or until ctx is done.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws = ws
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.done = make(chan struct{})
	go c.run(ws)
	return nil
}

// Teardown leaves every board, closes the socket and waits for the read
// loop to exit.
func (c *Client) Teardown() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	boards := make([]uuid.UUID, 0, len(c.handlers))
	for boardID := range c.handlers {
		boards = append(boards, boardID)
	}
	c.handlers = make(map[uuid.UUID]Handler)
	c.lastSeq = make(map[uuid.UUID]int64)
	ws, done := c.ws, c.done
	c.mu.Unlock()

	for _, boardID := range boards {
		_ = c.write(Message{Type: EventLeaveBoard, BoardID: boardID})
	}
	c.cancel()

	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = c.closeCurrent()

	<-done
	c.failPending(ErrClosed)
}

// Join subscribes handler to boardID. Joining a board already joined only
// replaces its handler and sends nothing.
func (c *Client) Join(ctx context.Context, boardID uuid.UUID, handler Handler) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotConnected
	}
	_, joined := c.handlers[boardID]
	c.handlers[boardID] = handler
	c.mu.Unlock()

	if joined {
		return nil
	}

	if _, err := c.request(ctx, Message{Type: EventJoinBoard, BoardID: boardID}); err != nil {
		c.mu.Lock()
		delete(c.handlers, boardID)
		c.mu.Unlock()
		return fmt.Errorf("join board %s: %w", boardID, err)
	}
	c.logger.Debug("joined board", "board_id", boardID)
	return nil
}

// Leave unsubscribes from boardID. Leaving a board never joined is a no-op.
func (c *Client) Leave(ctx context.Context, boardID uuid.UUID) error {
	c.mu.Lock()
	_, joined := c.handlers[boardID]
	delete(c.handlers, boardID)
	delete(c.lastSeq, boardID)
	started := c.started
	c.mu.Unlock()

	if !joined || !started {
		return nil
	}
	if _, err := c.request(ctx, Message{Type: EventLeaveBoard, BoardID: boardID}); err != nil {
		return fmt.Errorf("leave board %s: %w", boardID, err)
	}
	return nil
}

// Joined reports whether boardID currently has a handler.
func (c *Client) Joined(boardID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[boardID]
	return ok
}

// Reorder commits a column order over the socket and waits for the reply.
func (c *Client) Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) error {
	_, err := c.request(ctx, Message{
		Type:            EventReorderIssue,
		BoardID:         boardID,
		ColumnID:        columnID,
		OrderedIssueIDs: orderedIDs,
		OrderVersion:    orderVersion,
	})
	return err
}

func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	msg.RequestID = strconv.FormatInt(c.nextReq.Add(1), 10)
	reply := make(chan Message, 1)

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return Message{}, ErrNotConnected
	}
	c.pending[msg.RequestID] = reply
	clientCtx := c.ctx
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-reply:
		if !ok {
			return Message{}, ErrDisconnected
		}
		if resp.Type == EventError {
			if resp.Conflict != nil {
				if record := conflict.FromResponse(*resp.Conflict); record != nil {
					return resp, record
				}
			}
			return resp, &RemoteError{Code: resp.Code, Message: resp.Error}
		}
		return resp, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("realtime: no reply to %s within %s", msg.Type, c.ackTimeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-clientCtx.Done():
		return Message{}, ErrClosed
	}
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("realtime: set write deadline: %w", err)
	}
	if err := ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime: write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %s: %w", c.url, resp.Status, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", c.url, err)
	}
	return ws, nil
}

func (c *Client) closeCurrent() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return ws.Close()
}

func (c *Client) run(ws *websocket.Conn) {
	defer close(c.done)

	for {
		err := c.readLoop(ws)
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost, reconnecting", "error", err)
		c.failPending(ErrDisconnected)

		next, ok := c.reconnect()
		if !ok {
			c.logger.Error("giving up on reconnect", "attempts", c.maxRetries)
			return
		}
		ws = next
		c.rejoin()
	}
}

func (c *Client) readLoop(ws *websocket.Conn) error {
	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			return err
		}

		switch {
		case msg.Type == EventPing:
			if err := c.write(Message{Type: EventPong}); err != nil {
				c.logger.Debug("failed to send pong", "error", err)
			}

		case msg.Type == EventAck || msg.Type == EventError:
			c.resolve(msg)

		case msg.Type.IsBoardChange():
			c.dispatch(msg)
		}
	}
}

func (c *Client) resolve(msg Message) {
	c.mu.Lock()
	reply, ok := c.pending[msg.RequestID]
	if ok {
		delete(c.pending, msg.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		if msg.Type == EventError {
			c.logger.Warn("unsolicited error frame", "board_id", msg.BoardID, "error", msg.Error)
		}
		return
	}
	reply <- msg
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	handler, ok := c.handlers[msg.BoardID]
	if ok && msg.Sequence != 0 {
		if msg.Sequence <= c.lastSeq[msg.BoardID] {
			ok = false
		} else {
			c.lastSeq[msg.BoardID] = msg.Sequence
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	handler(Event{Message: msg, Remote: msg.ActorID != c.self})
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan Message)
	c.mu.Unlock()

	for id, reply := range pending {
		c.logger.Debug("failing pending request", "request_id", id, "error", err)
		close(reply)
	}
}

func (c *Client) reconnect() (*websocket.Conn, bool) {
	delay := c.baseDelay
	for attempt := 1; c.maxRetries == 0 || attempt <= c.maxRetries; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		ws, err := c.dial(c.ctx)
		if err == nil {
			c.mu.Lock()
			c.ws = ws
			c.mu.Unlock()
			c.logger.Info("reconnected", "attempt", attempt)
			return ws, true
		}

		c.logger.Debug("reconnect attempt failed", "attempt", attempt, "retry_in", delay, "error", err)
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
	return nil, false
}

// rejoin restores every room after a reconnect and tells each handler its
// board may have changed while we were away. Sequence numbers restart with
// the server, so they are forgotten.
func (c *Client) rejoin() {
	c.mu.Lock()
	handlers := make(map[uuid.UUID]Handler, len(c.handlers))
	for boardID, h := range c.handlers {
		handlers[boardID] = h
	}
	c.lastSeq = make(map[uuid.UUID]int64)
	c.mu.Unlock()

	for boardID, handler := range handlers {
		if err := c.write(Message{Type: EventJoinBoard, BoardID: boardID}); err != nil {
			c.logger.Warn("rejoin failed", "board_id", boardID, "error", err)
			continue
		}
		handler(Event{Message: Message{Type: EventReconnected, BoardID: boardID}, Remote: true})
	}
}
