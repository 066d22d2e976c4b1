// Package boardsync binds one board view to the server: it loads the board
// into the optimistic store, turns drops and edits into mutations, and
// refetches when the realtime channel says the board is dirty.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"boardsync/internal/api"
	"boardsync/internal/apiclient"
	"boardsync/internal/conflict"
	"boardsync/internal/drag"
	"boardsync/internal/optimistic"
	"boardsync/internal/ordering"
	"boardsync/internal/realtime"

	"github.com/google/uuid"
)

var (
	ErrUnknownIssue = errors.New("issue is not on this board")
	ErrNoChanges    = errors.New("no changes to save")
)

// BoardAPI is the REST surface a session commits through.
type BoardAPI interface {
	Board(ctx context.Context, boardID uuid.UUID) (ordering.Board, error)
	Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) (api.ReorderResponse, error)
	UpdateIssue(ctx context.Context, issueID uuid.UUID, req api.UpdateIssueRequest) (ordering.Issue, error)
}

// Channel is the realtime membership a session holds.
type Channel interface {
	Join(ctx context.Context, boardID uuid.UUID, handler realtime.Handler) error
	Leave(ctx context.Context, boardID uuid.UUID) error
}

// SocketCommitter commits column orders over the realtime socket.
type SocketCommitter interface {
	Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) error
}

var (
	_ BoardAPI        = (*apiclient.Client)(nil)
	_ Channel         = (*realtime.Client)(nil)
	_ SocketCommitter = (*realtime.Client)(nil)
)

// Notice is a user-facing message: a rolled-back mutation, or a board change
// made by someone else.
type Notice struct {
	Kind    Kind
	Message string
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

// IssueChanges is a partial edit. Nil fields are left alone.
type IssueChanges struct {
	Title       *string
	Description *string
	Status      *string
}

func (c IssueChanges) empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil
}

func (c IssueChanges) apply(issueID uuid.UUID) func(ordering.Board) (ordering.Board, error) {
	return func(b ordering.Board) (ordering.Board, error) {
		issue, ok := b.Issue(issueID)
		if !ok {
			return b, fmt.Errorf("issue %s: %w", issueID, ErrUnknownIssue)
		}
		if c.Status != nil && *c.Status != issue.Status {
			moved, err := ordering.MoveToColumn(b, issueID, *c.Status)
			if err != nil {
				return b, err
			}
			b = moved
		}
		for i := range b.Issues {
			if b.Issues[i].ID != issueID {
				continue
			}
			if c.Title != nil {
				b.Issues[i].Title = *c.Title
			}
			if c.Description != nil {
				b.Issues[i].Description = *c.Description
			}
		}
		return b, nil
	}
}

type Session struct {
	boardID  uuid.UUID
	key      string
	client   BoardAPI
	channel  Channel
	notifier Notifier
	store    *optimistic.Store[ordering.Board]
	drag     *drag.Machine
	socket   SocketCommitter
	dirty    chan struct{}
	remote   chan string
	logger   *slog.Logger

	mu       sync.Mutex
	resolver *conflict.Resolver
}

type Option func(*Session)

// WithSocketReorders sends reorders through c instead of the REST endpoint.
func WithSocketReorders(c SocketCommitter) Option {
	return func(s *Session) { s.socket = c }
}

func NewSession(boardID uuid.UUID, client BoardAPI, channel Channel, notifier Notifier, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		boardID:  boardID,
		key:      boardID.String(),
		client:   client,
		channel:  channel,
		notifier: notifier,
		drag:     drag.NewMachine(),
		dirty:    make(chan struct{}, 1),
		remote:   make(chan string, 8),
		logger:   logger.With("board_id", boardID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store = optimistic.NewStore[ordering.Board](
		func(ctx context.Context, _ string) (ordering.Board, error) {
			return client.Board(ctx, boardID)
		},
		optimistic.WithClone(ordering.Board.Clone),
		optimistic.WithLogger[ordering.Board](s.logger),
	)
	return s
}

// Open loads the board and joins its room.
func (s *Session) Open(ctx context.Context) error {
	if _, err := s.store.Load(ctx, s.key); err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	if err := s.channel.Join(ctx, s.boardID, s.onEvent); err != nil {
		return fmt.Errorf("join board: %w", err)
	}
	s.logger.Info("board session opened")
	return nil
}

func (s *Session) Close(ctx context.Context) error {
	s.drag.Cancel()
	if err := s.channel.Leave(ctx, s.boardID); err != nil {
		return fmt.Errorf("leave board: %w", err)
	}
	return nil
}

// Board returns the board as currently shown, optimistic changes included.
func (s *Session) Board() (ordering.Board, bool) {
	return s.store.Get(s.key)
}

// Changes delivers a signal each time the board was refetched.
func (s *Session) Changes() (<-chan string, func()) {
	return s.store.Subscribe()
}

func (s *Session) StartDrag(issueID uuid.UUID) error {
	return s.drag.Start(issueID)
}

func (s *Session) CancelDrag() {
	s.drag.Cancel()
}

// Dragging returns the issue under the pointer, if any.
func (s *Session) Dragging() (uuid.UUID, bool) {
	return s.drag.Active()
}

// Drop ends the active gesture over target and commits what it resolves to.
// A nil target or a drop that changes nothing never reaches the server.
func (s *Session) Drop(ctx context.Context, target *drag.Target) error {
	board, ok := s.store.Get(s.key)
	if !ok {
		s.drag.Cancel()
		return optimistic.ErrNotLoaded
	}

	intent := s.drag.Drop(board, target)
	switch intent.Kind {
	case drag.IntentMove:
		issue, _ := board.Issue(intent.IssueID)
		status := intent.Status
		return s.updateIssue(ctx, intent.IssueID, IssueChanges{Status: &status}, issue.Version, false)
	case drag.IntentReorder:
		return s.reorder(ctx, intent)
	}
	return nil
}

// EditIssue saves changes against the version currently shown.
func (s *Session) EditIssue(ctx context.Context, issueID uuid.UUID, changes IssueChanges) error {
	if changes.empty() {
		return ErrNoChanges
	}
	board, ok := s.store.Get(s.key)
	if !ok {
		return optimistic.ErrNotLoaded
	}
	issue, ok := board.Issue(issueID)
	if !ok {
		return fmt.Errorf("issue %s: %w", issueID, ErrUnknownIssue)
	}
	return s.updateIssue(ctx, issueID, changes, issue.Version, false)
}

// Resolver returns the conflict flow of the last rejected write, or nil when
// there has been none.
func (s *Session) Resolver() *conflict.Resolver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver
}

// Run refetches on board change signals and reports rolled-back mutations
// and changes by other users until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	errs := s.store.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.dirty:
			if err := s.store.Invalidate(ctx, s.key); err != nil {
				s.logger.Warn("refetch after board change failed", "error", err)
			}
		case actor := <-s.remote:
			s.notify(Notice{Kind: KindRemoteChange, Message: remoteMessage(actor)})
		case me := <-errs:
			s.report(me.Err)
		}
	}
}

func (s *Session) reorder(ctx context.Context, intent drag.Intent) error {
	columnName := intent.From.Name
	ids := intent.OrderedIssueIDs
	mutator := func(b ordering.Board) (ordering.Board, error) {
		return ordering.Reorder(b, columnName, ids)
	}
	// Version zero keeps concurrent reorders last-write-wins. The server still
	// rejects an order whose membership has gone stale.
	commit := func(ctx context.Context) error {
		if s.socket != nil {
			return s.socket.Reorder(ctx, s.boardID, intent.ColumnID, ids, 0)
		}
		_, err := s.client.Reorder(ctx, s.boardID, intent.ColumnID, ids, 0)
		return err
	}
	return s.mutate(ctx, mutator, commit, nil)
}

func (s *Session) updateIssue(ctx context.Context, issueID uuid.UUID, changes IssueChanges, version int64, force bool) error {
	req := api.UpdateIssueRequest{
		Version:     version,
		Title:       changes.Title,
		Description: changes.Description,
		Status:      changes.Status,
		Force:       force,
	}
	commit := func(ctx context.Context) error {
		_, err := s.client.UpdateIssue(ctx, issueID, req)
		return err
	}

	var overwrite func(context.Context) error
	if !force {
		overwrite = func(ctx context.Context) error {
			return s.updateIssue(ctx, issueID, changes, 0, true)
		}
	}
	return s.mutate(ctx, changes.apply(issueID), commit, overwrite)
}

// mutate applies mutator optimistically and commits it. An invalid index is
// a silent no-op. A version conflict opens a resolver before the failure is
// reported.
func (s *Session) mutate(ctx context.Context, mutator func(ordering.Board) (ordering.Board, error), commit, overwrite func(context.Context) error) error {
	m, err := s.store.Begin(s.key, mutator)
	if err != nil {
		if errors.Is(err, ordering.ErrInvalidIndex) {
			s.logger.Debug("mutation ignored", "error", err)
			return nil
		}
		return err
	}

	return m.Commit(ctx, func(ctx context.Context) error {
		err := commit(ctx)
		if conflict.IsVersionConflict(err) {
			s.openConflict(err, overwrite)
		}
		return err
	})
}

func (s *Session) openConflict(err error, overwrite func(context.Context) error) {
	refresh := func(ctx context.Context) error {
		return s.store.Invalidate(ctx, s.key)
	}
	r := conflict.NewResolver(refresh, overwrite)
	r.Detect(err)

	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// onEvent runs on the socket read loop. Every board change marks the board
// dirty, including our own echoes, since another session of the same user may
// have made them. Only changes by other users are announced.
func (s *Session) onEvent(ev realtime.Event) {
	if ev.Type != realtime.EventReconnected && !ev.Type.IsBoardChange() {
		return
	}
	s.logger.Debug("board marked dirty", "event", ev.Type, "actor", ev.ActorName, "remote", ev.Remote)
	select {
	case s.dirty <- struct{}{}:
	default:
	}

	if ev.Remote && ev.Type.IsBoardChange() {
		select {
		case s.remote <- ev.ActorName:
		default:
		}
	}
}

func (s *Session) report(err error) {
	kind := Classify(err)
	if kind == KindInvalidIndex {
		return
	}
	s.logger.Warn("mutation rolled back", "kind", kind, "error", err)
	s.notify(Notice{Kind: kind, Message: message(kind), Err: err})
}

func (s *Session) notify(n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func remoteMessage(actor string) string {
	if actor == "" {
		return "Board updated by another user."
	}
	return fmt.Sprintf("Board updated by %s.", actor)
}

func message(kind Kind) string {
	switch kind {
	case KindNetworkFailure:
		return "Could not reach the server. Your change was undone."
	case KindVersionConflict:
		return "Someone else changed this first. Refresh or overwrite their change."
	case KindPermissionDenied:
		return "You do not have permission to change this board."
	default:
		return "The change could not be saved and was undone."
	}
}
