package boardsync_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"boardsync/internal/api"
	"boardsync/internal/apiclient"
	"boardsync/internal/boardsync"
	"boardsync/internal/conflict"
	"boardsync/internal/drag"
	"boardsync/internal/optimistic"
	"boardsync/internal/ordering"
	"boardsync/internal/realtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAPI is a mock implementation of boardsync.BoardAPI
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Board(ctx context.Context, boardID uuid.UUID) (ordering.Board, error) {
	args := m.Called(ctx, boardID)
	return args.Get(0).(ordering.Board), args.Error(1)
}

func (m *MockAPI) Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) (api.ReorderResponse, error) {
	args := m.Called(ctx, boardID, columnID, orderedIDs, orderVersion)
	return args.Get(0).(api.ReorderResponse), args.Error(1)
}

func (m *MockAPI) UpdateIssue(ctx context.Context, issueID uuid.UUID, req api.UpdateIssueRequest) (ordering.Issue, error) {
	args := m.Called(ctx, issueID, req)
	return args.Get(0).(ordering.Issue), args.Error(1)
}

// MockChannel is a mock implementation of boardsync.Channel
type MockChannel struct {
	mock.Mock
	handler realtime.Handler
}

func (m *MockChannel) Join(ctx context.Context, boardID uuid.UUID, handler realtime.Handler) error {
	m.handler = handler
	return m.Called(ctx, boardID, handler).Error(0)
}

func (m *MockChannel) Leave(ctx context.Context, boardID uuid.UUID) error {
	return m.Called(ctx, boardID).Error(0)
}

// MockSocket is a mock implementation of boardsync.SocketCommitter
type MockSocket struct {
	mock.Mock
}

func (m *MockSocket) Reorder(ctx context.Context, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) error {
	return m.Called(ctx, boardID, columnID, orderedIDs, orderVersion).Error(0)
}

type notices chan boardsync.Notice

func (n notices) Notify(notice boardsync.Notice) { n <- notice }

type fixture struct {
	board   ordering.Board
	todo    ordering.Column
	done    ordering.Column
	a, b, c uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		todo: ordering.Column{ID: uuid.New(), Name: "Todo", Position: 0},
		done: ordering.Column{ID: uuid.New(), Name: "Done", Position: 1},
		a:    uuid.New(),
		b:    uuid.New(),
		c:    uuid.New(),
	}
	f.board = ordering.Board{
		ID:      uuid.New(),
		Name:    "Sprint",
		Columns: []ordering.Column{f.todo, f.done},
		Issues: []ordering.Issue{
			{ID: f.a, Title: "A", Status: "Todo", Position: 0, Version: 3},
			{ID: f.b, Title: "B", Status: "Todo", Position: 1, Version: 1},
			{ID: f.c, Title: "C", Status: "Todo", Position: 2, Version: 1},
		},
	}
	return f
}

// with returns a copy of the board after fn.
func (f fixture) with(fn func(b *ordering.Board)) ordering.Board {
	b := f.board.Clone()
	fn(&b)
	return b
}

func setupSession(t *testing.T, f fixture) (*boardsync.Session, *MockAPI, *MockChannel, notices) {
	t.Helper()
	mockAPI := new(MockAPI)
	mockChannel := new(MockChannel)
	sink := make(notices, 8)

	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.board, nil).Once()
	mockChannel.On("Join", mock.Anything, f.board.ID, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := boardsync.NewSession(f.board.ID, mockAPI, mockChannel, sink, logger)
	require.NoError(t, s.Open(context.Background()))
	return s, mockAPI, mockChannel, sink
}

func runSession(t *testing.T, s *boardsync.Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func nextNotice(t *testing.T, sink notices) boardsync.Notice {
	t.Helper()
	select {
	case n := <-sink:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notice delivered")
		return boardsync.Notice{}
	}
}

func TestOpen_LoadsAndJoins(t *testing.T) {
	f := newFixture()

	s, _, mockChannel, _ := setupSession(t, f)

	board, ok := s.Board()
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{f.a, f.b, f.c}, board.Order("Todo"))
	mockChannel.AssertNumberOfCalls(t, "Join", 1)
	assert.NotNil(t, mockChannel.handler)
}

func TestDrop_ReorderWithinColumn(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)
	want := []uuid.UUID{f.c, f.a, f.b}

	mockAPI.On("Reorder", mock.Anything, f.board.ID, f.todo.ID, want, int64(0)).
		Run(func(args mock.Arguments) {
			board, _ := s.Board()
			assert.Equal(t, want, board.Order("Todo"), "optimistic order visible before commit returns")
		}).
		Return(api.ReorderResponse{ColumnID: f.todo.ID, OrderVersion: 1}, nil).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.with(func(b *ordering.Board) {
		b.Issues[2].Position, b.Issues[0].Position, b.Issues[1].Position = 0, 1, 2
	}), nil).Once()

	// Act
	require.NoError(t, s.StartDrag(f.c))
	err := s.Drop(context.Background(), drag.IssueTarget(f.a))

	// Assert
	require.NoError(t, err)
	board, _ := s.Board()
	assert.Equal(t, want, board.Order("Todo"))
	mockAPI.AssertExpectations(t)
}

func TestDrop_CrossColumnMoveIsStatusChangeOnly(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)

	mockAPI.On("UpdateIssue", mock.Anything, f.a, mock.MatchedBy(func(req api.UpdateIssueRequest) bool {
		return req.Status != nil && *req.Status == "Done" && req.Version == 3 && !req.Force
	})).Return(ordering.Issue{ID: f.a, Status: "Done", Version: 4}, nil).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.with(func(b *ordering.Board) {
		b.Issues[0].Status, b.Issues[0].Position, b.Issues[0].Version = "Done", 0, 4
	}), nil).Once()

	// Act
	require.NoError(t, s.StartDrag(f.a))
	err := s.Drop(context.Background(), drag.ColumnTarget(f.done.ID))

	// Assert
	require.NoError(t, err)
	board, _ := s.Board()
	assert.Equal(t, []uuid.UUID{f.a}, board.Order("Done"))
	assert.Equal(t, []uuid.UUID{f.b, f.c}, board.Order("Todo"))
	mockAPI.AssertNotCalled(t, "Reorder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockAPI.AssertExpectations(t)
}

func TestDrop_OutsideAnyZoneMakesNoCall(t *testing.T) {
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)

	require.NoError(t, s.StartDrag(f.a))
	err := s.Drop(context.Background(), nil)

	require.NoError(t, err)
	_, dragging := s.Dragging()
	assert.False(t, dragging)
	mockAPI.AssertNumberOfCalls(t, "Board", 1)
	mockAPI.AssertNotCalled(t, "UpdateIssue", mock.Anything, mock.Anything, mock.Anything)
}

func TestDrop_OnOwnPositionIsNoop(t *testing.T) {
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)

	require.NoError(t, s.StartDrag(f.b))
	err := s.Drop(context.Background(), drag.IssueTarget(f.b))

	require.NoError(t, err)
	mockAPI.AssertNumberOfCalls(t, "Board", 1)
}

func TestDrop_NetworkFailureRollsBackThenNotifies(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, sink := setupSession(t, f)
	runSession(t, s)

	offline := &apiclient.NetworkError{Op: "PATCH /issues", Err: errors.New("connection refused")}
	mockAPI.On("UpdateIssue", mock.Anything, f.a, mock.Anything).Return(ordering.Issue{}, offline).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(ordering.Board{}, offline).Once()

	// Act
	require.NoError(t, s.StartDrag(f.a))
	err := s.Drop(context.Background(), drag.ColumnTarget(f.done.ID))

	// Assert
	assert.Equal(t, boardsync.KindNetworkFailure, boardsync.Classify(err))
	notice := nextNotice(t, sink)
	assert.Equal(t, boardsync.KindNetworkFailure, notice.Kind)
	board, _ := s.Board()
	assert.Equal(t, []uuid.UUID{f.a, f.b, f.c}, board.Order("Todo"))
	assert.Empty(t, board.Order("Done"))
}

func TestEditIssue_PermissionDenied(t *testing.T) {
	f := newFixture()
	s, mockAPI, _, sink := setupSession(t, f)
	runSession(t, s)

	mockAPI.On("UpdateIssue", mock.Anything, f.b, mock.Anything).
		Return(ordering.Issue{}, fmt.Errorf("%w: viewer", apiclient.ErrPermissionDenied)).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.board, nil).Once()

	title := "renamed"
	err := s.EditIssue(context.Background(), f.b, boardsync.IssueChanges{Title: &title})

	require.Error(t, err)
	assert.Equal(t, boardsync.KindPermissionDenied, nextNotice(t, sink).Kind)
	board, _ := s.Board()
	issue, _ := board.Issue(f.b)
	assert.Equal(t, "B", issue.Title)
	assert.Nil(t, s.Resolver())
}

func TestEditIssue_VersionConflictThenOverwrite(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)
	lastUpdated := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	local := "Local title"

	mockAPI.On("UpdateIssue", mock.Anything, f.a, mock.MatchedBy(func(req api.UpdateIssueRequest) bool {
		return !req.Force && req.Version == 3
	})).Return(ordering.Issue{}, &conflict.Error{
		ResourceName:   "issue",
		YourVersion:    3,
		CurrentVersion: 4,
		LastUpdated:    lastUpdated,
	}).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.with(func(b *ordering.Board) {
		b.Issues[0].Title, b.Issues[0].Version = "Remote title", 4
	}), nil).Once()

	// Act
	err := s.EditIssue(context.Background(), f.a, boardsync.IssueChanges{Title: &local})

	// Assert
	require.True(t, conflict.IsVersionConflict(err))
	board, _ := s.Board()
	issue, _ := board.Issue(f.a)
	assert.Equal(t, "Remote title", issue.Title)
	assert.Equal(t, int64(4), issue.Version)

	r := s.Resolver()
	require.NotNil(t, r)
	assert.Equal(t, conflict.ConflictDetected, r.State())
	assert.Equal(t, int64(3), r.Record().YourVersion)
	assert.Equal(t, int64(4), r.Record().CurrentVersion)
	assert.Equal(t, []conflict.ActionState{
		{Action: conflict.ActionRefresh, Enabled: true},
		{Action: conflict.ActionOverwrite, Enabled: true},
	}, r.Actions())

	// Arrange overwrite
	mockAPI.On("UpdateIssue", mock.Anything, f.a, mock.MatchedBy(func(req api.UpdateIssueRequest) bool {
		return req.Force && req.Title != nil && *req.Title == local
	})).Return(ordering.Issue{ID: f.a, Title: local, Version: 5}, nil).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.with(func(b *ordering.Board) {
		b.Issues[0].Title, b.Issues[0].Version = local, 5
	}), nil).Once()

	// Act
	require.NoError(t, r.Overwrite(context.Background()))

	// Assert
	assert.Equal(t, conflict.NoConflict, r.State())
	board, _ = s.Board()
	issue, _ = board.Issue(f.a)
	assert.Equal(t, local, issue.Title)
	assert.Equal(t, int64(5), issue.Version)
	mockAPI.AssertExpectations(t)
}

func TestReorder_ConflictOffersRefreshOnly(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)

	mockAPI.On("Reorder", mock.Anything, f.board.ID, f.todo.ID, mock.Anything, int64(0)).
		Return(api.ReorderResponse{}, &conflict.Error{ResourceName: "column order", YourVersion: 0, CurrentVersion: 2}).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.board, nil).Twice()

	// Act
	require.NoError(t, s.StartDrag(f.a))
	err := s.Drop(context.Background(), drag.ColumnTarget(f.todo.ID))

	// Assert
	require.True(t, conflict.IsVersionConflict(err))
	r := s.Resolver()
	require.NotNil(t, r)
	assert.Len(t, r.Actions(), 1)
	assert.ErrorIs(t, r.Overwrite(context.Background()), conflict.ErrOverwriteUnsupported)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, conflict.NoConflict, r.State())
	mockAPI.AssertExpectations(t)
}

func TestMutation_SecondWhileInFlightIsRejected(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, _, _ := setupSession(t, f)
	started := make(chan struct{})
	release := make(chan struct{})

	mockAPI.On("Reorder", mock.Anything, f.board.ID, f.todo.ID, mock.Anything, int64(0)).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(api.ReorderResponse{}, nil).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.board, nil).Once()

	require.NoError(t, s.StartDrag(f.a))
	dropped := make(chan error, 1)
	go func() { dropped <- s.Drop(context.Background(), drag.ColumnTarget(f.todo.ID)) }()
	<-started

	// Act
	title := "x"
	err := s.EditIssue(context.Background(), f.b, boardsync.IssueChanges{Title: &title})

	// Assert
	assert.ErrorIs(t, err, optimistic.ErrMutationInFlight)
	close(release)
	assert.NoError(t, <-dropped)
}

func TestEditIssue_InvalidInput(t *testing.T) {
	f := newFixture()
	s, _, _, _ := setupSession(t, f)

	assert.ErrorIs(t, s.EditIssue(context.Background(), f.a, boardsync.IssueChanges{}), boardsync.ErrNoChanges)

	title := "x"
	assert.ErrorIs(t, s.EditIssue(context.Background(), uuid.New(), boardsync.IssueChanges{Title: &title}), boardsync.ErrUnknownIssue)
}

func TestRun_RefetchesOnEveryChangeAnnouncesRemoteOnly(t *testing.T) {
	// Arrange
	f := newFixture()
	s, mockAPI, mockChannel, sink := setupSession(t, f)
	runSession(t, s)
	refetched := make(chan struct{}, 4)
	mockAPI.On("Board", mock.Anything, f.board.ID).
		Run(func(mock.Arguments) { refetched <- struct{}{} }).
		Return(f.board, nil)

	waitRefetch := func(what string) {
		t.Helper()
		select {
		case <-refetched:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not trigger a refetch", what)
		}
	}

	// Act: own echo, possibly from another session of the same user
	mockChannel.handler(realtime.Event{Message: realtime.Message{Type: realtime.EventIssueMoved, BoardID: f.board.ID}})

	// Assert
	waitRefetch("own echo")
	select {
	case n := <-sink:
		t.Fatalf("own echo announced as %q", n.Message)
	case <-time.After(100 * time.Millisecond):
	}

	// Act: remote change
	mockChannel.handler(realtime.Event{
		Message: realtime.Message{Type: realtime.EventIssueReordered, BoardID: f.board.ID, ActorName: "Alice"},
		Remote:  true,
	})

	// Assert
	waitRefetch("remote change")
	notice := nextNotice(t, sink)
	assert.Equal(t, boardsync.KindRemoteChange, notice.Kind)
	assert.Equal(t, "Board updated by Alice.", notice.Message)

	// Act: reconnect
	mockChannel.handler(realtime.Event{Message: realtime.Message{Type: realtime.EventReconnected}, Remote: true})

	// Assert
	waitRefetch("reconnect")
	select {
	case n := <-sink:
		t.Fatalf("reconnect announced as %q", n.Message)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReorder_OverSocketRollsBackOnConflict(t *testing.T) {
	// Arrange
	f := newFixture()
	mockAPI := new(MockAPI)
	mockChannel := new(MockChannel)
	mockSocket := new(MockSocket)
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(f.board, nil).Once()
	mockChannel.On("Join", mock.Anything, f.board.ID, mock.Anything).Return(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := boardsync.NewSession(f.board.ID, mockAPI, mockChannel, nil, logger, boardsync.WithSocketReorders(mockSocket))
	require.NoError(t, s.Open(context.Background()))

	mockSocket.On("Reorder", mock.Anything, f.board.ID, f.todo.ID, []uuid.UUID{f.b, f.c, f.a}, int64(0)).
		Return(&conflict.Error{ResourceName: "column order", CurrentVersion: 4}).Once()
	mockAPI.On("Board", mock.Anything, f.board.ID).Return(ordering.Board{}, errors.New("offline")).Once()

	// Act
	require.NoError(t, s.StartDrag(f.a))
	err := s.Drop(context.Background(), drag.ColumnTarget(f.todo.ID))

	// Assert
	require.True(t, conflict.IsVersionConflict(err))
	board, _ := s.Board()
	assert.Equal(t, []uuid.UUID{f.a, f.b, f.c}, board.Order("Todo"))
	require.NotNil(t, s.Resolver())
	assert.Equal(t, conflict.ConflictDetected, s.Resolver().State())
	mockAPI.AssertNotCalled(t, "Reorder", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockSocket.AssertExpectations(t)
}

func TestClose_LeavesRoom(t *testing.T) {
	f := newFixture()
	s, _, mockChannel, _ := setupSession(t, f)
	mockChannel.On("Leave", mock.Anything, f.board.ID).Return(nil).Once()

	require.NoError(t, s.Close(context.Background()))

	mockChannel.AssertExpectations(t)
}
