package drag_test

import (
	"testing"

	"boardsync/internal/drag"
	"boardsync/internal/ordering"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	board           ordering.Board
	todo, progress  ordering.Column
	a, b, c, d, sub uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		todo:     ordering.Column{ID: uuid.New(), Name: "To Do"},
		progress: ordering.Column{ID: uuid.New(), Name: "In Progress", Position: 1},
		a:        uuid.New(),
		b:        uuid.New(),
		c:        uuid.New(),
		d:        uuid.New(),
		sub:      uuid.New(),
	}
	parent := f.a
	f.board = ordering.Board{
		ID:      uuid.New(),
		Columns: []ordering.Column{f.todo, f.progress},
		Issues: []ordering.Issue{
			{ID: f.a, Status: "To Do", Position: 0},
			{ID: f.b, Status: "To Do", Position: 1},
			{ID: f.c, Status: "To Do", Position: 2},
			{ID: f.d, Status: "In Progress", Position: 0},
			{ID: f.sub, Status: "To Do", Position: 0, ParentID: &parent},
		},
	}
	return f
}

func TestMachine_Lifecycle(t *testing.T) {
	f := newFixture()
	m := drag.NewMachine()
	assert.Equal(t, drag.Idle, m.State())

	require.NoError(t, m.Start(f.a))
	assert.Equal(t, drag.Dragging, m.State())
	active, ok := m.Active()
	assert.True(t, ok)
	assert.Equal(t, f.a, active)
	assert.ErrorIs(t, m.Start(f.b), drag.ErrNotIdle)

	m.Drop(f.board, drag.ColumnTarget(f.progress.ID))
	assert.Equal(t, drag.Idle, m.State())
	assert.Equal(t, drag.Dropped, m.Last())
	_, ok = m.Active()
	assert.False(t, ok)
}

func TestMachine_CancelProducesNoIntent(t *testing.T) {
	f := newFixture()
	m := drag.NewMachine()

	require.NoError(t, m.Start(f.a))
	intent := m.Drop(f.board, nil)
	assert.Equal(t, drag.IntentNone, intent.Kind)
	assert.Equal(t, drag.Cancelled, m.Last())

	require.NoError(t, m.Start(f.a))
	m.Cancel()
	assert.Equal(t, drag.Cancelled, m.Last())
	assert.Equal(t, drag.Idle, m.State())

	// drop without a start is ignored
	assert.Equal(t, drag.IntentNone, m.Drop(f.board, drag.ColumnTarget(f.todo.ID)).Kind)
}

// [A, B, C], C dropped on A -> [C, A, B]
func TestResolve_ReorderScenario(t *testing.T) {
	f := newFixture()

	intent := drag.Resolve(f.board, f.c, *drag.IssueTarget(f.a))

	assert.Equal(t, drag.IntentReorder, intent.Kind)
	assert.Equal(t, f.todo.ID, intent.ColumnID)
	assert.Equal(t, []uuid.UUID{f.c, f.a, f.b}, intent.OrderedIssueIDs)
	assert.Equal(t, 2, intent.FromIndex)
	assert.Equal(t, 0, intent.ToIndex)
}

func TestResolve_CrossColumnOnColumn(t *testing.T) {
	f := newFixture()

	intent := drag.Resolve(f.board, f.a, *drag.ColumnTarget(f.progress.ID))

	assert.Equal(t, drag.IntentMove, intent.Kind)
	assert.Equal(t, "In Progress", intent.Status)
	assert.Equal(t, f.todo.ID, intent.From.ID)
	assert.Equal(t, f.progress.ID, intent.To.ID)
	assert.Nil(t, intent.OrderedIssueIDs)
}

func TestResolve_CrossColumnOnCard(t *testing.T) {
	f := newFixture()

	intent := drag.Resolve(f.board, f.a, *drag.IssueTarget(f.d))

	assert.Equal(t, drag.IntentMove, intent.Kind)
	assert.Equal(t, "In Progress", intent.Status)
}

func TestResolve_SameColumnOnColumnMovesToEnd(t *testing.T) {
	f := newFixture()

	intent := drag.Resolve(f.board, f.a, *drag.ColumnTarget(f.todo.ID))

	assert.Equal(t, drag.IntentReorder, intent.Kind)
	assert.Equal(t, []uuid.UUID{f.b, f.c, f.a}, intent.OrderedIssueIDs)

	// already last
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.c, *drag.ColumnTarget(f.todo.ID)).Kind)
}

func TestResolve_NoOps(t *testing.T) {
	f := newFixture()

	// dropped on itself
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.b, *drag.IssueTarget(f.b)).Kind)
	// unknown target
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.b, *drag.IssueTarget(uuid.New())).Kind)
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.b, *drag.ColumnTarget(uuid.New())).Kind)
	// sub-tasks are not draggable across the board
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.sub, *drag.ColumnTarget(f.progress.ID)).Kind)
	// dropping on a sub-task card cannot be placed
	assert.Equal(t, drag.IntentNone, drag.Resolve(f.board, f.a, *drag.IssueTarget(f.sub)).Kind)
}
