// Package drag tracks a drag-and-drop gesture on a board and turns the drop
// into a move or reorder intent.
package drag

import (
	"errors"
	"sync"

	"boardsync/internal/ordering"

	"github.com/google/uuid"
)

type State int

const (
	Idle State = iota
	Dragging
	Dropped
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Dropped:
		return "dropped"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var ErrNotIdle = errors.New("a drag is already active")

type TargetKind int

const (
	TargetColumn TargetKind = iota
	TargetIssue
)

// Target is what the pointer was over on release.
type Target struct {
	Kind TargetKind
	ID   uuid.UUID
}

func ColumnTarget(id uuid.UUID) *Target { return &Target{Kind: TargetColumn, ID: id} }
func IssueTarget(id uuid.UUID) *Target  { return &Target{Kind: TargetIssue, ID: id} }

type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentMove
	IntentReorder
)

// Intent is the mutation a drop asks for.
type Intent struct {
	Kind    IntentKind
	IssueID uuid.UUID
	From    ordering.Column
	To      ordering.Column

	// IntentMove
	Status string

	// IntentReorder
	ColumnID        uuid.UUID
	OrderedIssueIDs []uuid.UUID
	FromIndex       int
	ToIndex         int
}

// Machine is the gesture lifecycle. Dropped and Cancelled are passed through
// on the way back to Idle; Last reports which one the previous gesture ended in.
type Machine struct {
	mu     sync.Mutex
	state  State
	last   State
	active uuid.UUID
}

func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Last() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Active returns the dragged issue for overlay rendering.
func (m *Machine) Active() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.state == Dragging
}

func (m *Machine) Start(issueID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return ErrNotIdle
	}
	m.state = Dragging
	m.active = issueID
	return nil
}

// Cancel ends the gesture without a mutation.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Dragging {
		m.finish(Cancelled)
	}
}

// Drop ends the gesture over target. A nil target means the release happened
// outside every drop zone and cancels.
func (m *Machine) Drop(board ordering.Board, target *Target) Intent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Dragging {
		return Intent{}
	}
	if target == nil {
		m.finish(Cancelled)
		return Intent{}
	}

	intent := Resolve(board, m.active, *target)
	m.finish(Dropped)
	return intent
}

func (m *Machine) finish(end State) {
	m.last = end
	m.state = Idle
	m.active = uuid.Nil
}

// Resolve computes the intent of dropping issueID on target. Anything it
// cannot place resolves to IntentNone.
func Resolve(board ordering.Board, issueID uuid.UUID, target Target) Intent {
	source, ok := board.ColumnOf(issueID)
	if !ok {
		return Intent{}
	}

	var dest ordering.Column
	switch target.Kind {
	case TargetColumn:
		dest, ok = board.ColumnByID(target.ID)
	case TargetIssue:
		dest, ok = board.ColumnOf(target.ID)
	default:
		ok = false
	}
	if !ok {
		return Intent{}
	}

	if source.ID != dest.ID {
		return Intent{
			Kind:    IntentMove,
			IssueID: issueID,
			From:    source,
			To:      dest,
			Status:  dest.Name,
		}
	}

	order := board.Order(source.Name)
	from := ordering.IndexOf(order, issueID)
	to := ordering.AppendIndex(order)
	if target.Kind == TargetIssue {
		to = ordering.IndexOf(order, target.ID)
	}
	if from == to {
		return Intent{}
	}

	next, err := ordering.ApplyMove(order, from, to)
	if err != nil {
		return Intent{}
	}
	return Intent{
		Kind:            IntentReorder,
		IssueID:         issueID,
		From:            source,
		To:              dest,
		ColumnID:        source.ID,
		OrderedIssueIDs: next,
		FromIndex:       from,
		ToIndex:         to,
	}
}
