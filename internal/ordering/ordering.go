// Package ordering holds the client-side view of a board and the rules that
// keep its per-column issue orders legal.
package ordering

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// ErrInvalidIndex is returned when a move refers to a position outside the
// sequence. Callers treat it as a no-op.
var ErrInvalidIndex = errors.New("invalid index")

// Column is one status bucket of a board. Issues belong to it by Status.
type Column struct {
	ID       uuid.UUID
	Name     string
	Position int
	// OrderVersion is the server's counter for writes to this column's order.
	OrderVersion int64
}

// Issue is a card as the client shows it. Position ranks it within its
// column; Version is the optimistic lock counter the server checks.
type Issue struct {
	ID          uuid.UUID
	Title       string
	Description string
	Status      string
	Version     int64
	ParentID    *uuid.UUID
	Position    int
}

// IsSubtask reports whether the issue is excluded from column ordering.
func (i Issue) IsSubtask() bool {
	return i.ParentID != nil
}

// Board is a snapshot of one board as the client last saw it.
type Board struct {
	ID      uuid.UUID
	Name    string
	Columns []Column
	Issues  []Issue
}

// Clone returns a deep copy so optimistic mutations never alias a snapshot.
func (b Board) Clone() Board {
	out := Board{
		ID:      b.ID,
		Name:    b.Name,
		Columns: slices.Clone(b.Columns),
		Issues:  make([]Issue, len(b.Issues)),
	}
	for i, issue := range b.Issues {
		if issue.ParentID != nil {
			parent := *issue.ParentID
			issue.ParentID = &parent
		}
		out.Issues[i] = issue
	}
	return out
}

// ApplyMove removes the entry at fromIndex and reinserts it at toIndex. The
// input is never modified; on out-of-range indices it is returned as is
// together with ErrInvalidIndex.
func ApplyMove(order []uuid.UUID, fromIndex, toIndex int) ([]uuid.UUID, error) {
	if fromIndex < 0 || fromIndex >= len(order) || toIndex < 0 || toIndex >= len(order) {
		return order, ErrInvalidIndex
	}

	out := slices.Clone(order)
	moved := out[fromIndex]
	out = slices.Delete(out, fromIndex, fromIndex+1)
	out = slices.Insert(out, toIndex, moved)
	return out, nil
}

// AppendIndex is the target index for a drop on a column rather than a card.
func AppendIndex(order []uuid.UUID) int {
	if len(order) == 0 {
		return 0
	}
	return len(order) - 1
}

// IssuesInColumn returns the top-level issues whose status is columnName, in
// column order.
func IssuesInColumn(all []Issue, columnName string) []Issue {
	var out []Issue
	for _, issue := range all {
		if issue.Status == columnName && !issue.IsSubtask() {
			out = append(out, issue)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// IDs returns the identifiers of issues in the same order.
func IDs(issues []Issue) []uuid.UUID {
	ids := make([]uuid.UUID, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return ids
}

// IndexOf returns the position of id in order, or -1.
func IndexOf(order []uuid.UUID, id uuid.UUID) int {
	return slices.Index(order, id)
}

// Order returns the column order for columnName.
func (b Board) Order(columnName string) []uuid.UUID {
	return IDs(IssuesInColumn(b.Issues, columnName))
}

// ColumnByID looks a column up by identifier.
func (b Board) ColumnByID(id uuid.UUID) (Column, bool) {
	for _, col := range b.Columns {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnByName looks a column up by its status name.
func (b Board) ColumnByName(name string) (Column, bool) {
	for _, col := range b.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnOf returns the column whose filtered order contains issueID.
// Sub-tasks belong to no column.
func (b Board) ColumnOf(issueID uuid.UUID) (Column, bool) {
	for _, col := range b.Columns {
		if IndexOf(b.Order(col.Name), issueID) >= 0 {
			return col, true
		}
	}
	return Column{}, false
}

// Issue returns the issue with the given id.
func (b Board) Issue(id uuid.UUID) (Issue, bool) {
	for _, issue := range b.Issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return Issue{}, false
}

// Reorder rewrites the positions of columnName so that its order equals
// orderedIDs. orderedIDs must be a permutation of the current order.
func Reorder(b Board, columnName string, orderedIDs []uuid.UUID) (Board, error) {
	current := b.Order(columnName)
	if !samePermutation(current, orderedIDs) {
		return b, fmt.Errorf("reorder %q: %w", columnName, ErrInvalidIndex)
	}

	out := b.Clone()
	rank := make(map[uuid.UUID]int, len(orderedIDs))
	for i, id := range orderedIDs {
		rank[id] = i
	}
	for i := range out.Issues {
		if pos, ok := rank[out.Issues[i].ID]; ok {
			out.Issues[i].Position = pos
		}
	}
	return out, nil
}

// MoveToColumn changes the status of issueID and appends it to the end of
// the destination order. The source order keeps its relative positions.
func MoveToColumn(b Board, issueID uuid.UUID, status string) (Board, error) {
	if _, ok := b.ColumnByName(status); !ok {
		return b, fmt.Errorf("unknown column %q: %w", status, ErrInvalidIndex)
	}

	out := b.Clone()
	next := 0
	for _, issue := range IssuesInColumn(out.Issues, status) {
		if issue.Position >= next {
			next = issue.Position + 1
		}
	}
	for i := range out.Issues {
		if out.Issues[i].ID == issueID {
			if out.Issues[i].IsSubtask() {
				return b, fmt.Errorf("sub-task %s cannot be moved: %w", issueID, ErrInvalidIndex)
			}
			out.Issues[i].Status = status
			out.Issues[i].Position = next
			return out, nil
		}
	}
	return b, fmt.Errorf("issue %s not on board: %w", issueID, ErrInvalidIndex)
}

// Validate checks that every top-level issue sits in exactly one column
// order, once.
func Validate(b Board) error {
	columns := make(map[string]bool, len(b.Columns))
	for _, col := range b.Columns {
		if columns[col.Name] {
			return fmt.Errorf("duplicate column name %q", col.Name)
		}
		columns[col.Name] = true
	}

	seen := make(map[uuid.UUID]string, len(b.Issues))
	for _, issue := range b.Issues {
		if _, dup := seen[issue.ID]; dup {
			return fmt.Errorf("issue %s listed twice", issue.ID)
		}
		seen[issue.ID] = issue.Status
		if issue.IsSubtask() {
			continue
		}
		if !columns[issue.Status] {
			return fmt.Errorf("issue %s has status %q with no column", issue.ID, issue.Status)
		}
	}

	for _, col := range b.Columns {
		order := b.Order(col.Name)
		for _, id := range order {
			if seen[id] != col.Name {
				return fmt.Errorf("issue %s in column %q has status %q", id, col.Name, seen[id])
			}
		}
	}
	return nil
}

func samePermutation(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	count := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		count[id]++
	}
	for _, id := range b {
		count[id]--
		if count[id] < 0 {
			return false
		}
	}
	return true
}
