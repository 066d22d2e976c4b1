// Package realtime carries board dirty signals between the server hub and the
// clients viewing a board.
package realtime

import (
	"time"

	"boardsync/internal/conflict"

	"github.com/google/uuid"
)

// EventType names a frame on the board socket.
type EventType string

const (
	// client -> server
	EventJoinBoard    EventType = "join-board"
	EventLeaveBoard   EventType = "leave-board"
	EventReorderIssue EventType = "reorder-issue"
	EventPong         EventType = "pong"

	// server -> client
	EventIssueMoved     EventType = "issue-moved"
	EventIssueReordered EventType = "issue-reordered"
	EventIssueUpdated   EventType = "issue-updated"
	EventIssueCreated   EventType = "issue-created"
	EventIssueDeleted   EventType = "issue-deleted"
	EventAck            EventType = "ack"
	EventError          EventType = "error"
	EventPing           EventType = "ping"

	// EventReconnected is never on the wire. The client hands it to every
	// board handler after a reconnect so they refetch.
	EventReconnected EventType = "reconnected"
)

// IsBoardChange reports whether t tells a room its board is stale.
func (t EventType) IsBoardChange() bool {
	switch t {
	case EventIssueMoved, EventIssueReordered, EventIssueUpdated, EventIssueCreated, EventIssueDeleted:
		return true
	}
	return false
}

// Message is the single frame shape for both directions. Board change
// events are dirty signals: receivers refetch instead of applying the fields.
type Message struct {
	Type            EventType   `json:"type"`
	BoardID         uuid.UUID   `json:"boardId,omitzero"`
	ActorID         uuid.UUID   `json:"actorId,omitzero"`
	ActorName       string      `json:"actorName,omitempty"`
	IssueID         uuid.UUID   `json:"issueId,omitzero"`
	ColumnID        uuid.UUID   `json:"columnId,omitzero"`
	Status          string      `json:"status,omitempty"`
	OrderedIssueIDs []uuid.UUID `json:"orderedIssueIds,omitzero"`
	OrderVersion    int64       `json:"orderVersion,omitempty"`
	RequestID       string      `json:"requestId,omitempty"`
	Sequence        int64       `json:"sequence,omitempty"`
	Code            int         `json:"code,omitempty"`
	Error           string      `json:"error,omitempty"`
	Timestamp       time.Time   `json:"timestamp,omitzero"`

	// Conflict carries the version conflict behind a 409 error frame.
	Conflict *conflict.Response `json:"conflict,omitempty"`
}
