// Package api holds the JSON bodies of the board REST endpoints. The server
// handlers and the Go client share them.
package api

import (
	"time"

	"github.com/google/uuid"
)

type Board struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	OwnerID uuid.UUID `json:"ownerId"`
	Columns []Column  `json:"columns"`
	Issues  []Issue   `json:"issues"`
}

type Column struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Position     int       `json:"position"`
	OrderVersion int64     `json:"orderVersion"`
}

type Issue struct {
	ID          uuid.UUID  `json:"id"`
	BoardID     uuid.UUID  `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	ParentID    *uuid.UUID `json:"parentId,omitempty"`
	Position    int        `json:"position"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	UpdatedBy   *uuid.UUID `json:"updatedBy,omitempty"`
}

// ReorderRequest sets the full order of one column. Version is the column
// order version the caller last saw; zero skips the check.
type ReorderRequest struct {
	ColumnID        uuid.UUID   `json:"columnId" binding:"required"`
	OrderedIssueIDs []uuid.UUID `json:"orderedIssueIds" binding:"required,dive,required"`
	Version         int64       `json:"version" binding:"min=0"`
}

type ReorderResponse struct {
	ColumnID     uuid.UUID `json:"columnId"`
	OrderVersion int64     `json:"orderVersion"`
}

// UpdateIssueRequest patches an issue. Version must be the version the caller
// last saw unless Force is set.
type UpdateIssueRequest struct {
	Version     int64   `json:"version" binding:"min=0"`
	Title       *string `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" binding:"omitempty,min=1"`
	Force       bool    `json:"force,omitempty"`
}

type CreateIssueRequest struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description"`
	Status      string     `json:"status" binding:"required"`
	ParentID    *uuid.UUID `json:"parentId,omitempty"`
}

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
