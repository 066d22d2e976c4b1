// Package service enforces board access and the optimistic lock, and tells
// board rooms when their board changed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"boardsync/internal/model"
	"boardsync/internal/realtime"
	"boardsync/internal/repository"

	"github.com/google/uuid"
)

type BoardStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Board, error)
}

type ColumnStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Column, error)
	GetByName(ctx context.Context, boardID uuid.UUID, name string) (*model.Column, error)
}

type IssueStore interface {
	Create(ctx context.Context, issue *model.Issue) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Issue, error)
	GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]model.Issue, error)
	Update(ctx context.Context, id uuid.UUID, expectedVersion int64, changes repository.IssueChanges, actor uuid.UUID, force bool) (*model.Issue, error)
	Reorder(ctx context.Context, columnID uuid.UUID, orderedIDs []uuid.UUID, expectedOrderVersion int64, actor uuid.UUID) (*model.Column, error)
	Delete(ctx context.Context, id uuid.UUID) (*model.Issue, error)
}

type AccessChecker interface {
	CheckAccess(ctx context.Context, boardID, userID uuid.UUID, requiredRole string) (bool, error)
}

// Publisher delivers a board change to the board's room.
type Publisher interface {
	Publish(boardID uuid.UUID, msg realtime.Message)
}

var (
	_ IssueStore       = (*repository.IssueRepository)(nil)
	_ ColumnStore      = (*repository.ColumnRepository)(nil)
	_ BoardStore       = (*repository.BoardRepository)(nil)
	_ AccessChecker    = (*repository.BoardShareRepository)(nil)
	_ Publisher        = (*realtime.Hub)(nil)
	_ realtime.Backend = (*BoardService)(nil)
)

// BoardView is a board with every issue on it.
type BoardView struct {
	Board  *model.Board
	Issues []model.Issue
}

// NewIssue is the input of CreateIssue.
type NewIssue struct {
	Title       string
	Description string
	Status      string
	ParentID    *uuid.UUID
}

type BoardService struct {
	boards    BoardStore
	columns   ColumnStore
	issues    IssueStore
	access    AccessChecker
	users     repository.UserRepositoryInterface
	publisher Publisher
	logger    *slog.Logger
}

func NewBoardService(
	boards BoardStore,
	columns ColumnStore,
	issues IssueStore,
	access AccessChecker,
	users repository.UserRepositoryInterface,
	publisher Publisher,
	logger *slog.Logger,
) *BoardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardService{
		boards:    boards,
		columns:   columns,
		issues:    issues,
		access:    access,
		users:     users,
		publisher: publisher,
		logger:    logger.With("component", "board-service"),
	}
}

// CanViewBoard reports whether userID may read boardID and join its room.
func (s *BoardService) CanViewBoard(ctx context.Context, boardID, userID uuid.UUID) (bool, error) {
	ok, err := s.access.CheckAccess(ctx, boardID, userID, model.RoleViewer)
	if err != nil {
		return false, fmt.Errorf("check access: %w", err)
	}
	return ok, nil
}

func (s *BoardService) GetBoard(ctx context.Context, actor, boardID uuid.UUID) (*BoardView, error) {
	if err := s.require(ctx, boardID, actor, model.RoleViewer); err != nil {
		return nil, err
	}

	board, err := s.boards.GetByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, repository.ErrBoardNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get board: %w", err)
	}

	issues, err := s.issues.GetByBoardID(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("get issues: %w", err)
	}
	return &BoardView{Board: board, Issues: issues}, nil
}

// ReorderColumn makes orderedIDs the order of columnID on boardID. A stale
// membership or order version yields *conflict.Error.
func (s *BoardService) ReorderColumn(ctx context.Context, actor, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) (*model.Column, error) {
	if err := s.require(ctx, boardID, actor, model.RoleEditor); err != nil {
		return nil, err
	}

	column, err := s.columns.GetByID(ctx, columnID)
	if err != nil {
		if errors.Is(err, repository.ErrColumnNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get column: %w", err)
	}
	if column.BoardID != boardID {
		return nil, ErrNotFound
	}

	column, err = s.issues.Reorder(ctx, columnID, orderedIDs, orderVersion, actor)
	if err != nil {
		if errors.Is(err, repository.ErrColumnNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.publish(ctx, boardID, actor, realtime.Message{
		Type:            realtime.EventIssueReordered,
		ColumnID:        columnID,
		OrderedIssueIDs: orderedIDs,
		OrderVersion:    column.OrderVersion,
	})
	return column, nil
}

// ReorderIssues is the socket commit path of ReorderColumn.
func (s *BoardService) ReorderIssues(ctx context.Context, actor, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) error {
	_, err := s.ReorderColumn(ctx, actor, boardID, columnID, orderedIDs, orderVersion)
	return err
}

// UpdateIssue applies changes when version is current. force overwrites
// whatever version is stored.
func (s *BoardService) UpdateIssue(ctx context.Context, actor, issueID uuid.UUID, version int64, changes repository.IssueChanges, force bool) (*model.Issue, error) {
	if changes.Empty() {
		return nil, ErrNoChanges
	}

	current, err := s.issue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, current.BoardID, actor, model.RoleEditor); err != nil {
		return nil, err
	}

	if changes.Status != nil {
		if _, err := s.columns.GetByName(ctx, current.BoardID, *changes.Status); err != nil {
			if errors.Is(err, repository.ErrColumnNotFound) {
				return nil, ErrInvalidStatus
			}
			return nil, fmt.Errorf("get column: %w", err)
		}
	}

	updated, err := s.issues.Update(ctx, issueID, version, changes, actor, force)
	if err != nil {
		if errors.Is(err, repository.ErrIssueNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg := realtime.Message{Type: realtime.EventIssueUpdated, IssueID: updated.ID}
	if updated.Status != current.Status {
		msg.Type = realtime.EventIssueMoved
		msg.Status = updated.Status
	}
	if force {
		s.logger.Info("issue overwritten", "issue_id", issueID, "actor", actor, "version", updated.Version)
	}
	s.publish(ctx, updated.BoardID, actor, msg)
	return updated, nil
}

func (s *BoardService) CreateIssue(ctx context.Context, actor, boardID uuid.UUID, in NewIssue) (*model.Issue, error) {
	if err := s.require(ctx, boardID, actor, model.RoleEditor); err != nil {
		return nil, err
	}

	if _, err := s.columns.GetByName(ctx, boardID, in.Status); err != nil {
		if errors.Is(err, repository.ErrColumnNotFound) {
			return nil, ErrInvalidStatus
		}
		return nil, fmt.Errorf("get column: %w", err)
	}

	if in.ParentID != nil {
		parent, err := s.issues.GetByID(ctx, *in.ParentID)
		if err != nil {
			if errors.Is(err, repository.ErrIssueNotFound) {
				return nil, ErrInvalidParent
			}
			return nil, fmt.Errorf("get parent: %w", err)
		}
		if parent.BoardID != boardID || parent.IsSubtask() {
			return nil, ErrInvalidParent
		}
	}

	issue := &model.Issue{
		BoardID:     boardID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		ParentID:    in.ParentID,
		CreatedBy:   actor,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	s.publish(ctx, boardID, actor, realtime.Message{
		Type:    realtime.EventIssueCreated,
		IssueID: issue.ID,
		Status:  issue.Status,
	})
	return issue, nil
}

func (s *BoardService) DeleteIssue(ctx context.Context, actor, issueID uuid.UUID) error {
	current, err := s.issue(ctx, issueID)
	if err != nil {
		return err
	}
	if err := s.require(ctx, current.BoardID, actor, model.RoleEditor); err != nil {
		return err
	}

	deleted, err := s.issues.Delete(ctx, issueID)
	if err != nil {
		if errors.Is(err, repository.ErrIssueNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete issue: %w", err)
	}

	s.publish(ctx, deleted.BoardID, actor, realtime.Message{
		Type:    realtime.EventIssueDeleted,
		IssueID: deleted.ID,
		Status:  deleted.Status,
	})
	return nil
}

// Me returns the caller's identity.
func (s *BoardService) Me(ctx context.Context, actor uuid.UUID) (*model.User, error) {
	user, err := s.users.GetByID(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *BoardService) issue(ctx context.Context, id uuid.UUID) (*model.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrIssueNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *BoardService) require(ctx context.Context, boardID, userID uuid.UUID, role string) error {
	ok, err := s.access.CheckAccess(ctx, boardID, userID, role)
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// publish stamps the actor and hands msg to the board room. The actor's
// display name is best effort.
func (s *BoardService) publish(ctx context.Context, boardID, actor uuid.UUID, msg realtime.Message) {
	msg.ActorID = actor
	user, err := s.users.GetByID(ctx, actor)
	switch {
	case err != nil:
		s.logger.Warn("failed to resolve actor name", "actor", actor, "error", err)
	case user != nil:
		msg.ActorName = user.Name
	}
	s.publisher.Publish(boardID, msg)
}
