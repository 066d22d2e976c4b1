package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"boardsync/internal/api"
	"boardsync/internal/conflict"
	"boardsync/internal/middleware"
	"boardsync/internal/model"
	"boardsync/internal/repository"
	"boardsync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BoardService is what the board endpoints need from the service layer.
type BoardService interface {
	GetBoard(ctx context.Context, actor, boardID uuid.UUID) (*service.BoardView, error)
	ReorderColumn(ctx context.Context, actor, boardID, columnID uuid.UUID, orderedIDs []uuid.UUID, orderVersion int64) (*model.Column, error)
	UpdateIssue(ctx context.Context, actor, issueID uuid.UUID, version int64, changes repository.IssueChanges, force bool) (*model.Issue, error)
	CreateIssue(ctx context.Context, actor, boardID uuid.UUID, in service.NewIssue) (*model.Issue, error)
	DeleteIssue(ctx context.Context, actor, issueID uuid.UUID) error
	Me(ctx context.Context, actor uuid.UUID) (*model.User, error)
}

var _ BoardService = (*service.BoardService)(nil)

type BoardHandler struct {
	svc    BoardService
	logger *slog.Logger
}

func NewBoardHandler(svc BoardService, logger *slog.Logger) *BoardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardHandler{svc: svc, logger: logger}
}

// GetByID returns a board with its columns and every issue on it.
//
// @Summary  Get a board
// @Tags     Boards
// @Security BearerAuth
// @Produce  json
// @Param    id  path     string true "Board ID"
// @Success  200 {object} api.Board
// @Failure  403 {object} api.ErrorResponse
// @Failure  404 {object} api.ErrorResponse
// @Router   /boards/{id} [get]
func (h *BoardHandler) GetByID(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}
	boardID, ok := pathID(c, "id", "Invalid board ID format")
	if !ok {
		return
	}

	view, err := h.svc.GetBoard(c.Request.Context(), userID, boardID)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve board")
		return
	}

	c.JSON(http.StatusOK, toBoard(view))
}

// Reorder replaces the order of one column.
//
// @Summary  Reorder the issues of a column
// @Tags     Issues
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id      path     string             true "Board ID"
// @Param    request body     api.ReorderRequest true "New order"
// @Success  200     {object} api.ReorderResponse
// @Failure  403     {object} api.ErrorResponse
// @Failure  409     {object} conflict.Response
// @Router   /boards/{id}/issues/reorder [post]
func (h *BoardHandler) Reorder(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}
	boardID, ok := pathID(c, "id", "Invalid board ID format")
	if !ok {
		return
	}

	var req api.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	column, err := h.svc.ReorderColumn(c.Request.Context(), userID, boardID, req.ColumnID, req.OrderedIssueIDs, req.Version)
	if err != nil {
		h.respondError(c, err, "Failed to reorder issues")
		return
	}

	c.JSON(http.StatusOK, api.ReorderResponse{ColumnID: column.ID, OrderVersion: column.OrderVersion})
}

// UpdateIssue patches an issue under the optimistic lock.
//
// @Summary  Update an issue
// @Tags     Issues
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id      path     string                 true "Issue ID"
// @Param    request body     api.UpdateIssueRequest true "Changes"
// @Success  200     {object} api.Issue
// @Failure  409     {object} conflict.Response
// @Router   /issues/{id} [patch]
func (h *BoardHandler) UpdateIssue(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}
	issueID, ok := pathID(c, "id", "Invalid issue ID format")
	if !ok {
		return
	}

	var req api.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !req.Force && req.Version == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version is required"})
		return
	}

	changes := repository.IssueChanges{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}
	issue, err := h.svc.UpdateIssue(c.Request.Context(), userID, issueID, req.Version, changes, req.Force)
	if err != nil {
		h.respondError(c, err, "Failed to update issue")
		return
	}

	c.JSON(http.StatusOK, toIssue(*issue))
}

// CreateIssue appends a new issue to the end of its column.
//
// @Summary  Create an issue
// @Tags     Issues
// @Security BearerAuth
// @Accept   json
// @Produce  json
// @Param    id      path     string                 true "Board ID"
// @Param    request body     api.CreateIssueRequest true "Issue"
// @Success  201     {object} api.Issue
// @Router   /boards/{id}/issues [post]
func (h *BoardHandler) CreateIssue(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}
	boardID, ok := pathID(c, "id", "Invalid board ID format")
	if !ok {
		return
	}

	var req api.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	issue, err := h.svc.CreateIssue(c.Request.Context(), userID, boardID, service.NewIssue{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(c, err, "Failed to create issue")
		return
	}

	c.JSON(http.StatusCreated, toIssue(*issue))
}

// DeleteIssue removes an issue and its place in the column order.
//
// @Summary  Delete an issue
// @Tags     Issues
// @Security BearerAuth
// @Param    id path string true "Issue ID"
// @Success  204
// @Router   /issues/{id} [delete]
func (h *BoardHandler) DeleteIssue(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}
	issueID, ok := pathID(c, "id", "Invalid issue ID format")
	if !ok {
		return
	}

	if err := h.svc.DeleteIssue(c.Request.Context(), userID, issueID); err != nil {
		h.respondError(c, err, "Failed to delete issue")
		return
	}

	c.Status(http.StatusNoContent)
}

// Me returns the caller's identity.
//
// @Summary  Current user
// @Tags     Users
// @Security BearerAuth
// @Produce  json
// @Success  200 {object} api.User
// @Router   /me [get]
func (h *BoardHandler) Me(c *gin.Context) {
	userID, ok := authenticated(c)
	if !ok {
		return
	}

	user, err := h.svc.Me(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, api.User{ID: user.ID, Email: user.Email, Name: user.Name})
}

// respondError writes err with its status. Conflicts use the structured
// conflict body so clients can offer refresh or overwrite.
func (h *BoardHandler) respondError(c *gin.Context, err error, fallback string) {
	if record, ok := conflict.As(err); ok {
		c.JSON(conflict.StatusCode, conflict.NewResponse(record))
		return
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		c.JSON(svcErr.StatusCode(), gin.H{"error": svcErr.Error()})
		return
	}

	_ = c.Error(err)
	h.logger.Error(fallback, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func authenticated(c *gin.Context) (uuid.UUID, bool) {
	if _, exists := c.Get(middleware.UserIDKey); !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return uuid.Nil, false
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return uuid.Nil, false
	}
	return userID, true
}

func pathID(c *gin.Context, name, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return uuid.Nil, false
	}
	return id, true
}

func toBoard(view *service.BoardView) api.Board {
	board := api.Board{
		ID:      view.Board.ID,
		Title:   view.Board.Title,
		OwnerID: view.Board.OwnerID,
		Columns: make([]api.Column, len(view.Board.Columns)),
		Issues:  make([]api.Issue, len(view.Issues)),
	}
	for i, column := range view.Board.Columns {
		board.Columns[i] = api.Column{
			ID:           column.ID,
			Name:         column.Name,
			Position:     column.Position,
			OrderVersion: column.OrderVersion,
		}
	}
	for i, issue := range view.Issues {
		board.Issues[i] = toIssue(issue)
	}
	return board
}

func toIssue(issue model.Issue) api.Issue {
	return api.Issue{
		ID:          issue.ID,
		BoardID:     issue.BoardID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		ParentID:    issue.ParentID,
		Position:    issue.Position,
		Version:     issue.Version,
		UpdatedAt:   issue.UpdatedAt,
		UpdatedBy:   issue.UpdatedBy,
	}
}
