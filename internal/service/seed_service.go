package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"boardsync/internal/auth"
	"boardsync/internal/model"
	"boardsync/internal/repository"

	"github.com/google/uuid"
)

type BoardCreator interface {
	Create(ctx context.Context, board *model.Board) error
}

type ColumnLister interface {
	GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]model.Column, error)
}

type BoardSharer interface {
	ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role string) error
}

var (
	_ BoardCreator = (*repository.BoardRepository)(nil)
	_ ColumnLister = (*repository.ColumnRepository)(nil)
	_ BoardSharer  = (*repository.BoardShareRepository)(nil)
)

// DemoColumns are the status buckets of a seeded board, in order.
var DemoColumns = []string{"To Do", "In Progress", "Done"}

// DemoSeat is one seeded user and a token to act as them.
type DemoSeat struct {
	User  *model.User
	Token string
	Role  string
}

// Demo is what SeedService.Seed created.
type Demo struct {
	Board   *model.Board
	Columns []model.Column
	Seats   []DemoSeat
}

// SeedService creates a board owned by one user and shared with another, so
// two boardctl sessions can watch each other's changes.
type SeedService struct {
	users   repository.UserRepositoryInterface
	boards  BoardCreator
	columns ColumnLister
	shares  BoardSharer
	secret  string
	ttl     time.Duration
	logger  *slog.Logger
}

func NewSeedService(
	users repository.UserRepositoryInterface,
	boards BoardCreator,
	columns ColumnLister,
	shares BoardSharer,
	secret string,
	logger *slog.Logger,
) *SeedService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeedService{
		users:   users,
		boards:  boards,
		columns: columns,
		shares:  shares,
		secret:  secret,
		ttl:     24 * time.Hour,
		logger:  logger.With("component", "seed"),
	}
}

func (s *SeedService) Seed(ctx context.Context) (*Demo, error) {
	suffix := uuid.NewString()[:8]
	owner := &model.User{ID: uuid.New(), Email: "owner-" + suffix + "@boardsync.local", Name: "Owner"}
	editor := &model.User{ID: uuid.New(), Email: "editor-" + suffix + "@boardsync.local", Name: "Editor"}
	for _, user := range []*model.User{owner, editor} {
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user %s: %w", user.Email, err)
		}
	}

	board := &model.Board{ID: uuid.New(), Title: "Demo board", OwnerID: owner.ID}
	for i, name := range DemoColumns {
		board.Columns = append(board.Columns, model.Column{ID: uuid.New(), BoardID: board.ID, Name: name, Position: i, OrderVersion: 1})
	}
	if err := s.boards.Create(ctx, board); err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	if err := s.shares.ShareBoard(ctx, board.ID, editor.ID, model.RoleEditor); err != nil {
		return nil, fmt.Errorf("share board: %w", err)
	}

	columns, err := s.columns.GetByBoardID(ctx, board.ID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	demo := &Demo{Board: board, Columns: columns}
	for _, seat := range []struct {
		user *model.User
		role string
	}{{owner, "owner"}, {editor, model.RoleEditor}} {
		token, err := auth.GenerateToken(s.secret, seat.user.ID, s.ttl)
		if err != nil {
			return nil, fmt.Errorf("token for %s: %w", seat.user.Email, err)
		}
		demo.Seats = append(demo.Seats, DemoSeat{User: seat.user, Token: token, Role: seat.role})
	}

	s.logger.Info("demo board seeded", "board_id", board.ID, "columns", len(columns))
	return demo, nil
}
