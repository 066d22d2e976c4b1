package repository

import (
	"context"
	"errors"

	"boardsync/internal/conflict"
	"boardsync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ResourceIssue       = "issue"
	ResourceColumnOrder = "column order"
)

// IssueChanges lists the fields a versioned update may touch. Nil fields are
// left alone.
type IssueChanges struct {
	Title       *string
	Description *string
	Status      *string
}

func (c IssueChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil
}

type IssueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create appends a new issue to the end of its column. Sub-tasks get no rank.
func (r *IssueRepository) Create(ctx context.Context, issue *model.Issue) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue.Version = 1
		if !issue.IsSubtask() {
			next, err := nextPosition(tx, issue.BoardID, issue.Status)
			if err != nil {
				return err
			}
			issue.Position = next
			if err := bumpOrderVersion(tx, issue.BoardID, issue.Status); err != nil {
				return err
			}
		}
		return tx.Create(issue).Error
	})
}

// GetByID retrieves an issue by its ID
func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Issue, error) {
	var issue model.Issue
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&issue)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, result.Error
	}
	return &issue, nil
}

// GetByBoardID returns every issue of a board ordered by status and rank.
func (r *IssueRepository) GetByBoardID(ctx context.Context, boardID uuid.UUID) ([]model.Issue, error) {
	var issues []model.Issue
	result := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("status").
		Order("position").
		Find(&issues)
	if result.Error != nil {
		return nil, result.Error
	}
	return issues, nil
}

// Update applies changes when expectedVersion matches the stored version and
// bumps it. A mismatch yields *conflict.Error. force skips the version check.
// A status change appends the issue to the end of the destination column.
func (r *IssueRepository) Update(ctx context.Context, id uuid.UUID, expectedVersion int64, changes IssueChanges, actor uuid.UUID, force bool) (*model.Issue, error) {
	var updated model.Issue
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Issue
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIssueNotFound
			}
			return err
		}

		if !force && current.Version != expectedVersion {
			return issueConflict(&current, expectedVersion)
		}

		updates := map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_by": actor,
		}
		if changes.Title != nil {
			updates["title"] = *changes.Title
		}
		if changes.Description != nil {
			updates["description"] = *changes.Description
		}
		if changes.Status != nil && *changes.Status != current.Status {
			updates["status"] = *changes.Status
			if !current.IsSubtask() {
				next, err := nextPosition(tx, current.BoardID, *changes.Status)
				if err != nil {
					return err
				}
				updates["position"] = next
				if err := bumpOrderVersion(tx, current.BoardID, current.Status, *changes.Status); err != nil {
					return err
				}
			}
		}

		query := tx.Model(&model.Issue{}).Where("id = ?", id)
		if !force {
			query = query.Where("version = ?", current.Version)
		}
		result := query.Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// lost the race between the read and the write
			if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
				return err
			}
			return issueConflict(&current, expectedVersion)
		}

		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Reorder makes orderedIDs the order of column. orderedIDs must hold exactly
// the column's current top-level issues; otherwise the caller's view is stale
// and a conflict on the column order is returned. A zero expectedOrderVersion
// skips the order version check (last write wins).
func (r *IssueRepository) Reorder(ctx context.Context, columnID uuid.UUID, orderedIDs []uuid.UUID, expectedOrderVersion int64, actor uuid.UUID) (*model.Column, error) {
	var column model.Column
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", columnID).First(&column).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrColumnNotFound
			}
			return err
		}

		stale := &conflict.Error{
			ResourceName:   ResourceColumnOrder,
			YourVersion:    expectedOrderVersion,
			CurrentVersion: column.OrderVersion,
		}
		if expectedOrderVersion != 0 && expectedOrderVersion != column.OrderVersion {
			return stale
		}

		var current []model.Issue
		if err := tx.Select("id, position").
			Where("board_id = ? AND status = ? AND parent_id IS NULL", column.BoardID, column.Name).
			Order("position").
			Find(&current).Error; err != nil {
			return err
		}

		positions := make(map[uuid.UUID]int, len(current))
		for _, issue := range current {
			positions[issue.ID] = issue.Position
		}
		if len(orderedIDs) != len(current) {
			return stale
		}
		seen := make(map[uuid.UUID]bool, len(orderedIDs))
		for _, id := range orderedIDs {
			if _, ok := positions[id]; !ok || seen[id] {
				return stale
			}
			seen[id] = true
		}

		for i, id := range orderedIDs {
			if positions[id] == i {
				continue
			}
			if err := tx.Model(&model.Issue{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"position":   i,
					"version":    gorm.Expr("version + 1"),
					"updated_by": actor,
				}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&model.Column{}).
			Where("id = ?", column.ID).
			Update("order_version", gorm.Expr("order_version + 1")).Error; err != nil {
			return err
		}
		column.OrderVersion++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &column, nil
}

// Delete removes an issue, and with it its place in the column order.
func (r *IssueRepository) Delete(ctx context.Context, id uuid.UUID) (*model.Issue, error) {
	var issue model.Issue
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&issue).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIssueNotFound
			}
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&model.Issue{}).Error; err != nil {
			return err
		}
		if issue.IsSubtask() {
			return nil
		}
		return bumpOrderVersion(tx, issue.BoardID, issue.Status)
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func nextPosition(tx *gorm.DB, boardID uuid.UUID, status string) (int, error) {
	var maxPosition struct {
		Next int
	}
	err := tx.Model(&model.Issue{}).
		Select("COALESCE(MAX(position), -1) + 1 AS next").
		Where("board_id = ? AND status = ? AND parent_id IS NULL", boardID, status).
		Scan(&maxPosition).Error
	return maxPosition.Next, err
}

func bumpOrderVersion(tx *gorm.DB, boardID uuid.UUID, names ...string) error {
	return tx.Model(&model.Column{}).
		Where("board_id = ? AND name IN ?", boardID, names).
		Update("order_version", gorm.Expr("order_version + 1")).Error
}

func issueConflict(current *model.Issue, yours int64) *conflict.Error {
	return &conflict.Error{
		ResourceName:   ResourceIssue,
		YourVersion:    yours,
		CurrentVersion: current.Version,
		LastUpdated:    current.UpdatedAt,
	}
}
