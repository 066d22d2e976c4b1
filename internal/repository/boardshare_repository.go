package repository

import (
	"context"
	"errors"

	"boardsync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BoardShareRepository struct {
	db *gorm.DB
}

func NewBoardShareRepository(db *gorm.DB) *BoardShareRepository {
	return &BoardShareRepository{db: db}
}

// ShareBoard grants userID a role on boardID, replacing an existing grant.
func (r *BoardShareRepository) ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role string) error {
	share := model.BoardShare{
		BoardID: boardID,
		UserID:  userID,
		Role:    role,
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existingShare model.BoardShare
		err := tx.Where("board_id = ? AND user_id = ?", boardID, userID).First(&existingShare).Error

		if err == nil {
			existingShare.Role = role
			return tx.Save(&existingShare).Error
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(&share).Error
	})
}

// CheckAccess reports whether userID holds requiredRole (or better) on boardID.
// The owner always has full access.
func (r *BoardShareRepository) CheckAccess(ctx context.Context, boardID, userID uuid.UUID, requiredRole string) (bool, error) {
	var board model.Board
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", boardID, userID).
		First(&board).Error

	if err == nil {
		return true, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	var share model.BoardShare
	err = r.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&share).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	// any role can view
	if requiredRole == model.RoleViewer {
		return true, nil
	}

	return share.Role == model.RoleEditor, nil
}
