package model

import (
	"github.com/google/uuid"
)

// Column is one status bucket of a board. Name is the status value its
// issues carry.
type Column struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	BoardID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"not null"`
	Position int       `gorm:"not null"`
	// OrderVersion is bumped on every accepted write to this column's order.
	OrderVersion int64 `gorm:"not null;default:1"`

	Board Board `gorm:"foreignKey:BoardID"`
}
