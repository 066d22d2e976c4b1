package model

import (
	"time"

	"github.com/google/uuid"
)

// BoardShare grants a user a role on a board
type BoardShare struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	BoardID   uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Role      string    `gorm:"not null;check:role IN ('viewer', 'editor')"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Board Board `gorm:"foreignKey:BoardID"`
	User  User  `gorm:"foreignKey:UserID"`
}

// Board roles
const (
	RoleViewer = "viewer" // read the board, join its room
	RoleEditor = "editor" // move, reorder and edit issues
)
