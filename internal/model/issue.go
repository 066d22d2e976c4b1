package model

import (
	"time"

	"github.com/google/uuid"
)

// Versioned carries the optimistic lock counter. Embed it anonymously.
type Versioned struct {
	Version int64 `gorm:"not null;default:1"`
}

func (v *Versioned) GetVersion() int64 { return v.Version }

type Issue struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	BoardID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Title       string    `gorm:"not null"`
	Description string
	Status      string     `gorm:"not null;index"`
	ParentID    *uuid.UUID `gorm:"type:uuid"`
	Position    int        `gorm:"not null"`
	Versioned
	CreatedBy uuid.UUID  `gorm:"type:uuid;not null"`
	UpdatedBy *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSubtask reports whether the issue is excluded from column ordering.
func (i *Issue) IsSubtask() bool {
	return i.ParentID != nil
}
