package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity the auth collaborator vouches for. Credentials live
// with that collaborator, not here.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Email     string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
