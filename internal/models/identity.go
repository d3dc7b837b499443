package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an enrolled person. Only approved identities with an embedding
// are eligible for matching.
type Identity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	Embedding []float32 `json:"-" db:"embedding"`
	Approved  bool      `json:"approved" db:"approved"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Matchable reports whether the identity may appear in a gallery snapshot.
func (i Identity) Matchable() bool {
	return i.Approved && len(i.Embedding) > 0
}
