package dto

import "github.com/google/uuid"

type IdentityResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	Approved  bool      `json:"approved"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type GalleryResponse struct {
	Identities  int    `json:"identities"`
	RefreshedAt string `json:"refreshed_at,omitempty"`
}
