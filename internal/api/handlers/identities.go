package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

type IdentityStore interface {
	ListIdentities(ctx context.Context, approved *bool) ([]models.Identity, error)
	ApproveIdentity(ctx context.Context, id uuid.UUID) error
}

// GallerySource exposes the in-memory gallery used by the frame loop.
type GallerySource interface {
	Current() *gallery.Snapshot
	Refresh(ctx context.Context) (*gallery.Snapshot, error)
}

type IdentityHandler struct {
	db      IdentityStore
	gallery GallerySource
}

func NewIdentityHandler(db IdentityStore, g GallerySource) *IdentityHandler {
	return &IdentityHandler{db: db, gallery: g}
}

// List handles GET /v1/identities?approved=true|false.
func (h *IdentityHandler) List(c *gin.Context) {
	var approved *bool
	if s := c.Query("approved"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid approved filter"})
			return
		}
		approved = &b
	}

	identities, err := h.db.ListIdentities(c.Request.Context(), approved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, id := range identities {
		resp = append(resp, toIdentityResponse(id))
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

// Approve handles POST /v1/identities/:id/approve. The gallery is refreshed
// right away so the identity becomes matchable without waiting for the next tick.
func (h *IdentityHandler) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	if err := h.db.ApproveIdentity(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	refreshed := true
	snap, err := h.gallery.Refresh(c.Request.Context())
	if err != nil {
		slog.Warn("gallery refresh after approval failed", "identity_id", id, "error", err)
		refreshed = false
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                id,
		"approved":          true,
		"gallery_refreshed": refreshed,
		"gallery_size":      snap.Len(),
	})
}

// Gallery handles GET /v1/gallery.
func (h *IdentityHandler) Gallery(c *gin.Context) {
	snap := h.gallery.Current()
	resp := dto.GalleryResponse{Identities: snap.Len()}
	if !snap.RefreshedAt.IsZero() {
		resp.RefreshedAt = snap.RefreshedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func toIdentityResponse(id models.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:        id.ID,
		Name:      id.Name,
		Role:      id.Role,
		Approved:  id.Approved,
		CreatedAt: id.CreatedAt.Format(time.RFC3339),
		UpdatedAt: id.UpdatedAt.Format(time.RFC3339),
	}
}
