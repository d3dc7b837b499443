package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/pkg/dto"
)

// AttendanceStore is the read side of the attendance log.
type AttendanceStore interface {
	QueryAttendance(ctx context.Context, q models.AttendanceQuery) ([]models.AttendanceRecord, int, error)
	GetAttendance(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error)
}

// ObjectGetter fetches stored snapshot images.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

const exportPageSize = 500

type AttendanceHandler struct {
	db      AttendanceStore
	objects ObjectGetter
}

func NewAttendanceHandler(db AttendanceStore, objects ObjectGetter) *AttendanceHandler {
	return &AttendanceHandler{db: db, objects: objects}
}

// List handles GET /v1/attendance.
func (h *AttendanceHandler) List(c *gin.Context) {
	q, err := parseAttendanceQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, total, err := h.db.QueryAttendance(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AttendanceResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toAttendanceResponse(rec))
	}

	c.JSON(http.StatusOK, dto.AttendanceListResponse{
		Records: resp,
		Total:   total,
	})
}

// Export handles GET /v1/attendance/export and streams every matching record as CSV.
func (h *AttendanceHandler) Export(c *gin.Context) {
	q, err := parseAttendanceQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q.Limit = exportPageSize
	q.Offset = 0

	ctx := c.Request.Context()

	// fetch the first page before committing to a 200
	records, total, err := h.db.QueryAttendance(ctx, q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("attendance-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "identity_id", "identity_name", "timestamp", "status"})

	written := 0
	for {
		for _, rec := range records {
			_ = w.Write([]string{
				rec.ID.String(),
				rec.IdentityID.String(),
				rec.IdentityName,
				rec.Timestamp.UTC().Format(time.RFC3339),
				string(rec.Status),
			})
		}
		written += len(records)
		if len(records) < exportPageSize || written >= total {
			break
		}

		q.Offset = written
		records, _, err = h.db.QueryAttendance(ctx, q)
		if err != nil {
			slog.Error("attendance export aborted", "error", err, "written", written)
			break
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		slog.Warn("attendance export write failed", "error", err)
	}
}

// Snapshot handles GET /v1/attendance/:id/snapshot.
func (h *AttendanceHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attendance id"})
		return
	}

	rec, err := h.db.GetAttendance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attendance record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := h.objects.GetObject(c.Request.Context(), rec.SnapshotKey())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func parseAttendanceQuery(c *gin.Context) (models.AttendanceQuery, error) {
	var form dto.AttendanceQuery
	if err := c.ShouldBindQuery(&form); err != nil {
		return models.AttendanceQuery{}, fmt.Errorf("invalid query: %w", err)
	}

	q := models.AttendanceQuery{Limit: form.Limit, Offset: form.Offset}
	if form.From != "" {
		t, err := time.Parse(time.RFC3339, form.From)
		if err != nil {
			return q, fmt.Errorf("invalid from: %w", err)
		}
		q.From = &t
	}
	if form.To != "" {
		t, err := time.Parse(time.RFC3339, form.To)
		if err != nil {
			return q, fmt.Errorf("invalid to: %w", err)
		}
		q.To = &t
	}
	if form.IdentityID != "" {
		id, err := uuid.Parse(form.IdentityID)
		if err != nil {
			return q, fmt.Errorf("invalid identity_id: %w", err)
		}
		q.IdentityID = &id
	}
	return q, nil
}

func toAttendanceResponse(rec models.AttendanceRecord) dto.AttendanceResponse {
	r := dto.NewAttendanceResponse(rec.ID, rec.IdentityID, rec.IdentityName, rec.Timestamp, string(rec.Status))
	r.SnapshotURL = "/v1/attendance/" + rec.ID.String() + "/snapshot"
	return r
}
