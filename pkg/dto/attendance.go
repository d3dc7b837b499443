package dto

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceResponse struct {
	ID           uuid.UUID `json:"id"`
	IdentityID   uuid.UUID `json:"identity_id"`
	IdentityName string    `json:"identity_name"`
	Timestamp    string    `json:"timestamp"`
	Status       string    `json:"status"`
	SnapshotURL  string    `json:"snapshot_url,omitempty"`
}

type AttendanceListResponse struct {
	Records []AttendanceResponse `json:"records"`
	Total   int                  `json:"total"`
}

type AttendanceQuery struct {
	IdentityID string `form:"identity_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// WSEvent is a WebSocket message for real-time attendance delivery.
type WSEvent struct {
	Type string             `json:"type"` // attendance_recorded
	Data AttendanceResponse `json:"data"`
}

const WSEventAttendanceRecorded = "attendance_recorded"

func NewAttendanceResponse(id, identityID uuid.UUID, name string, ts time.Time, status string) AttendanceResponse {
	return AttendanceResponse{
		ID:           id,
		IdentityID:   identityID,
		IdentityName: name,
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		Status:       status,
	}
}
