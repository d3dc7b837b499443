package models

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// AttendanceEvent is created by the frame pipeline exactly once per cooldown
// window per identity and handed to the backing store.
type AttendanceEvent struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	IdentityID uuid.UUID        `json:"identity_id" db:"identity_id"`
	Timestamp  time.Time        `json:"timestamp" db:"timestamp"`
	Status     AttendanceStatus `json:"status" db:"status"`
}

// AttendanceRecord is a persisted event joined with the identity name.
type AttendanceRecord struct {
	AttendanceEvent
	IdentityName string    `json:"identity_name" db:"identity_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SnapshotKey is the object storage key of the face crop captured with the event.
func (e AttendanceEvent) SnapshotKey() string {
	return "attendance/" + e.ID.String() + ".jpg"
}

// AttendanceQuery filters the admin listing. Nil fields are not applied.
type AttendanceQuery struct {
	From       *time.Time
	To         *time.Time
	IdentityID *uuid.UUID
	Limit      int
	Offset     int
}
