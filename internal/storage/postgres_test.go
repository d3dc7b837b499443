package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStoreWithDB(mock), mock
}

func TestPostgresStore_ListApproved(t *testing.T) {
	store, mock := newMockStore(t)

	aliceID, bobID := uuid.New(), uuid.New()
	now := time.Now()
	aliceVec := pgvector.NewVector([]float32{0.1, 0.2, 0.3})
	bobVec := pgvector.NewVector([]float32{0.4, 0.5, 0.6})

	rows := pgxmock.NewRows([]string{"id", "name", "role", "embedding", "approved", "created_at", "updated_at"}).
		AddRow(aliceID, "Alice", "staff", &aliceVec, true, now, now).
		AddRow(bobID, "Bob", "", &bobVec, true, now, now)

	mock.ExpectQuery(`SELECT id, name, role, embedding, approved, created_at, updated_at FROM identities WHERE approved = TRUE AND embedding IS NOT NULL ORDER BY created_at, id`).
		WillReturnRows(rows)

	got, err := store.ListApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, aliceID, got[0].ID)
	assert.Equal(t, "Alice", got[0].Name)
	assert.Equal(t, "staff", got[0].Role)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got[0].Embedding)
	assert.True(t, got[0].Matchable())
	assert.Equal(t, bobID, got[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListApproved_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, name, role, embedding`).
		WillReturnError(errors.New("connection refused"))

	got, err := store.ListApproved(context.Background())
	require.Error(t, err)
	assert.Nil(t, got, "an error must never look like an empty gallery")
	assert.Contains(t, err.Error(), "list approved identities")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAttendance(t *testing.T) {
	ev := models.AttendanceEvent{
		ID:         uuid.New(),
		IdentityID: uuid.New(),
		Timestamp:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:     models.AttendanceStatusPresent,
	}

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		wantErr bool
	}{
		{
			name: "inserted",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO attendance \(id, identity_id, timestamp, status\) VALUES \(\$1, \$2, \$3, \$4\)`).
					WithArgs(ev.ID, ev.IdentityID, ev.Timestamp, "present").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "database error",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO attendance`).
					WithArgs(ev.ID, ev.IdentityID, ev.Timestamp, "present").
					WillReturnError(errors.New("disk full"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setup(mock)

			err := store.RecordAttendance(context.Background(), ev)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "record attendance")
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_QueryAttendance(t *testing.T) {
	store, mock := newMockStore(t)

	identityID := uuid.New()
	first, second := uuid.New(), uuid.New()
	t1 := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)
	from := t0.Add(-time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance a WHERE TRUE AND a.timestamp >= \$1 AND a.identity_id = \$2`).
		WithArgs(from, identityID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	rows := pgxmock.NewRows([]string{"id", "identity_id", "name", "timestamp", "status", "created_at"}).
		AddRow(first, identityID, "Alice", t1, "present", t1).
		AddRow(second, identityID, "Unknown", t0, "present", t0)

	mock.ExpectQuery(`ORDER BY a.timestamp DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(from, identityID, 50, 0).
		WillReturnRows(rows)

	got, total, err := store.QueryAttendance(context.Background(), models.AttendanceQuery{
		From:       &from,
		IdentityID: &identityID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, "Alice", got[0].IdentityName)
	assert.Equal(t, models.AttendanceStatusPresent, got[0].Status)
	assert.Equal(t, "Unknown", got[1].IdentityName)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryAttendance_ClampsLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance a WHERE TRUE`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(500, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "identity_id", "name", "timestamp", "status", "created_at"}))

	got, total, err := store.QueryAttendance(context.Background(), models.AttendanceQuery{Limit: 10000, Offset: -3})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAttendance_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`WHERE a.id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	got, err := store.GetAttendance(context.Background(), id)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIdentities_FilterApproved(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	id := uuid.New()
	approved := false

	mock.ExpectQuery(`FROM identities WHERE approved = \$1 ORDER BY created_at DESC`).
		WithArgs(false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "role", "approved", "created_at", "updated_at"}).
			AddRow(id, "Carol", "student", false, now, now))

	got, err := store.ListIdentities(context.Background(), &approved)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Carol", got[0].Name)
	assert.False(t, got[0].Approved)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApproveIdentity(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "approved", affected: 1},
		{name: "unknown identity", affected: 0, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			id := uuid.New()

			mock.ExpectExec(`UPDATE identities SET approved = TRUE`).
				WithArgs(id).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err := store.ApproveIdentity(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
