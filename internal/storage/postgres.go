package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// DB is the subset of pgxpool.Pool used by the store (also satisfied by pgxmock).
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

// NewPostgresStoreWithDB wraps an existing connection (used by tests).
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// --- Identities ---

// ListApproved returns every approved identity that has a stored embedding,
// in a stable order so gallery snapshot indexes are deterministic.
func (s *PostgresStore) ListApproved(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, role, embedding, approved, created_at, updated_at
		 FROM identities
		 WHERE approved = TRUE AND embedding IS NOT NULL
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list approved identities: %w", err)
	}
	defer rows.Close()

	identities := make([]models.Identity, 0)
	for rows.Next() {
		var (
			id  models.Identity
			vec *pgvector.Vector
		)
		if err := rows.Scan(&id.ID, &id.Name, &id.Role, &vec, &id.Approved, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if vec != nil {
			id.Embedding = vec.Slice()
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// ListIdentities returns identities without embeddings, optionally filtered by approval.
func (s *PostgresStore) ListIdentities(ctx context.Context, approved *bool) ([]models.Identity, error) {
	query := `SELECT id, name, role, approved, created_at, updated_at FROM identities`
	var args []interface{}
	if approved != nil {
		query += ` WHERE approved = $1`
		args = append(args, *approved)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]models.Identity, 0)
	for rows.Next() {
		var id models.Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.Role, &id.Approved, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, role, approved, created_at, updated_at FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.Role, &ident.Approved, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

// ApproveIdentity is the approval transition that makes an identity matchable.
func (s *PostgresStore) ApproveIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE identities SET approved = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("approve identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Attendance ---

// RecordAttendance persists one attendance event. It does not deduplicate;
// the frame pipeline calls it at most once per cooldown window per identity.
func (s *PostgresStore) RecordAttendance(ctx context.Context, ev models.AttendanceEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO attendance (id, identity_id, timestamp, status) VALUES ($1, $2, $3, $4)`,
		ev.ID, ev.IdentityID, ev.Timestamp, string(ev.Status))
	if err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	return nil
}

// QueryAttendance lists attendance records newest first together with the total
// number of rows matching the filter.
func (s *PostgresStore) QueryAttendance(ctx context.Context, q models.AttendanceQuery) ([]models.AttendanceRecord, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	baseWhere := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if q.From != nil {
		baseWhere += fmt.Sprintf(" AND a.timestamp >= $%d", argIdx)
		args = append(args, *q.From)
		argIdx++
	}
	if q.To != nil {
		baseWhere += fmt.Sprintf(" AND a.timestamp <= $%d", argIdx)
		args = append(args, *q.To)
		argIdx++
	}
	if q.IdentityID != nil {
		baseWhere += fmt.Sprintf(" AND a.identity_id = $%d", argIdx)
		args = append(args, *q.IdentityID)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM attendance a " + baseWhere
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT a.id, a.identity_id, COALESCE(i.name, 'Unknown'), a.timestamp, a.status, a.created_at
		 FROM attendance a LEFT JOIN identities i ON i.id = a.identity_id
		 %s ORDER BY a.timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	records := make([]models.AttendanceRecord, 0)
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, total, nil
}

func (s *PostgresStore) GetAttendance(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT a.id, a.identity_id, COALESCE(i.name, 'Unknown'), a.timestamp, a.status, a.created_at
		 FROM attendance a LEFT JOIN identities i ON i.id = a.identity_id
		 WHERE a.id = $1`, id)
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func scanAttendance(row pgx.Row) (models.AttendanceRecord, error) {
	var (
		rec    models.AttendanceRecord
		status string
	)
	if err := row.Scan(&rec.ID, &rec.IdentityID, &rec.IdentityName, &rec.Timestamp, &status, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan attendance: %w", err)
	}
	rec.Status = models.AttendanceStatus(status)
	return rec, nil
}
