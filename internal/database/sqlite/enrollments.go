package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const enrollmentColumns = `id, code, full_name, vector_json, photo_ref, active, created_at_ms, updated_at_ms, deactivated_at_ms`

// EnrollmentStore is the SQLite implementation of database.EnrollmentWriter.
type EnrollmentStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewEnrollmentStore(db *sql.DB) *EnrollmentStore {
	return &EnrollmentStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (database.Enrollment, error) {
	var (
		e             database.Enrollment
		vectorJSON    string
		active        int
		createdMs     int64
		updatedMs     int64
		deactivatedMs sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Code, &e.FullName, &vectorJSON, &e.PhotoRef, &active, &createdMs, &updatedMs, &deactivatedMs); err != nil {
		return database.Enrollment{}, err
	}
	if err := json.Unmarshal([]byte(vectorJSON), &e.Vector); err != nil {
		return database.Enrollment{}, fmt.Errorf("decode vector of %s: %w", e.ID, err)
	}
	e.Active = active == 1
	e.CreatedAt = fromMillis(createdMs)
	e.UpdatedAt = fromMillis(updatedMs)
	if deactivatedMs.Valid {
		t := fromMillis(deactivatedMs.Int64)
		e.DeactivatedAt = &t
	}
	return e, nil
}

func (s *EnrollmentStore) ListActive(ctx context.Context) ([]database.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+enrollmentColumns+`
FROM enrollments
WHERE active = 1
ORDER BY created_at_ms, id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListActive query: %w", err)
	}
	defer rows.Close()

	var out []database.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActive rows: %w", err)
	}
	return out, nil
}

func (s *EnrollmentStore) Get(ctx context.Context, id string) (*database.Enrollment, error) {
	return s.getBy(ctx, "id", id)
}

func (s *EnrollmentStore) GetByCode(ctx context.Context, code string) (*database.Enrollment, error) {
	return s.getBy(ctx, "code", code)
}

func (s *EnrollmentStore) getBy(ctx context.Context, column, value string) (*database.Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE `+column+` = ?;`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment by %s: %w", column, err)
	}
	return &e, nil
}

func (s *EnrollmentStore) GetVector(ctx context.Context, id string) (biometric.Vector, error) {
	var vectorJSON string
	err := s.db.QueryRowContext(ctx, `SELECT vector_json FROM enrollments WHERE id = ?;`, id).Scan(&vectorJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetVector query: %w", err)
	}
	var v biometric.Vector
	if err := json.Unmarshal([]byte(vectorJSON), &v); err != nil {
		return nil, fmt.Errorf("decode vector of %s: %w", id, err)
	}
	return v, nil
}

func (s *EnrollmentStore) Upsert(ctx context.Context, e database.Enrollment) (database.Enrollment, error) {
	if len(e.Vector) == 0 {
		return database.Enrollment{}, biometric.ErrEmptyVector
	}
	vectorJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return database.Enrollment{}, fmt.Errorf("encode vector: %w", err)
	}
	nowMs := toMillis(s.now())

	saved, err := scanEnrollment(s.db.QueryRowContext(ctx, `
INSERT INTO enrollments (id, code, full_name, vector_json, dim, photo_ref, active, created_at_ms, updated_at_ms, deactivated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, NULL)
ON CONFLICT (code) DO UPDATE SET
  full_name = excluded.full_name,
  vector_json = excluded.vector_json,
  dim = excluded.dim,
  photo_ref = excluded.photo_ref,
  active = 1,
  deactivated_at_ms = NULL,
  updated_at_ms = excluded.updated_at_ms
RETURNING `+enrollmentColumns+`;
`,
		uuid.NewString(), e.Code, e.FullName, string(vectorJSON), len(e.Vector), e.PhotoRef, nowMs, nowMs,
	))
	if err != nil {
		return database.Enrollment{}, fmt.Errorf("Upsert enrollment: %w", err)
	}
	return saved, nil
}

func (s *EnrollmentStore) Deactivate(ctx context.Context, id string) error {
	nowMs := toMillis(s.now())
	res, err := s.db.ExecContext(ctx, `
UPDATE enrollments
SET active = 0,
    deactivated_at_ms = COALESCE(deactivated_at_ms, ?),
    updated_at_ms = ?
WHERE id = ?;
`, nowMs, nowMs, id)
	if err != nil {
		return fmt.Errorf("Deactivate update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate rows: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

var _ database.EnrollmentWriter = (*EnrollmentStore)(nil)
