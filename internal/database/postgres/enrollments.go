package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const enrollmentColumns = `id, code, full_name, vector, photo_ref, active, created_at, updated_at, deactivated_at`

// EnrollmentRepository provides PostgreSQL-backed enrollment storage
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (database.Enrollment, error) {
	var e database.Enrollment
	var vec pgvector.Vector
	var deactivatedAt sql.NullTime

	if err := row.Scan(
		&e.ID,
		&e.Code,
		&e.FullName,
		&vec,
		&e.PhotoRef,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
		&deactivatedAt,
	); err != nil {
		return database.Enrollment{}, err
	}

	e.Vector = biometric.Vector(vec.Slice())
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if deactivatedAt.Valid {
		t := deactivatedAt.Time.UTC()
		e.DeactivatedAt = &t
	}
	return e, nil
}

// ListActive returns all active enrollments ordered by creation time
func (r *EnrollmentRepository) ListActive(ctx context.Context) ([]database.Enrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active enrollments: %w", err)
	}
	defer rows.Close()

	var out []database.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

// Get retrieves an enrollment by ID
func (r *EnrollmentRepository) Get(ctx context.Context, id string) (*database.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrNotFound
	}
	return r.getBy(ctx, "id", id)
}

// GetByCode retrieves an enrollment by subject code
func (r *EnrollmentRepository) GetByCode(ctx context.Context, code string) (*database.Enrollment, error) {
	return r.getBy(ctx, "code", code)
}

func (r *EnrollmentRepository) getBy(ctx context.Context, column, value string) (*database.Enrollment, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE `+column+` = $1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return &e, nil
}

// GetVector returns the stored vector of an enrollment
func (r *EnrollmentRepository) GetVector(ctx context.Context, id string) (biometric.Vector, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrNotFound
	}

	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `SELECT vector FROM enrollments WHERE id = $1`, id).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment vector: %w", err)
	}
	return biometric.Vector(vec.Slice()), nil
}

// Upsert creates the enrollment for e.Code or replaces and reactivates the existing one
func (r *EnrollmentRepository) Upsert(ctx context.Context, e database.Enrollment) (database.Enrollment, error) {
	if len(e.Vector) == 0 {
		return database.Enrollment{}, biometric.ErrEmptyVector
	}

	query := `
		INSERT INTO enrollments (id, code, full_name, vector, dim, photo_ref, active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW(), NULL)
		ON CONFLICT (code) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			vector = EXCLUDED.vector,
			dim = EXCLUDED.dim,
			photo_ref = EXCLUDED.photo_ref,
			active = TRUE,
			deactivated_at = NULL,
			updated_at = NOW()
		RETURNING ` + enrollmentColumns

	saved, err := scanEnrollment(r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		e.Code,
		e.FullName,
		pgvector.NewVector([]float32(e.Vector)),
		len(e.Vector),
		e.PhotoRef,
	))
	if err != nil {
		return database.Enrollment{}, fmt.Errorf("upsert enrollment: %w", err)
	}
	return saved, nil
}

// Deactivate soft-deletes an enrollment
func (r *EnrollmentRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return database.ErrNotFound
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE enrollments
		SET active = FALSE,
			deactivated_at = COALESCE(deactivated_at, NOW()),
			updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate enrollment: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Verify interface compliance.
var _ database.EnrollmentWriter = (*EnrollmentRepository)(nil)
