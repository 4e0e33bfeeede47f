package database

import (
	"context"

	"github.com/kozaktomas/face-attendance/internal/biometric"
)

// EnrollmentReader provides read-only access to enrollments
type EnrollmentReader interface {
	// ListActive returns every active enrollment ordered by creation time.
	ListActive(ctx context.Context) ([]Enrollment, error)
	// Get retrieves an enrollment by ID, returns ErrNotFound if missing
	Get(ctx context.Context, id string) (*Enrollment, error)
	// GetByCode retrieves an enrollment by its external subject code, returns ErrNotFound if missing
	GetByCode(ctx context.Context, code string) (*Enrollment, error)
	// GetVector returns the stored vector of an enrollment
	GetVector(ctx context.Context, id string) (biometric.Vector, error)
}

// EnrollmentWriter provides write access to enrollments
type EnrollmentWriter interface {
	EnrollmentReader

	// Upsert creates the enrollment for e.Code, or replaces the name, vector and
	// photo of the existing one and reactivates it. ID and CreatedAt of an
	// existing record are preserved.
	Upsert(ctx context.Context, e Enrollment) (Enrollment, error)

	// Deactivate soft-deletes an enrollment. Returns ErrNotFound if missing.
	Deactivate(ctx context.Context, id string) error
}

// EventReader provides read-only access to presence events
type EventReader interface {
	// LatestFor returns the single latest event of a subject, or nil if there is none.
	LatestFor(ctx context.Context, subjectID string) (*Event, error)
	// History returns up to limit events of a subject, newest first.
	History(ctx context.Context, subjectID string, limit int) ([]Event, error)
	// InRange returns events matching the query, newest first.
	InRange(ctx context.Context, q EventQuery) ([]Event, error)
}

// EventWriter provides append access to presence events
type EventWriter interface {
	EventReader

	// Append commits ev atomically, but only if the subject's latest event is
	// still expectedPrevID ("" meaning the subject has no events). Otherwise it
	// writes nothing and returns ErrConflict.
	Append(ctx context.Context, ev Event, expectedPrevID string) (Event, error)
}
