package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint failure.
const uniqueViolation = "23505"

const eventSelect = `
	SELECT ev.id, ev.subject_id, ev.kind, ev.occurred_at, ev.distance, ev.evidence_ref, en.code, en.full_name
	FROM attendance_events ev
	JOIN enrollments en ON en.id = ev.subject_id
`

// EventRepository provides PostgreSQL-backed attendance event storage
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL event repository
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func scanEvent(row rowScanner) (database.Event, error) {
	var ev database.Event
	var kind string
	if err := row.Scan(
		&ev.ID,
		&ev.SubjectID,
		&kind,
		&ev.OccurredAt,
		&ev.Distance,
		&ev.EvidenceRef,
		&ev.SubjectCode,
		&ev.SubjectName,
	); err != nil {
		return database.Event{}, err
	}
	k, err := database.ParseEventKind(kind)
	if err != nil {
		return database.Event{}, err
	}
	ev.Kind = k
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, nil
}

// LatestFor returns the latest event of a subject, or nil if there is none
func (r *EventRepository) LatestFor(ctx context.Context, subjectID string) (*database.Event, error) {
	if _, err := uuid.Parse(subjectID); err != nil {
		return nil, nil
	}

	ev, err := scanEvent(r.pool.QueryRow(ctx, eventSelect+`
		WHERE ev.subject_id = $1
		ORDER BY ev.occurred_at DESC, ev.seq DESC
		LIMIT 1
	`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest event: %w", err)
	}
	return &ev, nil
}

// Append inserts ev if expectedPrevID is still the subject's latest event.
// The enrollment row is locked for the duration of the transaction so that
// concurrent appends for one subject are serialized.
func (r *EventRepository) Append(ctx context.Context, ev database.Event, expectedPrevID string) (database.Event, error) {
	if !ev.Kind.Valid() {
		return database.Event{}, fmt.Errorf("append event: invalid kind %s", ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return database.Event{}, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT code, full_name FROM enrollments WHERE id = $1 FOR UPDATE`, ev.SubjectID,
	).Scan(&ev.SubjectCode, &ev.SubjectName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Event{}, database.ErrNotFound
		}
		return database.Event{}, fmt.Errorf("lock enrollment: %w", err)
	}

	var currentID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM attendance_events
		WHERE subject_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, ev.SubjectID).Scan(&currentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return database.Event{}, fmt.Errorf("query latest event: %w", err)
	}
	if currentID.String != expectedPrevID {
		return database.Event{}, database.ErrConflict
	}

	var prev sql.NullString
	if expectedPrevID != "" {
		prev = sql.NullString{String: expectedPrevID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_events (id, subject_id, prev_event_id, kind, occurred_at, distance, evidence_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.SubjectID, prev, ev.Kind.String(), ev.OccurredAt.UTC(), ev.Distance, ev.EvidenceRef)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return database.Event{}, database.ErrConflict
		}
		return database.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return database.Event{}, fmt.Errorf("commit event: %w", err)
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, nil
}

// History returns up to limit events of a subject, newest first
func (r *EventRepository) History(ctx context.Context, subjectID string, limit int) ([]database.Event, error) {
	return r.InRange(ctx, database.EventQuery{SubjectID: subjectID, Limit: limit})
}

// InRange returns events matching the query, newest first
func (r *EventRepository) InRange(ctx context.Context, q database.EventQuery) ([]database.Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.SubjectID != "" {
		if _, err := uuid.Parse(q.SubjectID); err != nil {
			return nil, nil
		}
		where = append(where, "ev.subject_id = "+arg(q.SubjectID))
	}
	if !q.Start.IsZero() {
		where = append(where, "ev.occurred_at >= "+arg(q.Start.UTC()))
	}
	if !q.End.IsZero() {
		where = append(where, "ev.occurred_at < "+arg(q.End.UTC()))
	}

	query := eventSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ev.occurred_at DESC, ev.seq DESC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []database.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Verify interface compliance.
var _ database.EventWriter = (*EventRepository)(nil)
