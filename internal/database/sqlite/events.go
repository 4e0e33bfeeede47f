package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const eventSelect = `
SELECT ev.id, ev.subject_id, ev.kind, ev.occurred_at_ms, ev.distance, ev.evidence_ref, en.code, en.full_name
FROM attendance_events ev
JOIN enrollments en ON en.id = ev.subject_id
`

// EventStore is the SQLite implementation of database.EventWriter.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(row rowScanner) (database.Event, error) {
	var (
		ev         database.Event
		kind       string
		occurredMs int64
	)
	if err := row.Scan(&ev.ID, &ev.SubjectID, &kind, &occurredMs, &ev.Distance, &ev.EvidenceRef, &ev.SubjectCode, &ev.SubjectName); err != nil {
		return database.Event{}, err
	}
	k, err := database.ParseEventKind(kind)
	if err != nil {
		return database.Event{}, err
	}
	ev.Kind = k
	ev.OccurredAt = fromMillis(occurredMs)
	return ev, nil
}

func (s *EventStore) LatestFor(ctx context.Context, subjectID string) (*database.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, eventSelect+`
WHERE ev.subject_id = ?
ORDER BY ev.occurred_at_ms DESC, ev.seq DESC
LIMIT 1;
`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestFor query: %w", err)
	}
	return &ev, nil
}

// Append checks the precondition and inserts in one transaction. Timestamps
// are stored with millisecond precision; the returned event is truncated to match.
func (s *EventStore) Append(ctx context.Context, ev database.Event, expectedPrevID string) (database.Event, error) {
	if !ev.Kind.Valid() {
		return database.Event{}, fmt.Errorf("Append: invalid kind %s", ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	occurredMs := toMillis(ev.OccurredAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return database.Event{}, fmt.Errorf("Append begin: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT code, full_name FROM enrollments WHERE id = ?;`, ev.SubjectID).
		Scan(&ev.SubjectCode, &ev.SubjectName)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Event{}, database.ErrNotFound
	}
	if err != nil {
		return database.Event{}, fmt.Errorf("Append resolve subject: %w", err)
	}

	var currentID string
	err = tx.QueryRowContext(ctx, `
SELECT id FROM attendance_events
WHERE subject_id = ?
ORDER BY occurred_at_ms DESC, seq DESC
LIMIT 1;
`, ev.SubjectID).Scan(&currentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return database.Event{}, fmt.Errorf("Append latest: %w", err)
	}
	if currentID != expectedPrevID {
		return database.Event{}, database.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events (id, subject_id, prev_event_id, kind, occurred_at_ms, distance, evidence_ref)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, ev.ID, ev.SubjectID, expectedPrevID, ev.Kind.String(), occurredMs, ev.Distance, ev.EvidenceRef); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return database.Event{}, database.ErrConflict
		}
		return database.Event{}, fmt.Errorf("Append insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return database.Event{}, fmt.Errorf("Append commit: %w", err)
	}
	ev.OccurredAt = fromMillis(occurredMs)
	return ev, nil
}

func (s *EventStore) History(ctx context.Context, subjectID string, limit int) ([]database.Event, error) {
	return s.InRange(ctx, database.EventQuery{SubjectID: subjectID, Limit: limit})
}

func (s *EventStore) InRange(ctx context.Context, q database.EventQuery) ([]database.Event, error) {
	var (
		where []string
		args  []any
	)
	if q.SubjectID != "" {
		where = append(where, "ev.subject_id = ?")
		args = append(args, q.SubjectID)
	}
	if !q.Start.IsZero() {
		where = append(where, "ev.occurred_at_ms >= ?")
		args = append(args, toMillis(q.Start))
	}
	if !q.End.IsZero() {
		where = append(where, "ev.occurred_at_ms < ?")
		args = append(args, toMillis(q.End))
	}

	query := eventSelect
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	query += "ORDER BY ev.occurred_at_ms DESC, ev.seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("InRange query: %w", err)
	}
	defer rows.Close()

	var out []database.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("InRange scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("InRange rows: %w", err)
	}
	return out, nil
}

var _ database.EventWriter = (*EventStore)(nil)
