package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// HistoryFor returns the latest events of a subject, newest first. The limit
// defaults to database.DefaultHistoryLimit and is capped at database.MaxHistoryLimit.
func (e *Engine) HistoryFor(ctx context.Context, subjectID string, limit int) ([]database.Event, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidQuery)
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	events, err := e.events.History(sctx, subjectID, database.ClampHistoryLimit(limit))
	if err != nil {
		return nil, unavailable("fetch history", err)
	}
	return events, nil
}

// EventsInRange returns events in [start, end), optionally for one subject,
// newest first.
func (e *Engine) EventsInRange(ctx context.Context, start, end time.Time, subjectID string) ([]database.Event, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidQuery)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidQuery, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	events, err := e.events.InRange(sctx, database.EventQuery{
		Start:     start.UTC(),
		End:       end.UTC(),
		SubjectID: subjectID,
	})
	if err != nil {
		return nil, unavailable("fetch events", err)
	}
	return events, nil
}

// Today returns the events of the current local day in loc.
func (e *Engine) Today(ctx context.Context, loc *time.Location) ([]database.Event, error) {
	start, end := DayBounds(e.now(), loc)
	return e.EventsInRange(ctx, start, end, "")
}

// DayBounds returns the local midnight of t's day in loc and the next one.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
