// Package mock provides in-memory implementations of database interfaces for
// tests and the serve --memory development mode.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// MockEnrollmentStore is a mock implementation of database.EnrollmentWriter
type MockEnrollmentStore struct {
	mu      sync.RWMutex
	records map[string]*database.Enrollment
	byCode  map[string]string

	// Now returns the timestamp used for created/updated/deactivated fields.
	Now func() time.Time

	// Error injection
	ListActiveError error
	GetError        error
	GetVectorError  error
	UpsertError     error
	DeactivateError error

	// ListActiveCalls counts ListActive invocations.
	ListActiveCalls int
}

// NewMockEnrollmentStore creates a new mock enrollment store
func NewMockEnrollmentStore() *MockEnrollmentStore {
	return &MockEnrollmentStore{
		records: make(map[string]*database.Enrollment),
		byCode:  make(map[string]string),
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddEnrollment stores a record as-is, generating an ID if it is empty
func (m *MockEnrollmentStore) AddEnrollment(e database.Enrollment) database.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.Now()
	}
	e.Vector = e.Vector.Clone()
	m.records[e.ID] = &e
	m.byCode[e.Code] = e.ID
	return e
}

// ListActive returns all active enrollments ordered by creation time
func (m *MockEnrollmentStore) ListActive(ctx context.Context) ([]database.Enrollment, error) {
	m.mu.Lock()
	m.ListActiveCalls++
	m.mu.Unlock()
	if m.ListActiveError != nil {
		return nil, m.ListActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Enrollment
	for _, e := range m.records {
		if e.Active {
			out = append(out, copyEnrollment(e))
		}
	}
	slices.SortFunc(out, func(a, b database.Enrollment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Get retrieves an enrollment by ID
func (m *MockEnrollmentStore) Get(ctx context.Context, id string) (*database.Enrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := copyEnrollment(e)
	return &c, nil
}

// GetByCode retrieves an enrollment by subject code
func (m *MockEnrollmentStore) GetByCode(ctx context.Context, code string) (*database.Enrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	id, ok := m.byCode[code]
	m.mu.RUnlock()
	if !ok {
		return nil, database.ErrNotFound
	}
	return m.Get(ctx, id)
}

// GetVector returns the stored vector of an enrollment
func (m *MockEnrollmentStore) GetVector(ctx context.Context, id string) (biometric.Vector, error) {
	if m.GetVectorError != nil {
		return nil, m.GetVectorError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.records[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return e.Vector.Clone(), nil
}

// Upsert creates or replaces the enrollment for e.Code
func (m *MockEnrollmentStore) Upsert(ctx context.Context, e database.Enrollment) (database.Enrollment, error) {
	if m.UpsertError != nil {
		return database.Enrollment{}, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if id, ok := m.byCode[e.Code]; ok {
		existing := m.records[id]
		existing.FullName = e.FullName
		existing.Vector = e.Vector.Clone()
		existing.PhotoRef = e.PhotoRef
		existing.Active = true
		existing.DeactivatedAt = nil
		existing.UpdatedAt = now
		return copyEnrollment(existing), nil
	}

	rec := database.Enrollment{
		ID:        uuid.NewString(),
		Code:      e.Code,
		FullName:  e.FullName,
		Vector:    e.Vector.Clone(),
		PhotoRef:  e.PhotoRef,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[rec.ID] = &rec
	m.byCode[rec.Code] = rec.ID
	return copyEnrollment(&rec), nil
}

// Deactivate soft-deletes an enrollment
func (m *MockEnrollmentStore) Deactivate(ctx context.Context, id string) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok {
		return database.ErrNotFound
	}
	now := m.Now()
	e.Active = false
	e.DeactivatedAt = &now
	e.UpdatedAt = now
	return nil
}

func copyEnrollment(e *database.Enrollment) database.Enrollment {
	c := *e
	c.Vector = e.Vector.Clone()
	if e.DeactivatedAt != nil {
		t := *e.DeactivatedAt
		c.DeactivatedAt = &t
	}
	return c
}

// MockEventStore is a mock implementation of database.EventWriter
type MockEventStore struct {
	mu     sync.RWMutex
	events []database.Event

	// Enrollments, when set, is used to fill SubjectCode/SubjectName on reads.
	Enrollments *MockEnrollmentStore

	// Error injection
	LatestError  error
	AppendError  error
	HistoryError error
	RangeError   error

	// AppendHook runs inside Append before the precondition check, with the
	// store unlocked. Tests use it to interleave concurrent writers.
	AppendHook func()

	// AppendCalls counts Append invocations, including failed ones.
	AppendCalls int
}

// NewMockEventStore creates a new mock event store
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{}
}

// AddEvent appends an event without any precondition, generating an ID if empty
func (m *MockEventStore) AddEvent(ev database.Event) database.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, ev)
	return ev
}

// Events returns a copy of all stored events in append order
func (m *MockEventStore) Events() []database.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Event, len(m.events))
	copy(out, m.events)
	return out
}

// LatestFor returns the latest event of a subject
func (m *MockEventStore) LatestFor(ctx context.Context, subjectID string) (*database.Event, error) {
	if m.LatestError != nil {
		return nil, m.LatestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := m.latestLocked(subjectID)
	if latest == nil {
		return nil, nil
	}
	ev := m.decorate(*latest)
	return &ev, nil
}

// latestLocked returns the newest event by timestamp; later appends win ties.
func (m *MockEventStore) latestLocked(subjectID string) *database.Event {
	var latest *database.Event
	for i := range m.events {
		ev := &m.events[i]
		if ev.SubjectID != subjectID {
			continue
		}
		if latest == nil || !ev.OccurredAt.Before(latest.OccurredAt) {
			latest = ev
		}
	}
	return latest
}

// Append stores ev if expectedPrevID is still the subject's latest event
func (m *MockEventStore) Append(ctx context.Context, ev database.Event, expectedPrevID string) (database.Event, error) {
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()

	if m.AppendError != nil {
		return database.Event{}, m.AppendError
	}
	if err := ctx.Err(); err != nil {
		return database.Event{}, err
	}
	if m.AppendHook != nil {
		m.AppendHook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	currentID := ""
	if latest := m.latestLocked(ev.SubjectID); latest != nil {
		currentID = latest.ID
	}
	if currentID != expectedPrevID {
		return database.Event{}, database.ErrConflict
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, ev)
	return m.decorate(ev), nil
}

// History returns up to limit events of a subject, newest first
func (m *MockEventStore) History(ctx context.Context, subjectID string, limit int) ([]database.Event, error) {
	if m.HistoryError != nil {
		return nil, m.HistoryError
	}
	return m.query(database.EventQuery{SubjectID: subjectID, Limit: limit}), nil
}

// InRange returns events in [Start, End), newest first
func (m *MockEventStore) InRange(ctx context.Context, q database.EventQuery) ([]database.Event, error) {
	if m.RangeError != nil {
		return nil, m.RangeError
	}
	return m.query(q), nil
}

func (m *MockEventStore) query(q database.EventQuery) []database.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Event
	for _, ev := range m.events {
		if q.SubjectID != "" && ev.SubjectID != q.SubjectID {
			continue
		}
		if !q.Start.IsZero() && ev.OccurredAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !ev.OccurredAt.Before(q.End) {
			continue
		}
		out = append(out, m.decorate(ev))
	}
	slices.SortStableFunc(out, func(a, b database.Event) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (m *MockEventStore) decorate(ev database.Event) database.Event {
	if m.Enrollments == nil {
		return ev
	}
	m.Enrollments.mu.RLock()
	defer m.Enrollments.mu.RUnlock()
	if e, ok := m.Enrollments.records[ev.SubjectID]; ok {
		ev.SubjectCode = e.Code
		ev.SubjectName = e.FullName
	}
	return ev
}

// Verify interface compliance.
var _ database.EnrollmentWriter = (*MockEnrollmentStore)(nil)
var _ database.EventWriter = (*MockEventStore)(nil)
