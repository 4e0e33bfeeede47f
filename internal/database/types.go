package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/biometric"
)

// EventKind is the type of a presence event.
type EventKind uint8

const (
	// KindUnknown is the zero value and is never stored.
	KindUnknown EventKind = iota
	// Arrival opens a presence session.
	Arrival
	// Departure closes a presence session.
	Departure
)

// String returns the storage name of the kind.
func (k EventKind) String() string {
	switch k {
	case Arrival:
		return "arrival"
	case Departure:
		return "departure"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Valid reports whether k is Arrival or Departure.
func (k EventKind) Valid() bool {
	return k == Arrival || k == Departure
}

// ParseEventKind parses a stored kind name.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arrival":
		return Arrival, nil
	case "departure":
		return Departure, nil
	}
	return KindUnknown, fmt.Errorf("unknown event kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	parsed, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Enrollment is the stored reference vector and metadata of a known subject.
// At most one record exists per Code; re-enrollment replaces the vector.
type Enrollment struct {
	ID            string
	Code          string
	FullName      string
	Vector        biometric.Vector
	PhotoRef      string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeactivatedAt *time.Time // set when soft-deleted, cleared on re-enrollment
}

// Event is a committed presence event. Events are append-only.
type Event struct {
	ID          string
	SubjectID   string
	Kind        EventKind
	OccurredAt  time.Time // UTC
	Distance    float64
	EvidenceRef string

	// Populated by read queries that join the enrollment.
	SubjectCode string
	SubjectName string
}

// EventQuery selects events in [Start, End), newest first.
type EventQuery struct {
	Start     time.Time
	End       time.Time
	SubjectID string // optional
	Limit     int    // 0 means no limit
}
