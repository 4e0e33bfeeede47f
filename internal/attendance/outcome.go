package attendance

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Status is the kind of identification outcome.
type Status uint8

const (
	StatusNoFaceDetected Status = iota + 1
	StatusNotRecognized
	StatusSuppressed
	StatusRecorded
)

func (s Status) String() string {
	switch s {
	case StatusNoFaceDetected:
		return "no_face_detected"
	case StatusNotRecognized:
		return "not_recognized"
	case StatusSuppressed:
		return "suppressed"
	case StatusRecorded:
		return "recorded"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the result of processing one probe.
//
// For StatusRecorded, Event is the newly committed event and Distance is the
// distance to the subject's stored vector. For StatusSuppressed, Event is the
// earlier event that caused the suppression and Distance is the match distance
// of the suppressed probe.
type Outcome struct {
	Status     Status
	SubjectID  string
	Kind       database.EventKind
	Distance   float64
	OccurredAt time.Time
	Event      *database.Event
}

// Success reports whether the outcome is shown as a success to the person at
// the terminal. Suppressed and Recorded both are.
func (o Outcome) Success() bool {
	return o.Status == StatusRecorded || o.Status == StatusSuppressed
}

func noFace() Outcome {
	return Outcome{Status: StatusNoFaceDetected}
}

func notRecognized() Outcome {
	return Outcome{Status: StatusNotRecognized}
}

func suppressed(subjectID string, distance float64, last *database.Event) Outcome {
	return Outcome{
		Status:     StatusSuppressed,
		SubjectID:  subjectID,
		Kind:       last.Kind,
		Distance:   distance,
		OccurredAt: last.OccurredAt,
		Event:      last,
	}
}

func recorded(ev database.Event) Outcome {
	return Outcome{
		Status:     StatusRecorded,
		SubjectID:  ev.SubjectID,
		Kind:       ev.Kind,
		Distance:   ev.Distance,
		OccurredAt: ev.OccurredAt,
		Event:      &ev,
	}
}
