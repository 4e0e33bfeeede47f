package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	DefaultCooldown       = 60 * time.Second
	DefaultSessionCeiling = 16 * time.Hour
)

// ErrUnknownKind is returned when the previous event has a kind the decider
// does not know how to follow.
var ErrUnknownKind = errors.New("unknown event kind")

// Rules are the two time guards of the attendance state machine.
type Rules struct {
	// Cooldown suppresses repeated identifications of a subject.
	Cooldown time.Duration
	// SessionCeiling is the age after which an open arrival is abandoned.
	SessionCeiling time.Duration
}

// DefaultRules returns a 60 second cooldown and a 16 hour session ceiling.
func DefaultRules() Rules {
	return Rules{Cooldown: DefaultCooldown, SessionCeiling: DefaultSessionCeiling}
}

// Validate checks that both guards are positive.
func (r Rules) Validate() error {
	if r.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %s", r.Cooldown)
	}
	if r.SessionCeiling <= 0 {
		return fmt.Errorf("session ceiling must be positive, got %s", r.SessionCeiling)
	}
	return nil
}

// Decision is the result of Decide: either a suppression pointing at the
// previous event, or the kind of the new event to record.
type Decision struct {
	Suppressed bool
	Kind       database.EventKind // set when not suppressed
	Last       *database.Event    // the previous event, nil if none
}

// Decide evaluates, in order: no prior event, cooldown, session toggle.
// A now earlier than the previous event (clock skew) falls inside the
// cooldown and is suppressed.
func (r Rules) Decide(last *database.Event, now time.Time) (Decision, error) {
	if last == nil {
		return Decision{Kind: database.Arrival}, nil
	}

	elapsed := now.Sub(last.OccurredAt)
	if elapsed < r.Cooldown {
		return Decision{Suppressed: true, Last: last}, nil
	}

	switch last.Kind {
	case database.Arrival:
		if elapsed < r.SessionCeiling {
			return Decision{Kind: database.Departure, Last: last}, nil
		}
		return Decision{Kind: database.Arrival, Last: last}, nil
	case database.Departure:
		return Decision{Kind: database.Arrival, Last: last}, nil
	case database.KindUnknown:
	}
	return Decision{}, fmt.Errorf("%w: event %s has kind %s", ErrUnknownKind, last.ID, last.Kind)
}
