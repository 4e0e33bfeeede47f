package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestRules_Decide(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	arrival := &database.Event{ID: "e1", Kind: database.Arrival, OccurredAt: t0}
	departure := &database.Event{ID: "e2", Kind: database.Departure, OccurredAt: t0}

	tests := []struct {
		name           string
		last           *database.Event
		now            time.Time
		wantSuppressed bool
		wantKind       database.EventKind
	}{
		{"no prior event", nil, t0, false, database.Arrival},
		{"arrival within cooldown", arrival, t0.Add(5 * time.Second), true, database.KindUnknown},
		{"departure within cooldown", departure, t0.Add(59 * time.Second), true, database.KindUnknown},
		{"clock skew before last event", arrival, t0.Add(-10 * time.Minute), true, database.KindUnknown},
		{"cooldown boundary is not suppressed", arrival, t0.Add(60 * time.Second), false, database.Departure},
		{"arrival then 30 minutes", arrival, t0.Add(30 * time.Minute), false, database.Departure},
		{"arrival just under ceiling", arrival, t0.Add(16*time.Hour - time.Second), false, database.Departure},
		{"arrival at ceiling resets session", arrival, t0.Add(16 * time.Hour), false, database.Arrival},
		{"arrival after 20 hours resets session", arrival, t0.Add(20 * time.Hour), false, database.Arrival},
		{"departure then later", departure, t0.Add(2 * time.Minute), false, database.Arrival},
		{"departure then days later", departure, t0.Add(72 * time.Hour), false, database.Arrival},
	}

	rules := DefaultRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := rules.Decide(tt.last, tt.now)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.Suppressed != tt.wantSuppressed {
				t.Fatalf("Suppressed = %v, want %v", d.Suppressed, tt.wantSuppressed)
			}
			if d.Suppressed {
				if d.Last != tt.last {
					t.Error("suppression must reference the previous event")
				}
				return
			}
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", d.Kind, tt.wantKind)
			}
		})
	}
}

func TestRules_DecideUnknownKind(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	last := &database.Event{ID: "bad", Kind: database.KindUnknown, OccurredAt: t0}

	_, err := DefaultRules().Decide(last, t0.Add(time.Hour))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	// Cooldown is evaluated first, so even an unknown kind is suppressed inside it.
	d, err := DefaultRules().Decide(last, t0.Add(time.Second))
	if err != nil || !d.Suppressed {
		t.Fatalf("expected suppression inside cooldown, got %+v, %v", d, err)
	}
}

func TestRules_CustomThresholds(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rules := Rules{Cooldown: 5 * time.Minute, SessionCeiling: time.Hour}
	arrival := &database.Event{ID: "e1", Kind: database.Arrival, OccurredAt: t0}

	if d, _ := rules.Decide(arrival, t0.Add(2*time.Minute)); !d.Suppressed {
		t.Error("expected suppression inside a 5 minute cooldown")
	}
	if d, _ := rules.Decide(arrival, t0.Add(30*time.Minute)); d.Kind != database.Departure {
		t.Errorf("expected departure, got %s", d.Kind)
	}
	if d, _ := rules.Decide(arrival, t0.Add(2*time.Hour)); d.Kind != database.Arrival {
		t.Errorf("expected session reset with a 1 hour ceiling, got %s", d.Kind)
	}
}

func TestRules_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rules   Rules
		wantErr bool
	}{
		{"defaults", DefaultRules(), false},
		{"zero cooldown", Rules{SessionCeiling: time.Hour}, true},
		{"negative ceiling", Rules{Cooldown: time.Minute, SessionCeiling: -time.Hour}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rules.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
