package cmd

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"0.1,0.2,0.3", 3, false},
		{" -1 , 2.5e-1 ", 2, false},
		{"1", 1, false},
		{"1,,2", 0, true},
		{"a,b", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := parseVector(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVector(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && v.Dim() != tt.want {
				t.Errorf("expected %d components, got %d", tt.want, v.Dim())
			}
		})
	}
}

func TestReadImportRows(t *testing.T) {
	input := `code,full_name,image
EMP-001,"Díaz, Ana María",photos/ana.jpg
EMP-002, Bo Li ,/abs/bo.png
EMP-003,Eva Malá,
`
	rows, err := readImportRows(strings.NewReader(input), "/data")
	if err != nil {
		t.Fatalf("readImportRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].code != "EMP-001" || rows[0].fullName != "Díaz, Ana María" {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[0].image != filepath.Join("/data", "photos/ana.jpg") {
		t.Errorf("expected relative image resolved against the CSV dir, got %s", rows[0].image)
	}
	if rows[0].line != 2 {
		t.Errorf("expected line 2, got %d", rows[0].line)
	}
	if rows[1].fullName != "Bo Li" || rows[1].image != "/abs/bo.png" {
		t.Errorf("unexpected second row %+v", rows[1])
	}
	if rows[2].image != "" {
		t.Errorf("expected empty image, got %q", rows[2].image)
	}
}

func TestReadImportRows_WithoutHeader(t *testing.T) {
	rows, err := readImportRows(strings.NewReader("EMP-001,Ana,ana.jpg\n"), ".")
	if err != nil {
		t.Fatalf("readImportRows: %v", err)
	}
	if len(rows) != 1 || rows[0].line != 1 {
		t.Errorf("expected the first row to be kept, got %+v", rows)
	}
}

func TestReadImportRows_WrongColumnCount(t *testing.T) {
	if _, err := readImportRows(strings.NewReader("EMP-001,Ana\n"), "."); err == nil {
		t.Error("expected error for a row with two columns")
	}
}

func TestDayRange(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	start, end, err := dayRange("2026-03-01", "2026-03-02", loc)
	if err != nil {
		t.Fatalf("dayRange: %v", err)
	}
	if !start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, loc)) {
		t.Errorf("unexpected start %s", start)
	}
	if !end.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, loc)) {
		t.Errorf("expected the last day to be inclusive, got end %s", end)
	}

	for _, tc := range [][2]string{{"2026-03-01", ""}, {"", "2026-03-01"}, {"03/01/2026", "2026-03-02"}} {
		if _, _, err := dayRange(tc[0], tc[1], loc); err == nil {
			t.Errorf("dayRange(%q, %q): expected error", tc[0], tc[1])
		}
	}
}

func TestCheckinOutput(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	ev := &database.Event{ID: "ev1", SubjectID: "A", SubjectName: "Ana", Kind: database.Departure, OccurredAt: at}

	out := checkinOutput(attendance.Outcome{
		Status: attendance.StatusRecorded, SubjectID: "A", Kind: database.Departure,
		Distance: 0.25, OccurredAt: at, Event: ev,
	})
	if !out.Success || out.Kind != "departure" || out.Subject != "Ana" || out.EventID != "ev1" {
		t.Errorf("unexpected output %+v", out)
	}

	out = checkinOutput(attendance.Outcome{Status: attendance.StatusNotRecognized})
	if out.Success || out.SubjectID != "" || out.Status != "not_recognized" {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	if l := newLogger("debug"); !l.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("debug logger should enable debug records")
	}
	if l := newLogger("bogus"); l.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("unknown level should fall back to info")
	}
}

func TestNewMatcher(t *testing.T) {
	m := newMatcher(config.MatcherConfig{Threshold: 0.4, Index: config.IndexHNSW, HNSWMinGallery: 10})
	if _, ok := m.(*biometric.HNSWMatcher); !ok {
		t.Errorf("expected HNSW matcher, got %T", m)
	}
	if m.Threshold() != 0.4 {
		t.Errorf("unexpected threshold %v", m.Threshold())
	}
	if m := newMatcher(config.MatcherConfig{Threshold: 0.5, Index: config.IndexExact}); m.Threshold() != 0.5 {
		t.Errorf("unexpected threshold %v", m.Threshold())
	} else if _, ok := m.(*biometric.ExactMatcher); !ok {
		t.Errorf("expected exact matcher, got %T", m)
	}
}

func TestOpenStorage(t *testing.T) {
	if _, err := openStorage(t.Context(), &config.Config{}, false); err == nil {
		t.Error("expected error without DATABASE_URL or SQLITE_PATH")
	}

	ready, err := openStorage(t.Context(), &config.Config{}, true)
	if err != nil {
		t.Fatalf("openStorage: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if ready != nil {
		t.Error("in-memory store has no readiness check")
	}
	if database.BackendName() != "memory" {
		t.Errorf("expected memory backend, got %q", database.BackendName())
	}

	ready, err = openStorage(t.Context(), &config.Config{SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "a.db")}}, false)
	if err != nil {
		t.Fatalf("openStorage sqlite: %v", err)
	}
	if err := ready(t.Context()); err != nil {
		t.Errorf("sqlite ping: %v", err)
	}
}
