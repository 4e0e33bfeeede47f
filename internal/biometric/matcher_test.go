package biometric

import (
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Vector
		want   float64
		wantOK bool
	}{
		{"identical", Vector{1, 2, 3}, Vector{1, 2, 3}, 0, true},
		{"3-4-5 triangle", Vector{0, 0}, Vector{3, 4}, 5, true},
		{"length mismatch", Vector{1, 2}, Vector{1, 2, 3}, 0, false},
		{"empty", Vector{}, Vector{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EuclideanDistance(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("EuclideanDistance ok = %v, want %v", ok, tt.wantOK)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EuclideanDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorValidate(t *testing.T) {
	if err := (Vector{}).Validate(); err != ErrEmptyVector {
		t.Errorf("expected ErrEmptyVector, got %v", err)
	}
	if err := (Vector{1, float32(math.NaN())}).Validate(); err != ErrNonFinite {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
	if err := (Vector{0.1, 0.2}).Validate(); err != nil {
		t.Errorf("expected valid vector, got %v", err)
	}
}

func TestExactMatcher_Match(t *testing.T) {
	gallery := NewGallery(1, []Candidate{
		{SubjectID: "alice", Vector: Vector{0, 0, 0}},
		{SubjectID: "bob", Vector: Vector{1, 0, 0}},
		{SubjectID: "legacy", Vector: Vector{0, 0}},
	})
	m := NewExactMatcher(0.5)

	tests := []struct {
		name        string
		probe       Vector
		wantOK      bool
		wantSubject string
		wantDist    float64
	}{
		{"exact hit", Vector{0, 0, 0}, true, "alice", 0},
		{"within threshold", Vector{0.3, 0, 0}, true, "alice", 0.3},
		{"nearer to bob", Vector{0.9, 0, 0}, true, "bob", 0.1},
		{"equal to threshold is rejected", Vector{0, 0.5, 0}, false, "alice", 0.5},
		{"far from everyone", Vector{0, 0.9, 0}, false, "alice", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := m.Match(tt.probe, gallery)
			if ok != tt.wantOK {
				t.Fatalf("Match ok = %v, want %v (result %+v)", ok, tt.wantOK, res)
			}
			if res.SubjectID != tt.wantSubject {
				t.Errorf("SubjectID = %q, want %q", res.SubjectID, tt.wantSubject)
			}
			if math.Abs(res.Distance-tt.wantDist) > 1e-6 {
				t.Errorf("Distance = %v, want %v", res.Distance, tt.wantDist)
			}
			if len(res.Skipped) != 1 || res.Skipped[0].SubjectID != "legacy" {
				t.Errorf("expected legacy candidate to be skipped, got %+v", res.Skipped)
			}
		})
	}
}

func TestExactMatcher_MismatchNeverMatches(t *testing.T) {
	// The mismatched candidate is listed first and would be an exact hit on its
	// own prefix; it must not abort the scan or be returned.
	gallery := NewGallery(1, []Candidate{
		{SubjectID: "short", Vector: Vector{0.1}},
		{SubjectID: "ok", Vector: Vector{0.1, 0.1}},
	})
	res, ok := NewExactMatcher(0.5).Match(Vector{0.1, 0.1}, gallery)
	if !ok || res.SubjectID != "ok" {
		t.Fatalf("expected match on 'ok', got %+v ok=%v", res, ok)
	}
}

func TestExactMatcher_TieBreakFirstWins(t *testing.T) {
	gallery := NewGallery(1, []Candidate{
		{SubjectID: "first", Vector: Vector{1, 0}},
		{SubjectID: "second", Vector: Vector{-1, 0}},
	})
	res, ok := NewExactMatcher(2).Match(Vector{0, 0}, gallery)
	if !ok || res.SubjectID != "first" {
		t.Errorf("expected first-encountered candidate on tie, got %+v", res)
	}
}

func TestExactMatcher_EmptyGallery(t *testing.T) {
	m := NewExactMatcher(0)
	if m.Threshold() != DefaultThreshold {
		t.Errorf("expected default threshold, got %v", m.Threshold())
	}
	if _, ok := m.Match(Vector{1}, nil); ok {
		t.Error("expected no match on nil gallery")
	}
	if _, ok := m.Match(Vector{1}, NewGallery(0, nil)); ok {
		t.Error("expected no match on empty gallery")
	}
}

func TestGallery_Len(t *testing.T) {
	g := NewGallery(3, []Candidate{{SubjectID: "a", Vector: Vector{1}}})
	if g.Len() != 1 {
		t.Errorf("expected 1 candidate, got %d", g.Len())
	}
	var nilGallery *Gallery
	if nilGallery.Len() != 0 {
		t.Error("nil gallery should have zero length")
	}
}
