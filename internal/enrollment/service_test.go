package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

type fakeExtractor struct {
	vector biometric.Vector
	err    error
}

func (f fakeExtractor) Extract(context.Context, []byte) (biometric.Vector, error) {
	return f.vector, f.err
}

type fakePhotos struct {
	saved   []string
	deleted []string
}

func (f *fakePhotos) Save(context.Context, []byte) (string, error) {
	ref := "photo-" + string(rune('a'+len(f.saved)))
	f.saved = append(f.saved, ref)
	return ref, nil
}

func (f *fakePhotos) Delete(_ context.Context, ref string) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

func TestService_EnrollCreatesThenUpdates(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	inv := &countingInvalidator{}
	svc := NewService(store, WithInvalidator(inv), WithDimension(2))
	ctx := context.Background()

	first, err := svc.Enroll(ctx, Request{Code: " E1 ", FullName: "Ana Díaz", Vector: biometric.Vector{0.1, 0.2}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if first.Code != "E1" || !first.Active {
		t.Fatalf("unexpected enrollment %+v", first)
	}

	if err := svc.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	second, err := svc.Enroll(ctx, Request{Code: "E1", FullName: "Ana María Díaz", Vector: biometric.Vector{0.3, 0.4}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-enrollment must keep the record, got new id %s", second.ID)
	}
	if !second.Active || second.DeactivatedAt != nil {
		t.Error("re-enrollment must reactivate the record")
	}
	if second.Vector[0] != 0.3 || second.FullName != "Ana María Díaz" {
		t.Errorf("re-enrollment must replace vector and name, got %+v", second)
	}

	active, err := svc.ListActive(ctx, "")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected a single active record per code, got %d", len(active))
	}
	if inv.calls != 3 {
		t.Errorf("expected gallery invalidation on every write, got %d", inv.calls)
	}
}

func TestService_EnrollValidation(t *testing.T) {
	svc := NewService(mock.NewMockEnrollmentStore(), WithDimension(2))

	tests := []struct {
		name string
		req  Request
	}{
		{"missing code", Request{FullName: "A", Vector: biometric.Vector{1, 2}}},
		{"missing name", Request{Code: "E1", Vector: biometric.Vector{1, 2}}},
		{"missing vector and image", Request{Code: "E1", FullName: "A"}},
		{"wrong dimension", Request{Code: "E1", FullName: "A", Vector: biometric.Vector{1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Enroll(context.Background(), tt.req); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestService_EnrollFromImage(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	photos := &fakePhotos{}
	svc := NewService(store, WithExtractor(fakeExtractor{vector: biometric.Vector{0.5, 0.5}}), WithPhotos(photos))
	ctx := context.Background()

	e, err := svc.Enroll(ctx, Request{Code: "E1", FullName: "Bo", Image: []byte("jpeg")})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.PhotoRef != "photo-a" || e.Vector.Dim() != 2 {
		t.Fatalf("unexpected enrollment %+v", e)
	}

	// A new photo replaces the old one on disk.
	if _, err := svc.Enroll(ctx, Request{Code: "E1", FullName: "Bo", Image: []byte("jpeg2")}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if len(photos.deleted) != 1 || photos.deleted[0] != "photo-a" {
		t.Errorf("expected the replaced photo to be deleted, got %v", photos.deleted)
	}

	// A vector-only update keeps the current photo.
	e, err = svc.Enroll(ctx, Request{Code: "E1", FullName: "Bo", Vector: biometric.Vector{1, 1}})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.PhotoRef != "photo-b" {
		t.Errorf("expected photo to be kept, got %q", e.PhotoRef)
	}
}

func TestService_EnrollStoreFailureCleansUpPhoto(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.UpsertError = errors.New("db down")
	photos := &fakePhotos{}
	svc := NewService(store, WithExtractor(fakeExtractor{vector: biometric.Vector{1}}), WithPhotos(photos))

	if _, err := svc.Enroll(context.Background(), Request{Code: "E1", FullName: "Bo", Image: []byte("x")}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(photos.deleted) != 1 {
		t.Errorf("expected the new photo to be removed, got %v", photos.deleted)
	}
}

func TestService_ExtractorErrors(t *testing.T) {
	providerDown := errors.New("request failed: connection refused")

	tests := []struct {
		name            string
		err             error
		wantUnavailable bool
	}{
		{"no face", embedding.ErrNoFace, false},
		{"bad image", embedding.ErrBadImage, false},
		{"provider down", providerDown, true},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(mock.NewMockEnrollmentStore(), WithExtractor(fakeExtractor{err: tt.err}))

			_, err := svc.Enroll(context.Background(), Request{Code: "E1", FullName: "Bo", Image: []byte("x")})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected the extractor error to be kept, got %v", err)
			}
			if got := errors.Is(err, ErrUnavailable); got != tt.wantUnavailable {
				t.Errorf("errors.Is(err, ErrUnavailable) = %v, want %v", got, tt.wantUnavailable)
			}
		})
	}
}

func TestService_StoreFailuresAreUnavailable(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.Enrollment{ID: "1", Code: "E1", FullName: "Bo", Vector: biometric.Vector{1}, Active: true})
	svc := NewService(store)
	ctx := context.Background()

	store.ListActiveError = errors.New("connection reset")
	if _, err := svc.ListActive(ctx, ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ListActive: expected ErrUnavailable, got %v", err)
	}

	store.GetError = errors.New("connection reset")
	if _, err := svc.Get(ctx, "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get: expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.Enroll(ctx, Request{Code: "E1", FullName: "Bo", Vector: biometric.Vector{2}}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Enroll lookup: expected ErrUnavailable, got %v", err)
	}

	store.DeactivateError = errors.New("connection reset")
	if err := svc.Deactivate(ctx, "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Deactivate: expected ErrUnavailable, got %v", err)
	}
}

func TestService_ListActiveSearch(t *testing.T) {
	store := mock.NewMockEnrollmentStore()
	store.AddEnrollment(database.Enrollment{ID: "1", Code: "EMP-001", FullName: "José Núñez", Vector: biometric.Vector{1}, Active: true})
	store.AddEnrollment(database.Enrollment{ID: "2", Code: "EMP-002", FullName: "Ana Díaz", Vector: biometric.Vector{1}, Active: true})
	store.AddEnrollment(database.Enrollment{ID: "3", Code: "EMP-003", FullName: "Jose Old", Vector: biometric.Vector{1}, Active: false})
	svc := NewService(store)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2"}},
		{"jose", []string{"1"}},
		{"NUÑEZ", []string{"1"}},
		{"emp-002", []string{"2"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := svc.ListActive(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("ListActive: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("result %d = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestService_DeactivateMissing(t *testing.T) {
	svc := NewService(mock.NewMockEnrollmentStore())
	err := svc.Deactivate(context.Background(), "missing")
	if !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("a missing subject is not an outage")
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, database.ErrNotFound) || errors.Is(err, ErrUnavailable) {
		t.Errorf("Get: expected plain ErrNotFound, got %v", err)
	}
}
