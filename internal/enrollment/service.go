// Package enrollment manages the registry of known subjects.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

var (
	// ErrInvalid marks an enrollment request that cannot be stored.
	ErrInvalid = errors.New("invalid enrollment")
	// ErrUnavailable marks a failure of the store or the embedding provider.
	// The request may be retried.
	ErrUnavailable = errors.New("enrollment backend unavailable")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Extractor turns an enrollment photo into a reference vector.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (biometric.Vector, error)
}

// PhotoStore keeps enrollment photos.
type PhotoStore interface {
	Save(ctx context.Context, image []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Invalidator is notified after every write so matching sees the change.
type Invalidator interface {
	Invalidate()
}

// Request creates or updates the enrollment for Code. Either Vector or
// Image must be set; Vector wins when both are.
type Request struct {
	Code     string
	FullName string
	Vector   biometric.Vector
	Image    []byte
}

// Service enrolls, updates and deactivates subjects.
type Service struct {
	store       database.EnrollmentWriter
	extractor   Extractor
	photos      PhotoStore
	invalidator Invalidator
	dimension   int
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExtractor allows enrolling from an image.
func WithExtractor(x Extractor) Option {
	return func(s *Service) { s.extractor = x }
}

// WithPhotos stores the enrollment image.
func WithPhotos(p PhotoStore) Option {
	return func(s *Service) { s.photos = p }
}

// WithInvalidator registers the gallery to refresh after writes.
func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidator = i }
}

// WithDimension rejects vectors whose length differs from dim. Zero accepts any.
func WithDimension(dim int) Option {
	return func(s *Service) { s.dimension = dim }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates an enrollment service.
func NewService(store database.EnrollmentWriter, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Enroll creates the subject, or replaces the vector, name and photo of an
// existing one with the same code and reactivates it.
func (s *Service) Enroll(ctx context.Context, req Request) (database.Enrollment, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.FullName)
	if code == "" {
		return database.Enrollment{}, fmt.Errorf("%w: code is required", ErrInvalid)
	}
	if name == "" {
		return database.Enrollment{}, fmt.Errorf("%w: full name is required", ErrInvalid)
	}

	vector := req.Vector
	if len(vector) == 0 {
		if len(req.Image) == 0 {
			return database.Enrollment{}, fmt.Errorf("%w: a vector or an image is required", ErrInvalid)
		}
		if s.extractor == nil {
			return database.Enrollment{}, errors.New("no embedding extractor configured")
		}
		v, err := s.extractor.Extract(ctx, req.Image)
		switch {
		case errors.Is(err, embedding.ErrNoFace), errors.Is(err, embedding.ErrBadImage):
			return database.Enrollment{}, fmt.Errorf("failed to extract face vector: %w", err)
		case err != nil:
			return database.Enrollment{}, unavailable("extract face vector", err)
		}
		vector = v
	}
	if err := vector.Validate(); err != nil {
		return database.Enrollment{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if s.dimension > 0 && vector.Dim() != s.dimension {
		return database.Enrollment{}, fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalid, s.dimension, vector.Dim())
	}

	previous, err := s.store.GetByCode(ctx, code)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return database.Enrollment{}, unavailable("look up subject "+code, err)
	}

	var photoRef string
	if len(req.Image) > 0 && s.photos != nil {
		photoRef, err = s.photos.Save(ctx, req.Image)
		if err != nil {
			s.logger.Warn("failed to store enrollment photo", "code", code, "error", err)
			photoRef = ""
		}
	}
	if photoRef == "" && previous != nil {
		photoRef = previous.PhotoRef
	}

	saved, err := s.store.Upsert(ctx, database.Enrollment{
		Code:     code,
		FullName: name,
		Vector:   vector.Clone(),
		PhotoRef: photoRef,
		Active:   true,
	})
	if err != nil {
		if previous == nil || photoRef != previous.PhotoRef {
			s.deletePhoto(ctx, photoRef)
		}
		return database.Enrollment{}, unavailable("save subject "+code, err)
	}

	if previous != nil && previous.PhotoRef != "" && previous.PhotoRef != saved.PhotoRef {
		s.deletePhoto(ctx, previous.PhotoRef)
	}
	s.invalidate()

	s.logger.Info("subject enrolled", "subject_id", saved.ID, "code", saved.Code, "updated", previous != nil)
	return saved, nil
}

// Deactivate soft-deletes a subject. Its events and vector are kept.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to deactivate subject %s: %w", id, err)
		}
		return unavailable("deactivate subject "+id, err)
	}
	s.invalidate()
	s.logger.Info("subject deactivated", "subject_id", id)
	return nil
}

// Get returns one subject, active or not.
func (s *Service) Get(ctx context.Context, id string) (*database.Enrollment, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, unavailable("get subject "+id, err)
	}
	return e, err
}

// ListActive returns active subjects, optionally filtered by a search query
// matched against the code and the diacritics-insensitive name.
func (s *Service) ListActive(ctx context.Context, query string) ([]database.Enrollment, error) {
	all, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, unavailable("list subjects", err)
	}

	q := NormalizeName(query)
	if q == "" {
		return all, nil
	}
	rawQ := strings.ToLower(strings.TrimSpace(query))
	var out []database.Enrollment
	for _, e := range all {
		if strings.Contains(NormalizeName(e.FullName), q) || strings.Contains(strings.ToLower(e.Code), rawQ) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Service) deletePhoto(ctx context.Context, ref string) {
	if ref == "" || s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.logger.Warn("failed to delete enrollment photo", "ref", ref, "error", err)
	}
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
