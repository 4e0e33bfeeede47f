// Package attendance identifies subjects from probe vectors and decides
// whether each identification records an arrival, a departure, or is
// suppressed as a duplicate.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/lock"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

const (
	defaultStoreTimeout = 5 * time.Second

	// maxAppendAttempts bounds re-decisions after a conflicting append.
	maxAppendAttempts = 3
)

// GallerySource returns a consistent snapshot of the active enrollments.
type GallerySource interface {
	Get(ctx context.Context) (*biometric.Gallery, error)
}

// VectorSource returns the stored vector of one subject.
type VectorSource interface {
	GetVector(ctx context.Context, id string) (biometric.Vector, error)
}

// Extractor turns an image into a probe vector.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (biometric.Vector, error)
}

// EvidenceStore keeps the image of a recorded identification.
type EvidenceStore interface {
	Save(ctx context.Context, image []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Engine runs the identify, decide, commit sequence.
type Engine struct {
	gallery      GallerySource
	vectors      VectorSource
	events       database.EventWriter
	matcher      biometric.Matcher
	rules        Rules
	locker       lock.Locker
	extractor    Extractor
	evidence     EvidenceStore
	dimension    int
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatcher sets the matcher. Defaults to an exact scan with the default threshold.
func WithMatcher(m biometric.Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithRules sets the cooldown and session ceiling.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithLocker sets the per-subject lock. Defaults to an in-process keyed lock.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithExtractor enables ProcessImage.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithEvidence stores the image of every recorded ProcessImage call.
func WithEvidence(s EvidenceStore) Option {
	return func(e *Engine) { e.evidence = s }
}

// WithDimension rejects probes whose length differs from dim. Zero accepts any length.
func WithDimension(dim int) Option {
	return func(e *Engine) { e.dimension = dim }
}

// WithStoreTimeout bounds every repository and lock call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(gallery GallerySource, vectors VectorSource, events database.EventWriter, opts ...Option) (*Engine, error) {
	e := &Engine{
		gallery:      gallery,
		vectors:      vectors,
		events:       events,
		matcher:      biometric.NewExactMatcher(biometric.DefaultThreshold),
		rules:        DefaultRules(),
		locker:       lock.NewKeyed(),
		storeTimeout: defaultStoreTimeout,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.gallery == nil || e.vectors == nil || e.events == nil {
		return nil, errors.New("attendance engine requires a gallery, a vector source and an event store")
	}
	if err := e.rules.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Rules returns the engine's attendance rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Process identifies the probe and, on a match, records or suppresses an
// attendance event for the matched subject.
func (e *Engine) Process(ctx context.Context, probe biometric.Vector) (Outcome, error) {
	return e.process(ctx, probe, nil)
}

// ProcessImage extracts a probe from the image and processes it. When an
// event is recorded and an evidence store is configured, the image is kept
// and referenced from the event.
func (e *Engine) ProcessImage(ctx context.Context, image []byte) (Outcome, error) {
	if e.extractor == nil {
		return Outcome{}, errors.New("no embedding extractor configured")
	}

	probe, err := e.extractor.Extract(ctx, image)
	switch {
	case errors.Is(err, embedding.ErrNoFace):
		e.metrics.IncrementOutcome(StatusNoFaceDetected.String())
		return noFace(), nil
	case errors.Is(err, embedding.ErrBadImage):
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidProbe, err)
	case err != nil:
		return Outcome{}, unavailable("extract embedding", err)
	}

	return e.process(ctx, probe, image)
}

func (e *Engine) process(ctx context.Context, probe biometric.Vector, image []byte) (Outcome, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveProcessLatency(time.Since(start)) }()

	if err := e.validateProbe(probe); err != nil {
		return Outcome{}, err
	}

	gctx, cancel := e.storeContext(ctx)
	g, err := e.gallery.Get(gctx)
	cancel()
	if err != nil {
		return Outcome{}, unavailable("load gallery", err)
	}

	match, ok := e.matcher.Match(probe, g)
	e.reportSkipped(probe, match.Skipped)
	if !ok {
		e.metrics.IncrementOutcome(StatusNotRecognized.String())
		return notRecognized(), nil
	}
	e.metrics.ObserveMatchDistance(match.Distance)

	outcome, err := e.decideAndCommit(ctx, probe, match, image)
	if err != nil {
		return Outcome{}, err
	}
	e.metrics.IncrementOutcome(outcome.Status.String())
	if outcome.Status == StatusRecorded {
		e.metrics.IncrementEvent(outcome.Kind.String())
	}
	return outcome, nil
}

func (e *Engine) validateProbe(probe biometric.Vector) error {
	if err := probe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProbe, err)
	}
	if e.dimension > 0 && probe.Dim() != e.dimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidProbe, e.dimension, probe.Dim())
	}
	return nil
}

func (e *Engine) reportSkipped(probe biometric.Vector, skipped []biometric.Candidate) {
	for _, c := range skipped {
		e.logger.Warn("enrollment vector dimension mismatch",
			"subject_id", c.SubjectID,
			"want_dim", probe.Dim(),
			"got_dim", c.Vector.Dim(),
		)
	}
	e.metrics.AddSkippedCandidates(len(skipped))
}

// decideAndCommit runs read-last, decide, append for one subject while
// holding that subject's lock. A conflicting append means another writer got
// in first; the decision is redone against the new latest event.
func (e *Engine) decideAndCommit(ctx context.Context, probe biometric.Vector, match biometric.Result, image []byte) (Outcome, error) {
	subjectID := match.SubjectID

	lctx, cancel := e.storeContext(ctx)
	waitStart := time.Now()
	unlock, err := e.locker.Lock(lctx, subjectID)
	cancel()
	if err != nil {
		return Outcome{}, unavailable("lock subject", err)
	}
	defer unlock()
	e.metrics.ObserveLockWait(time.Since(waitStart))

	var (
		distance    float64
		haveDist    bool
		evidenceRef string
	)
	// Evidence saved for an event that was never committed is removed again.
	committed := false
	defer func() {
		if evidenceRef != "" && !committed {
			e.discardEvidence(evidenceRef)
		}
	}()

	for range maxAppendAttempts {
		last, err := e.latestFor(ctx, subjectID)
		if err != nil {
			return Outcome{}, err
		}

		now := e.now().UTC()
		decision, err := e.rules.Decide(last, now)
		if err != nil {
			return Outcome{}, fmt.Errorf("decide subject %s: %w", subjectID, err)
		}
		if decision.Suppressed {
			e.logger.Debug("identification suppressed", "subject_id", subjectID, "last_event_id", last.ID)
			return suppressed(subjectID, match.Distance, last), nil
		}

		if !haveDist {
			d, found, err := e.distanceTo(ctx, subjectID, probe)
			if err != nil {
				return Outcome{}, err
			}
			if !found {
				return notRecognized(), nil
			}
			distance, haveDist = d, true
		}

		if image != nil && e.evidence != nil && evidenceRef == "" {
			evidenceRef = e.saveEvidence(ctx, image)
		}

		ev := database.Event{
			SubjectID:   subjectID,
			Kind:        decision.Kind,
			OccurredAt:  now,
			Distance:    distance,
			EvidenceRef: evidenceRef,
		}

		prevID := ""
		if last != nil {
			prevID = last.ID
		}

		actx, acancel := e.storeContext(ctx)
		saved, err := e.events.Append(actx, ev, prevID)
		acancel()
		if errors.Is(err, database.ErrConflict) {
			e.metrics.IncrementAppendConflict()
			e.logger.Info("conflicting append, re-deciding", "subject_id", subjectID)
			continue
		}
		if err != nil {
			return Outcome{}, unavailable("append event", err)
		}

		committed = true
		e.logger.Info("attendance recorded",
			"subject_id", subjectID,
			"kind", saved.Kind.String(),
			"distance", saved.Distance,
		)
		return recorded(saved), nil
	}

	return Outcome{}, unavailable("append event", fmt.Errorf("%w after %d attempts", database.ErrConflict, maxAppendAttempts))
}

func (e *Engine) latestFor(ctx context.Context, subjectID string) (*database.Event, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	last, err := e.events.LatestFor(sctx, subjectID)
	if err != nil {
		return nil, unavailable("fetch latest event", err)
	}
	return last, nil
}

// distanceTo recomputes the probe distance against the subject's stored
// vector. found is false when the subject is gone or its vector no longer
// has the probe's dimension.
func (e *Engine) distanceTo(ctx context.Context, subjectID string, probe biometric.Vector) (float64, bool, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	stored, err := e.vectors.GetVector(sctx, subjectID)
	if errors.Is(err, database.ErrNotFound) {
		e.logger.Warn("matched subject disappeared before commit", "subject_id", subjectID)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("fetch subject vector", err)
	}

	d, ok := biometric.EuclideanDistance(probe, stored)
	if !ok {
		e.reportSkipped(probe, []biometric.Candidate{{SubjectID: subjectID, Vector: stored}})
		return 0, false, nil
	}
	return d, true, nil
}

func (e *Engine) saveEvidence(ctx context.Context, image []byte) string {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	ref, err := e.evidence.Save(sctx, image)
	if err != nil {
		e.logger.Warn("failed to store evidence, recording without it", "error", err)
		return ""
	}
	return ref
}

func (e *Engine) discardEvidence(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.storeTimeout)
	defer cancel()
	if err := e.evidence.Delete(ctx, ref); err != nil {
		e.logger.Warn("failed to remove orphaned evidence", "ref", ref, "error", err)
	}
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}
