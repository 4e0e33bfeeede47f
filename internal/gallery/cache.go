// Package gallery keeps an in-memory snapshot of the active enrollment set
// for matching. Snapshots are immutable; a refresh swaps in a new one.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Source lists the active enrollments a snapshot is built from.
type Source interface {
	ListActive(ctx context.Context) ([]database.Enrollment, error)
}

// DefaultLoadTimeout bounds one reload of the snapshot.
const DefaultLoadTimeout = 10 * time.Second

type snapshot struct {
	gallery  *biometric.Gallery
	loadedAt time.Time
}

// Cache serves gallery snapshots, reloading from the source when the
// snapshot is older than the TTL or has been invalidated.
type Cache struct {
	source      Source
	ttl         time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	stale      atomic.Bool
	group      singleflight.Group
	mu         sync.Mutex // serializes snapshot installs
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLoadTimeout bounds one reload. Non-positive values keep DefaultLoadTimeout.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over source. A non-positive ttl reloads on every Get.
func New(source Source, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		source:      source,
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get returns the current snapshot, refreshing it first if it is missing,
// expired or invalidated. Concurrent refreshes are collapsed into one load.
func (c *Cache) Get(ctx context.Context) (*biometric.Gallery, error) {
	if snap := c.current.Load(); snap != nil && !c.stale.Load() && c.fresh(snap) {
		return snap.gallery, nil
	}
	return c.Refresh(ctx)
}

// Refresh reloads the snapshot from the source. The load is shared by all
// concurrent callers and is not cancelled when one of them gives up; each
// caller stops waiting when its own ctx is done.
func (c *Cache) Refresh(ctx context.Context) (*biometric.Gallery, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		// Clear first so an Invalidate that races with the load marks the
		// result stale again.
		c.stale.Store(false)
		g, err := c.load(lctx)
		c.metrics.ObserveGalleryRefresh(g.Len(), err)
		if err != nil {
			c.stale.Store(true)
			return nil, err
		}
		return g, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*biometric.Gallery), nil
	}
}

// Invalidate marks the snapshot stale so the next Get reloads it.
func (c *Cache) Invalidate() {
	c.stale.Store(true)
}

// Generation returns the generation of the last installed snapshot.
func (c *Cache) Generation() uint64 {
	return c.generation.Load()
}

func (c *Cache) fresh(snap *snapshot) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(snap.loadedAt) < c.ttl
}

func (c *Cache) load(ctx context.Context) (*biometric.Gallery, error) {
	enrollments, err := c.source.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}

	candidates := make([]biometric.Candidate, 0, len(enrollments))
	for _, e := range enrollments {
		if !e.Active {
			continue
		}
		candidates = append(candidates, biometric.Candidate{SubjectID: e.ID, Vector: e.Vector})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	g := biometric.NewGallery(c.generation.Add(1), candidates)
	c.current.Store(&snapshot{gallery: g, loadedAt: c.now()})

	c.logger.Debug("gallery refreshed", "generation", g.Generation, "size", g.Len())
	return g, nil
}
