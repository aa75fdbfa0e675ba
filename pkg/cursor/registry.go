// Package cursor implements the process-wide registry that parks suspended
// execution pipelines between requests. A registered cursor binds a nonzero
// 64-bit id to a detached pipeline plus the security and consistency context
// captured when it was created. The pin/unpin protocol is the sole
// synchronization mechanism for a cursor: whichever request holds the pin owns
// the pipeline exclusively, so the pipeline itself needs no locking.
package cursor

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/meridiandb/meridian/internal/build"
	"github.com/meridiandb/meridian/pkg/exec"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/namespace"
)

var (
	// ErrCursorNotFound is returned when no live cursor has the given id.
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrCursorInUse is returned when the cursor is pinned by another request.
	// Callers may retry once the owning request releases it.
	ErrCursorInUse = errors.New("cursor already in use")
)

const (
	// DefaultIdleTimeout is how long an unpinned cursor survives before the
	// sweeper destroys it.
	DefaultIdleTimeout = 10 * time.Minute

	// DefaultSweepInterval is how often the sweeper looks for idle cursors.
	DefaultSweepInterval = time.Minute
)

var (
	openCursorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "cursors_open",
		Help:      "Number of cursors currently registered.",
	})

	timedOutCursorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cursors_timed_out_total",
		Help:      "Number of cursors destroyed by the idle sweeper.",
	})

	killedCursorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cursors_killed_total",
		Help:      "Number of cursors destroyed by an explicit kill.",
	})
)

// Metadata is the context captured when a cursor is created.
type Metadata struct {
	// AuthenticatedUsers is the set of principals authenticated on the request
	// that created the cursor.
	AuthenticatedUsers []string

	// MajorityCommitted records whether the read that populated the pipeline
	// observed a majority-committed snapshot.
	MajorityCommitted bool

	// OriginatingCommand is the request document that created the cursor. It
	// is retained for auditing and never reinterpreted.
	OriginatingCommand bson.Raw

	// Namespace the cursor was opened against.
	Namespace namespace.Namespace
}

type entry struct {
	id       int64
	pipeline *exec.Pipeline
	meta     Metadata
	pinned   bool
	lastUsed time.Time
}

// Registry is the process-wide table of live cursors. Construct one per
// process with NewRegistry and tear it down with Close at shutdown.
type Registry struct {
	logger        logger.Logger
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	cursors map[int64]*entry
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

type RegistryOption func(*Registry)

func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithIdleTimeout overrides how long an unpinned cursor may sit idle before
// the sweeper destroys it.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// WithSweepInterval overrides the sweeper frequency.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.sweepInterval = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry constructs a registry and starts its background idle sweeper.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:        logger.NewNoopLogger(),
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		cursors:       make(map[int64]*entry),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	go r.runSweeper()
	return r
}

// Register parks a detached pipeline behind a fresh nonzero cursor id and
// returns the id. Ownership of the pipeline transfers to the registry entry.
// Registering a pipeline that is not detached is a caller bug and panics.
func (r *Registry) Register(p *exec.Pipeline, meta Metadata) int64 {
	if p.State() != exec.StateDetached {
		panic(fmt.Sprintf("cursor: register of %s pipeline", p.State()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	r.cursors[id] = &entry{
		id:       id,
		pipeline: p,
		meta:     meta,
		lastUsed: r.now(),
	}

	openCursorsGauge.Inc()
	r.logger.Debug("registered cursor",
		zap.Int64("cursor_id", id),
		zap.String("namespace", meta.Namespace.String()),
	)
	return id
}

// newID picks a random nonzero id not currently in use. Callers must hold
// r.mu.
func (r *Registry) newID() int64 {
	for {
		id := rand.Int64()
		if id == 0 {
			continue
		}
		if _, ok := r.cursors[id]; ok {
			continue
		}
		return id
	}
}

// Pin claims the cursor exclusively for the calling request. While pinned the
// cursor cannot be killed, swept or pinned again; the caller must call Release
// on the returned PinnedCursor exactly once.
func (r *Registry) Pin(id int64) (*PinnedCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cursors[id]
	if !ok {
		return nil, ErrCursorNotFound
	}
	if e.pinned {
		return nil, ErrCursorInUse
	}

	e.pinned = true
	return &PinnedCursor{registry: r, entry: e}, nil
}

// Kill destroys the cursor unless it is currently pinned, in which case the
// caller gets ErrCursorInUse and must retry after the owner releases it.
func (r *Registry) Kill(id int64) error {
	r.mu.Lock()
	e, ok := r.cursors[id]
	if !ok {
		r.mu.Unlock()
		return ErrCursorNotFound
	}
	if e.pinned {
		r.mu.Unlock()
		return ErrCursorInUse
	}
	delete(r.cursors, id)
	r.mu.Unlock()

	e.pipeline.Close()
	openCursorsGauge.Dec()
	killedCursorsCounter.Inc()
	r.logger.Debug("killed cursor", zap.Int64("cursor_id", id))
	return nil
}

// Len returns the number of live cursors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}

// Close stops the sweeper and destroys every remaining cursor. Pending pins
// must be released before shutdown; Close refuses to free a pinned cursor out
// from under its owner and leaves it to the pin release, which destroys the
// cursor once the registry is closed.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	r.closed = true
	var doomed []*entry
	for id, e := range r.cursors {
		if e.pinned {
			r.logger.Warn("cursor still pinned at shutdown", zap.Int64("cursor_id", id))
			continue
		}
		delete(r.cursors, id)
		doomed = append(doomed, e)
	}
	r.mu.Unlock()

	for _, e := range doomed {
		e.pipeline.Close()
		openCursorsGauge.Dec()
	}
}

func (r *Registry) runSweeper() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep destroys entries that have sat unpinned past the idle timeout. Pinned
// entries are never reaped.
func (r *Registry) sweep() {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	var doomed []*entry
	for id, e := range r.cursors {
		if e.pinned || e.lastUsed.After(cutoff) {
			continue
		}
		delete(r.cursors, id)
		doomed = append(doomed, e)
	}
	r.mu.Unlock()

	for _, e := range doomed {
		e.pipeline.Close()
		openCursorsGauge.Dec()
		timedOutCursorsCounter.Inc()
		r.logger.Info("cursor timed out",
			zap.Int64("cursor_id", e.id),
			zap.String("namespace", e.meta.Namespace.String()),
		)
	}
}
