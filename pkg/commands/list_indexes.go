// Package commands contains the read-command orchestrators built on the
// execution core: listIndexes opens a cursor over a collection's index
// metadata, getMore continues it, killCursors tears it down.
package commands

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/cursor"
	"github.com/meridiandb/meridian/pkg/exec"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/namespace"
)

var tracer = otel.Tracer("meridian/pkg/commands")

// DefaultMaxBatchBytes caps the cumulative serialized size of one batch. It
// matches the maximum user document size, so a single maximum-size record
// still makes progress.
const DefaultMaxBatchBytes = 16 * 1024 * 1024

// AuthContext carries what the (external) authorization layer resolved for
// the calling request.
type AuthContext struct {
	// Users is the set of authenticated principals.
	Users []string

	// MajorityCommitted is true when the read observes a majority-committed
	// snapshot.
	MajorityCommitted bool
}

// ListIndexesRequest asks for the index metadata of one collection.
type ListIndexesRequest struct {
	Database   string
	Collection string

	// BatchSize bounds the record count of the first batch. Zero or negative
	// means no count bound.
	BatchSize int64

	Auth AuthContext

	// RawCommand is the originating request document, retained on the cursor
	// for auditing. May be nil.
	RawCommand bson.Raw
}

// CursorResponse is the first page of any cursor-producing command. A zero
// CursorID means everything fit in Batch; a nonzero id means a continuation
// is parked in the registry under that id.
type CursorResponse struct {
	CursorID  int64
	Namespace string
	Batch     []bson.Raw
}

// SpecTransform is a stateless per-record rewrite applied to an index spec
// before it enters the working set, for wire-compatibility adjustments. It
// must return a document owned by the caller.
type SpecTransform func(bson.Raw) (bson.Raw, error)

// ListIndexesQuery answers listIndexes requests: it snapshots the target
// collection's index specs under a retry-safe read, serves a size-bounded
// first batch, and parks the remainder behind a cursor.
type ListIndexesQuery struct {
	catalog       catalog.Catalog
	registry      *cursor.Registry
	logger        logger.Logger
	transform     SpecTransform
	maxBatchBytes int
}

type ListIndexesQueryOption func(*ListIndexesQuery)

func WithListIndexesQueryLogger(l logger.Logger) ListIndexesQueryOption {
	return func(q *ListIndexesQuery) {
		q.logger = l
	}
}

// WithSpecTransform installs the per-record compatibility rewrite. The
// default leaves specs untouched.
func WithSpecTransform(tr SpecTransform) ListIndexesQueryOption {
	return func(q *ListIndexesQuery) {
		q.transform = tr
	}
}

func WithMaxBatchBytes(n int) ListIndexesQueryOption {
	return func(q *ListIndexesQuery) {
		q.maxBatchBytes = n
	}
}

// NewListIndexesQuery creates a ListIndexesQuery over the given catalog and
// cursor registry.
func NewListIndexesQuery(cat catalog.Catalog, reg *cursor.Registry, opts ...ListIndexesQueryOption) *ListIndexesQuery {
	q := &ListIndexesQuery{
		catalog:       cat,
		registry:      reg,
		logger:        logger.NewNoopLogger(),
		maxBatchBytes: DefaultMaxBatchBytes,
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Execute runs the query. Unknown namespaces surface as
// catalog.ErrNamespaceNotFound.
func (q *ListIndexesQuery) Execute(ctx context.Context, req *ListIndexesRequest) (*CursorResponse, error) {
	ns, err := namespace.New(req.Database, req.Collection)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ListIndexesQuery.Execute", trace.WithAttributes(
		attribute.String("namespace", ns.String()),
		attribute.Int64("batch_size", req.BatchSize),
	))
	defer span.End()

	requestID := uuid.NewString()

	specs, err := catalog.ReadIndexSpecs(ctx, q.catalog, ns)
	if err != nil {
		return nil, err
	}

	snapshot, err := q.catalog.OpenSnapshot(ctx, ns)
	if err != nil {
		return nil, err
	}

	ws := exec.NewWorkingSet()
	ids := make([]exec.RecordID, 0, len(specs))
	for _, spec := range specs {
		if q.transform != nil {
			spec, err = q.transform(spec)
			if err != nil {
				snapshot.Release()
				return nil, err
			}
		}

		id := ws.Allocate()
		rec := ws.Get(id)
		rec.Doc = spec
		rec.Disposition = exec.RecordOwned
		ids = append(ids, id)
	}

	source := exec.NewQueuedSource(ws)
	source.Load(ids)
	pipeline := exec.NewPipeline(ws, source, snapshot)

	batch, err := exec.AssembleBatch(ctx, pipeline, req.BatchSize, q.maxBatchBytes)
	if err != nil {
		pipeline.Close()
		return nil, err
	}

	cursorNS := ns.ForListIndexes()

	var cursorID int64
	if pipeline.IsExhausted() {
		pipeline.Close()
	} else {
		pipeline.Detach()
		cursorID = q.registry.Register(pipeline, cursor.Metadata{
			AuthenticatedUsers: req.Auth.Users,
			MajorityCommitted:  req.Auth.MajorityCommitted,
			OriginatingCommand: req.RawCommand,
			Namespace:          cursorNS,
		})
	}

	q.logger.Debug("listIndexes",
		zap.String("request_id", requestID),
		zap.String("namespace", ns.String()),
		zap.Int("first_batch", len(batch.Docs)),
		zap.Int64("cursor_id", cursorID),
	)

	return &CursorResponse{
		CursorID:  cursorID,
		Namespace: cursorNS.String(),
		Batch:     batch.Docs,
	}, nil
}
