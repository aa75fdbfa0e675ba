package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/cursor"
	"github.com/meridiandb/meridian/pkg/exec"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/namespace"
)

// GetMoreRequest continues a previously registered cursor. Database and
// Collection must name the cursor namespace the creating command returned.
type GetMoreRequest struct {
	CursorID   int64
	Database   string
	Collection string

	// BatchSize bounds the record count of this batch. Zero or negative
	// means no count bound.
	BatchSize int64
}

// GetMoreQuery resumes a parked pipeline for one more batch. Concurrent
// continuations of the same cursor are rejected with cursor.ErrCursorInUse
// rather than interleaved; the pin protocol serializes them.
type GetMoreQuery struct {
	catalog       catalog.Catalog
	registry      *cursor.Registry
	logger        logger.Logger
	maxBatchBytes int
}

type GetMoreQueryOption func(*GetMoreQuery)

func WithGetMoreQueryLogger(l logger.Logger) GetMoreQueryOption {
	return func(q *GetMoreQuery) {
		q.logger = l
	}
}

func WithGetMoreMaxBatchBytes(n int) GetMoreQueryOption {
	return func(q *GetMoreQuery) {
		q.maxBatchBytes = n
	}
}

// NewGetMoreQuery creates a GetMoreQuery over the given catalog and cursor
// registry.
func NewGetMoreQuery(cat catalog.Catalog, reg *cursor.Registry, opts ...GetMoreQueryOption) *GetMoreQuery {
	q := &GetMoreQuery{
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

// Execute pins the cursor, replays the next batch, and either re-parks the
// pipeline or retires the cursor when it is drained (CursorID 0 in the
// response). Boundary failures surface as cursor.ErrCursorNotFound and
// cursor.ErrCursorInUse.
func (q *GetMoreQuery) Execute(ctx context.Context, req *GetMoreRequest) (*CursorResponse, error) {
	ctx, span := tracer.Start(ctx, "GetMoreQuery.Execute", trace.WithAttributes(
		attribute.Int64("cursor_id", req.CursorID),
		attribute.Int64("batch_size", req.BatchSize),
	))
	defer span.End()

	requestID := uuid.NewString()

	ns, err := namespace.New(req.Database, req.Collection)
	if err != nil {
		return nil, err
	}

	pinned, err := q.registry.Pin(req.CursorID)
	if err != nil {
		return nil, fmt.Errorf("cursor %d: %w", req.CursorID, err)
	}

	// A cursor is only visible through the namespace it was created under.
	if pinned.Metadata().Namespace != ns {
		pinned.Release(cursor.CursorKept)
		return nil, fmt.Errorf("cursor %d in namespace %s: %w", req.CursorID, ns, cursor.ErrCursorNotFound)
	}

	// Registration only ever stores listIndexes cursor namespaces; anything
	// else cannot be continued by this query.
	target, ok := pinned.Metadata().Namespace.ListIndexesTarget()
	if !ok {
		pinned.Release(cursor.CursorKept)
		return nil, fmt.Errorf("cursor %d: %s is not a listIndexes cursor namespace", req.CursorID, ns)
	}

	snapshot, err := q.catalog.OpenSnapshot(ctx, target)
	if err != nil {
		pinned.Release(cursor.CursorKept)
		return nil, err
	}

	pipeline := pinned.Pipeline()
	pipeline.Reattach(snapshot)

	batch, err := exec.AssembleBatch(ctx, pipeline, req.BatchSize, q.maxBatchBytes)
	if err != nil {
		// Records already pulled for the failed batch cannot be pushed back,
		// so a resumed cursor would skip them. Retire the cursor; a retry
		// sees a clean not-found instead of a silently gapped stream.
		pinned.Release(cursor.CursorKilled)
		return nil, err
	}

	cursorID := req.CursorID
	if pipeline.IsExhausted() {
		pinned.Release(cursor.CursorExhausted)
		cursorID = 0
	} else {
		pipeline.Detach()
		pinned.Release(cursor.CursorKept)
	}

	q.logger.Debug("getMore",
		zap.String("request_id", requestID),
		zap.String("namespace", ns.String()),
		zap.Int("batch", len(batch.Docs)),
		zap.Int64("cursor_id", cursorID),
	)

	return &CursorResponse{
		CursorID:  cursorID,
		Namespace: ns.String(),
		Batch:     batch.Docs,
	}, nil
}
