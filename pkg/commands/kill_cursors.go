package commands

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/cursor"
	"github.com/meridiandb/meridian/pkg/logger"
)

// KillCursorsRequest asks for the listed cursors to be destroyed.
type KillCursorsRequest struct {
	CursorIDs []int64
}

// KillCursorsResponse partitions the requested ids by outcome. An id in InUse
// was pinned by an in-flight request and may be retried once that request
// finishes.
type KillCursorsResponse struct {
	Killed   []int64
	NotFound []int64
	InUse    []int64
}

// KillCursorsQuery destroys cursors on request, honoring the pin protocol: a
// pinned cursor is never freed out from under its owner.
type KillCursorsQuery struct {
	registry *cursor.Registry
	logger   logger.Logger
}

type KillCursorsQueryOption func(*KillCursorsQuery)

func WithKillCursorsQueryLogger(l logger.Logger) KillCursorsQueryOption {
	return func(q *KillCursorsQuery) {
		q.logger = l
	}
}

// NewKillCursorsQuery creates a KillCursorsQuery over the given registry.
func NewKillCursorsQuery(reg *cursor.Registry, opts ...KillCursorsQueryOption) *KillCursorsQuery {
	q := &KillCursorsQuery{
		registry: reg,
		logger:   logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Execute attempts to kill every requested cursor and reports the per-id
// outcome. It never fails as a whole.
func (q *KillCursorsQuery) Execute(ctx context.Context, req *KillCursorsRequest) (*KillCursorsResponse, error) {
	_, span := tracer.Start(ctx, "KillCursorsQuery.Execute")
	defer span.End()

	resp := &KillCursorsResponse{}
	for _, id := range req.CursorIDs {
		err := q.registry.Kill(id)
		switch {
		case err == nil:
			resp.Killed = append(resp.Killed, id)
		case errors.Is(err, cursor.ErrCursorNotFound):
			resp.NotFound = append(resp.NotFound, id)
		case errors.Is(err, cursor.ErrCursorInUse):
			resp.InUse = append(resp.InUse, id)
		default:
			return nil, err
		}
	}

	q.logger.Debug("killCursors",
		zap.Int("killed", len(resp.Killed)),
		zap.Int("not_found", len(resp.NotFound)),
		zap.Int("in_use", len(resp.InUse)),
	)
	return resp, nil
}
