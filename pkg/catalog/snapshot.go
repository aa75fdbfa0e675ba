package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/meridiandb/meridian/pkg/namespace"
)

// RunSnapshotRead executes read until it completes without a write conflict.
// Each conflicted attempt is discarded wholesale and the read restarts from
// the top, so the caller only ever observes a result produced by a single
// uninterrupted attempt. Any non-conflict error propagates unchanged.
//
// No retry bound is imposed here; cancelling ctx is the backstop against a
// read that conflicts forever.
func RunSnapshotRead[T any](ctx context.Context, read func(ctx context.Context) (T, error)) (T, error) {
	var out T

	backoff := retry.WithCappedDuration(50*time.Millisecond, retry.NewFibonacci(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := read(ctx)
		if err != nil {
			if errors.Is(err, ErrWriteConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ReadIndexSpecs materializes every index spec on ns under one retry-safe
// snapshot read: the name listing and every spec fetch belong to the same
// attempt, and a conflict anywhere restarts the whole read.
func ReadIndexSpecs(ctx context.Context, cat Catalog, ns namespace.Namespace) ([]bson.Raw, error) {
	return RunSnapshotRead(ctx, func(ctx context.Context) ([]bson.Raw, error) {
		names, err := cat.ListIndexNames(ctx, ns)
		if err != nil {
			return nil, err
		}

		specs := make([]bson.Raw, 0, len(names))
		for _, name := range names {
			spec, err := cat.IndexSpec(ctx, ns, name)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return specs, nil
	})
}
