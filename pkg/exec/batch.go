package exec

import (
	"context"
	"errors"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// Batch is a size-bounded run of results assembled from a pipeline.
type Batch struct {
	Docs  []bson.Raw
	Bytes int
}

// AssembleBatch drains p under a count budget and a cumulative byte budget.
//
// The byte budget is a soft cap honored at record granularity: the first
// record is always included even if it alone exceeds maxBytes, so a batch is
// never empty while data remains. The first subsequent record that would
// overflow the budget is redelivered into the pipeline rather than discarded,
// and assembly stops. On success the pipeline is positioned exactly at the
// first undelivered record, or is exhausted.
//
// A pull error discards the partial batch without rewinding the pipeline, so
// records pulled before the failure are unrecoverable; the caller must tear
// the pipeline down rather than resume it.
//
// A maxCount < 1 means no count bound.
func AssembleBatch(ctx context.Context, p *Pipeline, maxCount int64, maxBytes int) (Batch, error) {
	if maxCount < 1 {
		maxCount = math.MaxInt64
	}

	var batch Batch
	for int64(len(batch.Docs)) < maxCount {
		id, err := p.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEOF) {
				break
			}
			return Batch{}, err
		}

		doc := p.Doc(id)
		if len(batch.Docs) > 0 && batch.Bytes+len(doc) > maxBytes {
			p.Redeliver(id)
			break
		}

		batch.Docs = append(batch.Docs, doc)
		batch.Bytes += len(doc)
	}

	return batch, nil
}
