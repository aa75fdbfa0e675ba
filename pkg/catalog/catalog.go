// Package catalog defines the boundary to the metadata catalog a read command
// snapshots, together with an in-memory implementation and the retry-safe
// snapshot reader that shields callers from transient write conflicts.
package catalog

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/meridiandb/meridian/pkg/namespace"
)

var (
	// ErrWriteConflict signals that a concurrent mutation invalidated an
	// in-progress transactional read. The read must be restarted from the
	// top; partial results are worthless.
	ErrWriteConflict = errors.New("write conflict")

	// ErrNamespaceNotFound is returned when the target collection or its
	// database does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrIndexNotFound is returned when a named index does not exist on the
	// target collection.
	ErrIndexNotFound = errors.New("index not found")
)

// Snapshot pins a point-in-time view of the catalog on behalf of one request.
// It must be released when the request finishes or its pipeline detaches.
type Snapshot interface {
	Release()
}

// Catalog is the read surface of the metadata catalog. Reads may fail with
// ErrWriteConflict at any time; callers are expected to go through
// RunSnapshotRead rather than call these directly.
type Catalog interface {
	// ListIndexNames returns the names of all indexes on ns, in creation
	// order.
	ListIndexNames(ctx context.Context, ns namespace.Namespace) ([]string, error)

	// IndexSpec returns the full serialized spec of one index on ns.
	IndexSpec(ctx context.Context, ns namespace.Namespace, name string) (bson.Raw, error)

	// OpenSnapshot pins a point-in-time view of ns for one request.
	OpenSnapshot(ctx context.Context, ns namespace.Namespace) (Snapshot, error)
}
