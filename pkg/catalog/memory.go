package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"

	"github.com/meridiandb/meridian/pkg/namespace"
)

var tracer = otel.Tracer("meridian/pkg/catalog")

type collectionEntry struct {
	// ident is the storage-level identity of the collection, distinct from
	// its namespace so renames keep index metadata attached.
	ident string

	// order preserves index creation order for listing.
	order []string
	specs map[string]bson.Raw
}

// MemoryCatalog is an ephemeral in-memory metadata catalog. Instances may be
// safely shared by multiple goroutines.
type MemoryCatalog struct {
	// map: namespace string => collection metadata
	collections map[string]*collectionEntry // GUARDED_BY(mu).
	mu          sync.RWMutex

	snapshots sync.WaitGroup
}

var _ Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		collections: make(map[string]*collectionEntry),
	}
}

// CreateCollection registers ns and seeds its mandatory _id_ index.
func (c *MemoryCatalog) CreateCollection(ns namespace.Namespace) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.collections[ns.String()]; ok {
		return fmt.Errorf("collection %s already exists", ns)
	}

	idSpec, err := bson.Marshal(bson.D{
		{Key: "v", Value: int32(2)},
		{Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}},
		{Key: "name", Value: "_id_"},
	})
	if err != nil {
		return err
	}

	c.collections[ns.String()] = &collectionEntry{
		ident: ulid.Make().String(),
		order: []string{"_id_"},
		specs: map[string]bson.Raw{"_id_": idSpec},
	}
	return nil
}

// CreateIndex records an index spec on ns. The spec document must carry the
// index name under its "name" field.
func (c *MemoryCatalog) CreateIndex(ns namespace.Namespace, spec bson.Raw) error {
	name, err := spec.LookupErr("name")
	if err != nil {
		return fmt.Errorf("index spec has no name: %w", err)
	}
	nameStr, ok := name.StringValueOK()
	if !ok {
		return fmt.Errorf("index name is not a string")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.collections[ns.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}
	if _, ok := entry.specs[nameStr]; ok {
		return fmt.Errorf("index %s already exists on %s", nameStr, ns)
	}

	entry.order = append(entry.order, nameStr)
	entry.specs[nameStr] = spec
	return nil
}

// ListIndexNames see [Catalog].ListIndexNames.
func (c *MemoryCatalog) ListIndexNames(ctx context.Context, ns namespace.Namespace) ([]string, error) {
	_, span := tracer.Start(ctx, "memory.ListIndexNames")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.collections[ns.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}

	names := make([]string, len(entry.order))
	copy(names, entry.order)
	return names, nil
}

// IndexSpec see [Catalog].IndexSpec.
func (c *MemoryCatalog) IndexSpec(ctx context.Context, ns namespace.Namespace, name string) (bson.Raw, error) {
	_, span := tracer.Start(ctx, "memory.IndexSpec")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.collections[ns.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}
	spec, ok := entry.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, name, ns)
	}
	return spec, nil
}

// OpenSnapshot see [Catalog].OpenSnapshot. The memory catalog has no real
// point-in-time machinery; the snapshot only pins the namespace's existence.
func (c *MemoryCatalog) OpenSnapshot(ctx context.Context, ns namespace.Namespace) (Snapshot, error) {
	_, span := tracer.Start(ctx, "memory.OpenSnapshot")
	defer span.End()

	c.mu.RLock()
	_, ok := c.collections[ns.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, ns)
	}

	c.snapshots.Add(1)
	return &memorySnapshot{catalog: c}, nil
}

// WaitForSnapshots blocks until every open snapshot has been released. Used
// in tests to prove that detach and teardown release their handles.
func (c *MemoryCatalog) WaitForSnapshots() {
	c.snapshots.Wait()
}

type memorySnapshot struct {
	catalog *MemoryCatalog
	once    sync.Once
}

func (s *memorySnapshot) Release() {
	s.once.Do(s.catalog.snapshots.Done)
}
