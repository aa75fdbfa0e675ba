package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/meridiandb/meridian/pkg/namespace"
)

func mustNS(t *testing.T, db, coll string) namespace.Namespace {
	t.Helper()
	ns, err := namespace.New(db, coll)
	require.NoError(t, err)
	return ns
}

func indexSpec(t *testing.T, name string, keys bson.D) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.D{
		{Key: "v", Value: int32(2)},
		{Key: "key", Value: keys},
		{Key: "name", Value: name},
	})
	require.NoError(t, err)
	return raw
}

func TestMemoryCatalogSeedsIDIndex(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	ns := mustNS(t, "test", "users")

	require.NoError(t, cat.CreateCollection(ns))
	require.Error(t, cat.CreateCollection(ns))

	names, err := cat.ListIndexNames(ctx, ns)
	require.NoError(t, err)
	require.Equal(t, []string{"_id_"}, names)

	spec, err := cat.IndexSpec(ctx, ns, "_id_")
	require.NoError(t, err)
	name, err := spec.LookupErr("name")
	require.NoError(t, err)
	require.Equal(t, "_id_", name.StringValue())
}

func TestMemoryCatalogCreateIndexPreservesOrder(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	ns := mustNS(t, "test", "users")
	require.NoError(t, cat.CreateCollection(ns))

	require.NoError(t, cat.CreateIndex(ns, indexSpec(t, "email_1", bson.D{{Key: "email", Value: int32(1)}})))
	require.NoError(t, cat.CreateIndex(ns, indexSpec(t, "age_-1", bson.D{{Key: "age", Value: int32(-1)}})))

	names, err := cat.ListIndexNames(ctx, ns)
	require.NoError(t, err)
	require.Equal(t, []string{"_id_", "email_1", "age_-1"}, names)

	// Duplicate names are rejected.
	require.Error(t, cat.CreateIndex(ns, indexSpec(t, "email_1", bson.D{{Key: "email", Value: int32(1)}})))

	// Specs without a name are rejected.
	anon, err := bson.Marshal(bson.D{{Key: "v", Value: int32(2)}})
	require.NoError(t, err)
	require.Error(t, cat.CreateIndex(ns, anon))
}

func TestMemoryCatalogNotFound(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	ns := mustNS(t, "test", "missing")

	_, err := cat.ListIndexNames(ctx, ns)
	require.ErrorIs(t, err, ErrNamespaceNotFound)

	_, err = cat.IndexSpec(ctx, ns, "_id_")
	require.ErrorIs(t, err, ErrNamespaceNotFound)

	_, err = cat.OpenSnapshot(ctx, ns)
	require.ErrorIs(t, err, ErrNamespaceNotFound)

	err = cat.CreateIndex(ns, indexSpec(t, "x_1", bson.D{{Key: "x", Value: int32(1)}}))
	require.ErrorIs(t, err, ErrNamespaceNotFound)

	require.NoError(t, cat.CreateCollection(ns))
	_, err = cat.IndexSpec(ctx, ns, "nope")
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestMemoryCatalogSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	ns := mustNS(t, "test", "users")
	require.NoError(t, cat.CreateCollection(ns))

	snap, err := cat.OpenSnapshot(ctx, ns)
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		cat.WaitForSnapshots()
		close(released)
	}()

	snap.Release()
	// Release is idempotent.
	snap.Release()

	<-released
}
