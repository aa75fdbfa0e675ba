package commands

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/meridiandb/meridian/pkg/cursor"
	"github.com/meridiandb/meridian/pkg/exec"
	"github.com/meridiandb/meridian/pkg/namespace"
)

// openCursor seeds a catalog with extra indexes and opens a cursor whose
// first batch holds batchSize records.
func openCursor(t *testing.T, reg *cursor.Registry, extra int, batchSize int64) (*conflictCatalog, *CursorResponse) {
	t.Helper()

	ctx := context.Background()
	mem, _ := seedCatalog(t, extra)
	cat := &conflictCatalog{MemoryCatalog: mem}

	q := NewListIndexesQuery(cat, reg)
	resp, err := q.Execute(ctx, &ListIndexesRequest{
		Database:   "test",
		Collection: "users",
		BatchSize:  batchSize,
	})
	require.NoError(t, err)
	require.NotZero(t, resp.CursorID)
	return cat, resp
}

func TestGetMorePagesToExhaustion(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, first := openCursor(t, reg, 5, 2)

	got := batchNames(t, first.Batch)
	gm := NewGetMoreQuery(cat, reg)

	cursorID := first.CursorID
	pages := 0
	for cursorID != 0 {
		resp, err := gm.Execute(ctx, &GetMoreRequest{
			CursorID:   cursorID,
			Database:   "test",
			Collection: "$cmd.listIndexes.users",
			BatchSize:  2,
		})
		require.NoError(t, err)
		require.Equal(t, "test.$cmd.listIndexes.users", resp.Namespace)

		got = append(got, batchNames(t, resp.Batch)...)
		cursorID = resp.CursorID
		pages++
	}

	require.Equal(t, 3, pages)
	want := []string{"_id_", "field0_1", "field1_1", "field2_1", "field3_1", "field4_1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("paged names mismatch (-want +got):\n%s", diff)
	}

	// The retired cursor is gone for good.
	_, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.ErrorIs(t, err, cursor.ErrCursorNotFound)
	require.Zero(t, reg.Len())

	cat.WaitForSnapshots()
}

func TestGetMoreUnknownCursor(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, _ := seedCatalog(t, 0)
	gm := NewGetMoreQuery(cat, reg)

	_, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   424242,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.ErrorIs(t, err, cursor.ErrCursorNotFound)
}

func TestGetMoreWrongNamespace(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, first := openCursor(t, reg, 3, 1)
	gm := NewGetMoreQuery(cat, reg)

	_, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.orders",
	})
	require.ErrorIs(t, err, cursor.ErrCursorNotFound)

	// The mismatch must not wedge or destroy the cursor.
	resp, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.NoError(t, err)
	require.Zero(t, resp.CursorID)
}

// cancelAfterContext reports cancellation once its budget of Err checks is
// spent, simulating a deadline that expires partway through batch assembly.
type cancelAfterContext struct {
	context.Context
	pullsLeft int
}

func (c *cancelAfterContext) Err() error {
	if c.pullsLeft <= 0 {
		return context.Canceled
	}
	c.pullsLeft--
	return nil
}

func TestGetMoreMidBatchCancellationRetiresCursor(t *testing.T) {
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, first := openCursor(t, reg, 5, 1)
	gm := NewGetMoreQuery(cat, reg)

	// Cancellation strikes on the third pull, after two records have already
	// been taken off the source.
	ctx := &cancelAfterContext{Context: context.Background(), pullsLeft: 2}
	_, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.ErrorIs(t, err, context.Canceled)

	// The pulled records are unrecoverable, so the cursor must be retired:
	// a retry sees not-found rather than a stream missing those records.
	_, err = gm.Execute(context.Background(), &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.ErrorIs(t, err, cursor.ErrCursorNotFound)
	require.Zero(t, reg.Len())

	cat.WaitForSnapshots()
}

func TestGetMoreNonCursorNamespace(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, _ := seedCatalog(t, 0)

	doc, err := bson.Marshal(bson.D{{Key: "name", Value: "_id_"}})
	require.NoError(t, err)

	ws := exec.NewWorkingSet()
	id := ws.Allocate()
	ws.Get(id).Doc = doc
	source := exec.NewQueuedSource(ws)
	source.Load([]exec.RecordID{id})
	p := exec.NewPipeline(ws, source, nil)
	p.Detach()

	// A registration carrying a plain collection namespace is not a
	// continuable listIndexes cursor.
	ns, err := namespace.New("test", "users")
	require.NoError(t, err)
	cursorID := reg.Register(p, cursor.Metadata{Namespace: ns})

	gm := NewGetMoreQuery(cat, reg)
	_, err = gm.Execute(ctx, &GetMoreRequest{
		CursorID:   cursorID,
		Database:   "test",
		Collection: "users",
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, cursor.ErrCursorNotFound)

	// The cursor is left intact for an explicit kill.
	require.Equal(t, 1, reg.Len())
	require.NoError(t, reg.Kill(cursorID))
}

func TestGetMoreWhilePinnedIsRejected(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	cat, first := openCursor(t, reg, 3, 1)

	pinned, err := reg.Pin(first.CursorID)
	require.NoError(t, err)

	gm := NewGetMoreQuery(cat, reg)
	_, err = gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.ErrorIs(t, err, cursor.ErrCursorInUse)

	pinned.Release(cursor.CursorKept)

	// Serialized continuations proceed once the pin is released.
	resp, err := gm.Execute(ctx, &GetMoreRequest{
		CursorID:   first.CursorID,
		Database:   "test",
		Collection: "$cmd.listIndexes.users",
	})
	require.NoError(t, err)
	require.Len(t, resp.Batch, 3)
}
