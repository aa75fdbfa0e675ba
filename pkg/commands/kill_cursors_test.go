package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/cursor"
)

func TestKillCursorsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := cursor.NewRegistry()
	defer reg.Close()

	_, live := openCursor(t, reg, 3, 1)
	_, pinnedResp := openCursor(t, reg, 3, 1)

	pinned, err := reg.Pin(pinnedResp.CursorID)
	require.NoError(t, err)

	kc := NewKillCursorsQuery(reg)
	resp, err := kc.Execute(ctx, &KillCursorsRequest{
		CursorIDs: []int64{live.CursorID, pinnedResp.CursorID, 31337},
	})
	require.NoError(t, err)

	require.Equal(t, []int64{live.CursorID}, resp.Killed)
	require.Equal(t, []int64{31337}, resp.NotFound)
	require.Equal(t, []int64{pinnedResp.CursorID}, resp.InUse)

	// Once the owner releases the pin, the kill goes through; a second kill
	// then reports not found.
	pinned.Release(cursor.CursorKept)

	resp, err = kc.Execute(ctx, &KillCursorsRequest{CursorIDs: []int64{pinnedResp.CursorID}})
	require.NoError(t, err)
	require.Equal(t, []int64{pinnedResp.CursorID}, resp.Killed)

	resp, err = kc.Execute(ctx, &KillCursorsRequest{CursorIDs: []int64{pinnedResp.CursorID}})
	require.NoError(t, err)
	require.Equal(t, []int64{pinnedResp.CursorID}, resp.NotFound)

	require.Zero(t, reg.Len())
}
