package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		database   string
		collection string
		wantErr    bool
	}{
		{name: "valid", database: "db", collection: "coll"},
		{name: "empty collection", database: "db", collection: "", wantErr: true},
		{name: "empty database", database: "", collection: "coll", wantErr: true},
		{name: "database with space", database: "d b", collection: "coll", wantErr: true},
		{name: "database with dot", database: "d.b", collection: "coll", wantErr: true},
		{name: "collection with dot", database: "db", collection: "coll.sub"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ns, err := New(test.database, test.collection)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.database, ns.Database())
			require.Equal(t, test.collection, ns.Collection())
		})
	}
}

func TestParse(t *testing.T) {
	ns, err := Parse("db.coll.sub")
	require.NoError(t, err)
	require.Equal(t, "db", ns.Database())
	require.Equal(t, "coll.sub", ns.Collection())
	require.Equal(t, "db.coll.sub", ns.String())

	_, err = Parse("nodot")
	require.Error(t, err)
}

func TestForListIndexes(t *testing.T) {
	ns, err := New("test", "users")
	require.NoError(t, err)

	cursorNS := ns.ForListIndexes()
	require.Equal(t, "test.$cmd.listIndexes.users", cursorNS.String())

	target, ok := cursorNS.ListIndexesTarget()
	require.True(t, ok)
	require.Equal(t, ns, target)

	_, ok = ns.ListIndexesTarget()
	require.False(t, ok)
}
