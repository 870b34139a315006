package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	PK    string  `json:"pk"`
	Score float64 `json:"score"`
}

func TestTable_PutGetList(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			table := NewTable[record](backend, "records")

			require.NoError(t, table.Put(ctx, "b", record{PK: "b", Score: 2}))
			require.NoError(t, table.Put(ctx, "a", record{PK: "a", Score: 1}))
			require.NoError(t, table.Put(ctx, "c", record{PK: "c", Score: 3}))

			got, err := table.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, record{PK: "b", Score: 2}, got)

			all, err := table.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].PK)
			assert.Equal(t, "c", all[2].PK)

			keys, err := table.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, keys)

			n, err := table.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
		})
	}
}

func TestTable_Filter(t *testing.T) {
	ctx := context.Background()
	table := NewTable[record](NewMemoryBackend(), "records")

	for i, pk := range []string{"x", "y", "z"} {
		require.NoError(t, table.Put(ctx, pk, record{PK: pk, Score: float64(i)}))
	}

	high, err := table.Filter(ctx, func(r record) bool { return r.Score >= 1 })
	require.NoError(t, err)
	assert.Equal(t, []record{{PK: "y", Score: 1}, {PK: "z", Score: 2}}, high)
}

func TestTable_GetMissing(t *testing.T) {
	table := NewTable[record](NewMemoryBackend(), "records")

	_, err := table.Get(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}

func TestTable_GetCorrupt(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, "records", "bad", []byte("not json")))

	table := NewTable[record](backend, "records")
	_, err := table.Get(ctx, "bad")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestTable_DumpRestore(t *testing.T) {
	ctx := context.Background()
	src := NewTable[record](NewMemoryBackend(), "records")
	require.NoError(t, src.Put(ctx, "a", record{PK: "a", Score: 1}))
	require.NoError(t, src.Put(ctx, "b", record{PK: "b", Score: 2}))

	dump, err := src.Dump(ctx)
	require.NoError(t, err)

	dst := NewTable[record](NewMemoryBackend(), "records")
	require.NoError(t, dst.Put(ctx, "stale", record{PK: "stale"}))
	require.NoError(t, dst.Restore(ctx, dump))

	keys, err := dst.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestTable_DeleteClear(t *testing.T) {
	ctx := context.Background()
	table := NewTable[record](NewMemoryBackend(), "records")
	require.NoError(t, table.Put(ctx, "a", record{PK: "a"}))
	require.NoError(t, table.Put(ctx, "b", record{PK: "b"}))

	require.NoError(t, table.Delete(ctx, "a"))
	n, err := table.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, table.Clear(ctx))
	n, err = table.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "records", table.Bucket())
}
