package updatelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.OpenStore(filepath.Join(dir, "group.db"), storage.Options{ZstdLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log, err := Create(context.Background(), store, "updates", 3)
	require.NoError(t, err)
	return log
}

func TestAppend_RejectsTimestampAtOrBeforeLatestIngestion(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	err := log.Append(ctx, []Op{{ExternalID: 1, Vector: []float32{1, 2, 3}}}, 100, 100)
	require.Error(t, err)
	assert.Equal(t, tdberrors.ErrCodeTimestampBeforeLatestIngestion, tdberrors.GetCode(err))

	err = log.Append(ctx, []Op{{ExternalID: 1, Vector: []float32{1, 2, 3}}}, 50, 100)
	require.Error(t, err)
}

func TestScan_PartitionsTombstonesFromAdds(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, []Op{
		{ExternalID: 1, Vector: []float32{1, 1, 1}},
		{ExternalID: 2, Vector: nil},
	}, 110, 100))

	deleted, added, err := log.Scan(ctx, storage.TSRange{Lo: 0, Hi: 200})
	require.NoError(t, err)

	_, isDeleted := deleted[2]
	assert.True(t, isDeleted)
	require.Len(t, added, 1)
	assert.Equal(t, uint64(1), added[0].ID)
	assert.Equal(t, []float32{1, 1, 1}, added[0].Vector)
}

func TestScan_LastWriteWinsOnReplace(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, []Op{{ExternalID: 5, Vector: []float32{1, 0, 0}}}, 110, 100))
	require.NoError(t, log.Append(ctx, []Op{{ExternalID: 5, Vector: []float32{0, 1, 0}}}, 120, 100))

	_, added, err := log.Scan(ctx, storage.TSRange{Lo: 0, Hi: 200})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, []float32{0, 1, 0}, added[0].Vector)
}

func TestFragmentCount_TracksAppends(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, []Op{{ExternalID: 1, Vector: []float32{1, 1, 1}}}, 110, 100))
	require.NoError(t, log.Append(ctx, []Op{{ExternalID: 2, Vector: []float32{2, 2, 2}}}, 120, 100))

	n, err := log.FragmentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, log.Consolidate(ctx))
	n, err = log.FragmentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
