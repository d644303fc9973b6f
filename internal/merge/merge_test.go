package merge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudoslav/TileDB-Vector-Search/internal/flatindex"
	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/updatelog"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

func newTestMerger(t *testing.T, base [][]float32, ingestionTimestamps []uint64) (*Merger, *updatelog.Log) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.OpenStore(filepath.Join(dir, "group.db"), storage.Options{ZstdLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log, err := updatelog.Create(context.Background(), store, "updates", len(base[0]))
	require.NoError(t, err)

	m := vecmath.NewMatrix(vecmath.KindF32, len(base), len(base[0]))
	for i, v := range base {
		m.SetRow(i, v)
	}
	flat := flatindex.New(m)

	merger := New(flat.Query, log, ingestionTimestamps)
	return merger, log
}

func TestQuery_NoUpdates_MatchesBaseIndex(t *testing.T) {
	merger, _ := newTestMerger(t, [][]float32{
		{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}, {4, 4, 4},
	}, []uint64{10})

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{2, 2, 2})

	D, I, err := merger.Query(context.Background(), q, 3, Latest())
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3}, I[0])
	_ = D
}

func TestQuery_DeleteInvalidatesBaseResult(t *testing.T) {
	merger, log := newTestMerger(t, [][]float32{
		{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}, {4, 4, 4},
	}, []uint64{10})

	require.NoError(t, log.Append(context.Background(), []updatelog.Op{
		{ExternalID: 1, Vector: nil},
		{ExternalID: 3, Vector: nil},
	}, 20, 10))

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{2, 2, 2})

	D, I, err := merger.Query(context.Background(), q, 3, Latest())
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 0, 4}, I[0])
	_ = D
}

func TestQuery_ReplaceWinsOverOriginal(t *testing.T) {
	merger, log := newTestMerger(t, [][]float32{
		{0, 0, 0}, {1, 1, 1}, {2, 2, 2},
	}, []uint64{10})

	require.NoError(t, log.Append(context.Background(), []updatelog.Op{
		{ExternalID: 1, Vector: []float32{100, 100, 100}},
	}, 20, 10))

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{100, 100, 100})

	D, I, err := merger.Query(context.Background(), q, 1, Latest())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), I[0][0])
	assert.InDelta(t, float32(0), D[0][0], 1e-6)
}

func TestQuery_TimeTravel_AtSeesOnlyPriorReplacements(t *testing.T) {
	// id0 is kept far from every query vector used below so the
	// degenerate (dist=0, id=0) gate never fires in this test.
	merger, log := newTestMerger(t, [][]float32{
		{1000, 1000, 1000}, {0, 0, 0},
	}, []uint64{10})

	require.NoError(t, log.Append(context.Background(), []updatelog.Op{
		{ExternalID: 1, Vector: []float32{50, 50, 50}},
	}, 20, 10))

	before := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	before.SetRow(0, []float32{0, 0, 0})

	D, I, err := merger.Query(context.Background(), before, 1, At(15))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), I[0][0])
	assert.InDelta(t, float32(0), D[0][0], 1e-6)

	after := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	after.SetRow(0, []float32{50, 50, 50})

	D, I, err = merger.Query(context.Background(), after, 1, At(25))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), I[0][0])
	assert.InDelta(t, float32(0), D[0][0], 1e-6)
}

func TestQuery_RangeAfterEarliestIngestion_IsUpdatesOnlyView(t *testing.T) {
	merger, log := newTestMerger(t, [][]float32{
		{0, 0, 0},
	}, []uint64{100})

	require.NoError(t, log.Append(context.Background(), []updatelog.Op{
		{ExternalID: 5, Vector: []float32{1, 1, 1}},
	}, 200, 100))

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{1, 1, 1})

	D, I, err := merger.Query(context.Background(), q, 2, Range(150, 250))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), I[0][0])
	assert.Equal(t, uint64(vecmath.SentinelID), I[0][1])
	_ = D
}

func TestQuery_DegenerateZeroIDZeroDistIsInvalidatedByDefault(t *testing.T) {
	merger, _ := newTestMerger(t, [][]float32{
		{0, 0, 0}, {5, 5, 5},
	}, []uint64{10})

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{0, 0, 0})

	D, I, err := merger.Query(context.Background(), q, 2, Latest())
	require.NoError(t, err)
	assert.NotEqual(t, uint64(0), I[0][0])
	_ = D
}

func TestQuery_StrictGateAllowsZeroID(t *testing.T) {
	merger, _ := newTestMerger(t, [][]float32{
		{0, 0, 0}, {5, 5, 5},
	}, []uint64{10})
	merger.GateZeroIDOnUnwrittenColumn = true

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 3)
	q.SetRow(0, []float32{0, 0, 0})

	D, I, err := merger.Query(context.Background(), q, 1, Latest())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), I[0][0])
	_ = D
}
