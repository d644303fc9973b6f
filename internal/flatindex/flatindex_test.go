package flatindex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

func buildBase(t *testing.T, vectors [][]float32) *vecmath.Matrix {
	t.Helper()
	m := vecmath.NewMatrix(vecmath.KindF32, len(vectors), len(vectors[0]))
	for i, v := range vectors {
		m.SetRow(i, v)
	}
	return m
}

func TestQuery_RecallIsExactOverSmallBase(t *testing.T) {
	base := buildBase(t, [][]float32{
		{0, 0}, {10, 10}, {1, 1}, {5, 5}, {2, 2},
	})
	idx := New(base)

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 2)
	q.SetRow(0, []float32{0, 0})

	D, I, err := idx.Query(context.Background(), q, 3)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 2, 4}, I[0])
	assert.InDelta(t, float32(0), D[0][0], 1e-6)
}

func TestQuery_ShapeMismatch(t *testing.T) {
	base := buildBase(t, [][]float32{{0, 0, 0}})
	idx := New(base)

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 2)
	_, _, err := idx.Query(context.Background(), q, 1)
	require.Error(t, err)
	assert.Equal(t, tdberrors.ErrCodeShapeMismatch, tdberrors.GetCode(err))
}

func TestQuery_PadsWhenKExceedsBaseSize(t *testing.T) {
	base := buildBase(t, [][]float32{{0, 0}, {1, 1}})
	idx := New(base)

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 2)
	q.SetRow(0, []float32{0, 0})

	D, I, err := idx.Query(context.Background(), q, 5)
	require.NoError(t, err)

	require.Len(t, I[0], 5)
	assert.Equal(t, uint64(vecmath.SentinelID), I[0][4])
	assert.True(t, math.IsInf(float64(D[0][4]), 1))
}

func TestQuery_EmptyBaseReturnsAllSentinel(t *testing.T) {
	base := vecmath.NewMatrix(vecmath.KindF32, 0, 2)
	idx := New(base)

	q := vecmath.NewMatrix(vecmath.KindF32, 1, 2)
	D, I, err := idx.Query(context.Background(), q, 3)
	require.NoError(t, err)

	for i := range I[0] {
		assert.Equal(t, uint64(vecmath.SentinelID), I[0][i])
		assert.True(t, math.IsInf(float64(D[0][i]), 1))
	}
}

func TestQuery_MultipleRowsIndependent(t *testing.T) {
	base := buildBase(t, [][]float32{{0, 0}, {100, 100}})
	idx := New(base)

	q := vecmath.NewMatrix(vecmath.KindF32, 2, 2)
	q.SetRow(0, []float32{0, 0})
	q.SetRow(1, []float32{100, 100})

	D, I, err := idx.Query(context.Background(), q, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), I[0][0])
	assert.Equal(t, uint64(1), I[1][0])
	_ = D
}
