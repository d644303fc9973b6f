package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2_F32(t *testing.T) {
	m := NewMatrix(KindF32, 2, 3)
	m.SetRow(0, []float32{1, 2, 3})
	m.SetRow(1, []float32{4, 5, 6})

	q := []float32{1, 2, 3}
	assert.Equal(t, float32(0), SquaredL2(q, m, 0))
	assert.InDelta(t, float32(27), SquaredL2(q, m, 1), 1e-6)
}

func TestSquaredL2_U8(t *testing.T) {
	m := NewMatrix(KindU8, 1, 2)
	m.SetRow(0, []float32{10, 20})

	q := []float32{10, 25}
	assert.InDelta(t, float32(25), SquaredL2(q, m, 0), 1e-6)
}

func TestSquaredL2_I8(t *testing.T) {
	m := NewMatrix(KindI8, 1, 2)
	m.SetRow(0, []float32{-10, 20})

	q := []float32{-10, 20}
	assert.Equal(t, float32(0), SquaredL2(q, m, 0))
}

func TestSquaredL2_PanicsOnShapeMismatch(t *testing.T) {
	m := NewMatrix(KindF32, 1, 3)
	assert.Panics(t, func() {
		SquaredL2([]float32{1, 2}, m, 0)
	})
}

func TestHeapSelector_RetainsKSmallest(t *testing.T) {
	s := NewHeapSelector(2)
	s.Push(Neighbor{Dist: 5, ID: 1})
	s.Push(Neighbor{Dist: 1, ID: 2})
	s.Push(Neighbor{Dist: 3, ID: 3})

	got := s.Results()
	require.Len(t, got, 2)
	assert.Equal(t, Neighbor{Dist: 1, ID: 2}, got[0])
	assert.Equal(t, Neighbor{Dist: 3, ID: 3}, got[1])
}

func TestHeapSelector_TieBreaksBySmallerID(t *testing.T) {
	s := NewHeapSelector(1)
	s.Push(Neighbor{Dist: 1, ID: 9})
	s.Push(Neighbor{Dist: 1, ID: 2})

	got := s.Results()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].ID)
}

func TestHeapSelector_Merge(t *testing.T) {
	a := NewHeapSelector(2)
	a.Push(Neighbor{Dist: 1, ID: 1})
	a.Push(Neighbor{Dist: 2, ID: 2})

	b := NewHeapSelector(2)
	b.Push(Neighbor{Dist: 0.5, ID: 3})
	b.Push(Neighbor{Dist: 10, ID: 4})

	a.Merge(b)
	got := a.Results()
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].ID)
	assert.Equal(t, uint64(1), got[1].ID)
}

func TestNthSelector_MatchesHeapSelector(t *testing.T) {
	candidates := []Neighbor{
		{Dist: 5, ID: 1},
		{Dist: 1, ID: 2},
		{Dist: 3, ID: 3},
		{Dist: 2, ID: 4},
	}

	heapSel := NewHeapSelector(2)
	for _, c := range candidates {
		heapSel.Push(c)
	}

	nthSel := NewNthSelector(2)
	nthSel.PushAll(candidates)

	assert.Equal(t, heapSel.Results(), nthSel.Results())
}

func TestPadSentinel_PadsShortResults(t *testing.T) {
	results := []Neighbor{{Dist: 1, ID: 10}}
	padded := PadSentinel(results, 3)

	require.Len(t, padded, 3)
	assert.Equal(t, Neighbor{Dist: 1, ID: 10}, padded[0])
	assert.Equal(t, float32(math.Inf(1)), padded[1].Dist)
	assert.Equal(t, uint64(SentinelID), padded[1].ID)
	assert.Equal(t, uint64(SentinelID), padded[2].ID)
}

func TestPadSentinel_TruncatesLongResults(t *testing.T) {
	results := []Neighbor{{Dist: 1, ID: 1}, {Dist: 2, ID: 2}, {Dist: 3, ID: 3}}
	padded := PadSentinel(results, 2)
	assert.Len(t, padded, 2)
}
