package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

func twoClusterSample() *vecmath.Matrix {
	rows := [][]float32{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
		{100, 100}, {100, 101}, {101, 100}, {101, 101},
	}
	m := vecmath.NewMatrix(vecmath.KindF32, len(rows), 2)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}

func TestTrainKMeans_SeparatesObviousClusters(t *testing.T) {
	sample := twoClusterSample()
	centroids := trainKMeans(sample, 2, TrainOptions{MaxIterations: 20, Tolerance: 1e-6, InitMethod: "kmeans++", Seed: 7})
	require.Equal(t, 2, centroids.Rows)

	c0, c1 := centroids.Row(0), centroids.Row(1)
	lowCluster := c0[0] < 50
	if lowCluster {
		assert.InDelta(t, 0.5, c0[0], 1.0)
		assert.InDelta(t, 100.5, c1[0], 1.0)
	} else {
		assert.InDelta(t, 100.5, c0[0], 1.0)
		assert.InDelta(t, 0.5, c1[0], 1.0)
	}
}

func TestTrainKMeans_RandomInitProducesPCentroids(t *testing.T) {
	sample := twoClusterSample()
	centroids := trainKMeans(sample, 3, TrainOptions{MaxIterations: 5, Tolerance: 1e-6, InitMethod: "random", Seed: 1})
	assert.Equal(t, 3, centroids.Rows)
	assert.Equal(t, 2, centroids.Cols)
}

func TestNearestCentroid_PicksClosest(t *testing.T) {
	centroids := vecmath.NewMatrix(vecmath.KindF32, 2, 2)
	centroids.SetRow(0, []float32{0, 0})
	centroids.SetRow(1, []float32{10, 10})

	best, dist := nearestCentroid([]float32{9, 9}, centroids)
	assert.Equal(t, 1, best)
	assert.Equal(t, float32(2), dist)
}
