package ingest

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// TrainOptions controls Lloyd's-algorithm training (§4.G step 2).
type TrainOptions struct {
	MaxIterations int
	Tolerance     float64
	InitMethod    string // "kmeans++" or "random"
	Seed          int64
}

// trainKMeans runs Lloyd's algorithm over sample (KindF32, one training
// vector per row) and returns P centroids of the same dimension.
func trainKMeans(sample *vecmath.Matrix, p int, opts TrainOptions) *vecmath.Matrix {
	n, d := sample.Rows, sample.Cols
	rng := rand.New(rand.NewSource(opts.Seed))
	if opts.Seed == 0 {
		rng = rand.New(rand.NewSource(1))
	}

	centroids := initCentroids(sample, p, opts.InitMethod, rng)

	maxIters := opts.MaxIterations
	if maxIters <= 0 {
		maxIters = 25
	}

	assign := make([]int, n)
	sumBuf := make([][]float64, p)
	counts := make([]int, p)
	for i := range sumBuf {
		sumBuf[i] = make([]float64, d)
	}

	for iter := 0; iter < maxIters; iter++ {
		for i := range sumBuf {
			for j := range sumBuf[i] {
				sumBuf[i][j] = 0
			}
			counts[i] = 0
		}

		row := make([]float32, d)
		for i := 0; i < n; i++ {
			sample.RowInto(i, row)
			best, _ := nearestCentroid(row, centroids)
			assign[i] = best
			counts[best]++
			accumulate(sumBuf[best], row)
		}

		shifts := make([]float64, 0, p)
		newCentroid := make([]float32, d)
		for c := 0; c < p; c++ {
			if counts[c] == 0 {
				continue // keep the previous centroid, matching Lloyd's with empty-cluster handling
			}
			mean := sumBuf[c]
			floats.Scale(1/float64(counts[c]), mean)
			for j := range newCentroid {
				newCentroid[j] = float32(mean[j])
			}
			shifts = append(shifts, float64(vecmath.SquaredL2Vectors(centroids.Row(c), newCentroid)))
			centroids.SetRow(c, newCentroid)
		}

		if len(shifts) > 0 && stat.Mean(shifts, nil) < opts.Tolerance {
			break
		}
	}

	return centroids
}

func initCentroids(sample *vecmath.Matrix, p int, method string, rng *rand.Rand) *vecmath.Matrix {
	n, d := sample.Rows, sample.Cols
	centroids := vecmath.NewMatrix(vecmath.KindF32, p, d)

	if method == "random" {
		perm := rng.Perm(n)
		for c := 0; c < p; c++ {
			centroids.SetRow(c, sample.Row(perm[c%n]))
		}
		return centroids
	}

	// kmeans++ seeding: first centroid uniform, subsequent centroids
	// chosen proportional to squared distance from the nearest already-
	// chosen centroid.
	first := rng.Intn(n)
	centroids.SetRow(0, sample.Row(first))

	dist2 := make([]float64, n)
	row := make([]float32, d)
	for c := 1; c < p; c++ {
		var total float64
		for i := 0; i < n; i++ {
			sample.RowInto(i, row)
			_, best := nearestCentroidAmong(row, centroids, c)
			d2 := float64(best)
			dist2[i] = d2
			total += d2
		}
		if total == 0 {
			centroids.SetRow(c, sample.Row(rng.Intn(n)))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := n - 1
		for i := 0; i < n; i++ {
			cum += dist2[i]
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids.SetRow(c, sample.Row(chosen))
	}
	return centroids
}

// nearestCentroid returns the closest centroid id (over all P rows) and
// its squared distance.
func nearestCentroid(row []float32, centroids *vecmath.Matrix) (int, float32) {
	return nearestCentroidAmong(row, centroids, centroids.Rows)
}

// nearestCentroidAmong restricts the search to centroid rows [0, limit),
// used during kmeans++ seeding before later rows are populated.
func nearestCentroidAmong(row []float32, centroids *vecmath.Matrix, limit int) (int, float32) {
	best := -1
	var bestDist float32
	for c := 0; c < limit; c++ {
		d := vecmath.SquaredL2(row, centroids, c)
		if best == -1 || d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

func accumulate(sum []float64, row []float32) {
	for j, v := range row {
		sum[j] += float64(v)
	}
}
