package ingest

import (
	"math/rand"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// newSeededRand builds a deterministic source when seed is non-zero,
// falling back to a fixed default seed (matching trainKMeans) rather
// than wall-clock entropy, since Source sampling and k-means init should
// reproduce identically given the same seed.
func newSeededRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed))
}

// TrainingSampleSize implements §9 "a function of N and P": the default
// training sample size is min(N, max(256*P, 100_000)).
func TrainingSampleSize(n, p int) int {
	want := 256 * p
	if want < 100_000 {
		want = 100_000
	}
	if want > n {
		want = n
	}
	return want
}

// reservoirSample draws sampleSize row indices uniformly without
// replacement from [0, n) using reservoir sampling (§4.G step 1).
func reservoirSample(n, sampleSize int, rng *rand.Rand) []int {
	if sampleSize >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	reservoir := make([]int, sampleSize)
	for i := 0; i < sampleSize; i++ {
		reservoir[i] = i
	}
	for i := sampleSize; i < n; i++ {
		j := rng.Intn(i + 1)
		if j < sampleSize {
			reservoir[j] = i
		}
	}
	return reservoir
}

// buildSample materializes the sampled rows of base (decoded to f32,
// since training always operates on f32 regardless of the base's
// element kind per §4.G/§9).
func buildSample(base *vecmath.Matrix, idx []int) *vecmath.Matrix {
	m := vecmath.NewMatrix(vecmath.KindF32, len(idx), base.Cols)
	row := make([]float32, base.Cols)
	for i, bi := range idx {
		base.RowInto(bi, row)
		m.SetRow(i, row)
	}
	return m
}
