package ingest

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// assignAll computes, for every one of base's N rows, the index of its
// nearest centroid (§4.G step 3), parallelized over contiguous row
// blocks the same way internal/flatindex splits column blocks.
func assignAll(ctx context.Context, base, centroids *vecmath.Matrix, workers int) ([]int, error) {
	n := base.Rows
	assign := make([]int, n)
	if n == 0 {
		return assign, nil
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	blockSize := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		start := w * blockSize
		end := start + blockSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		g.Go(func() error {
			row := make([]float32, base.Cols)
			for i := start; i < end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				base.RowInto(i, row)
				best, _ := nearestCentroid(row, centroids)
				assign[i] = best
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assign, nil
}

// histogramAndOffsets computes per-partition counts and the prefix-sum
// offset index I (§4.G step 4), enforcing invariant 1's I[0]=0, I[P]=N.
func histogramAndOffsets(assign []int, p int) (counts []int, offsets []int) {
	counts = make([]int, p)
	for _, a := range assign {
		counts[a]++
	}
	offsets = make([]int, p+1)
	for i := 0; i < p; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	return counts, offsets
}
