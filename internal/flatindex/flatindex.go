// Package flatindex implements the exhaustive Flat index: brute-force
// squared-L2 against every base vector, parallelized over column blocks.
package flatindex

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// Index is a flat index over an in-memory base matrix.
type Index struct {
	base *vecmath.Matrix
}

// New wraps base for querying. base.Cols is the index's dimensionality.
func New(base *vecmath.Matrix) *Index {
	return &Index{base: base}
}

// Dim returns the index's vector dimensionality.
func (idx *Index) Dim() int {
	return idx.base.Cols
}

// Size returns the number of base vectors.
func (idx *Index) Size() int {
	return idx.base.Rows
}

// Query computes the k nearest base vectors for each row of Q, returning
// parallel distance/id matrices of shape [m][k]. Results shorter than k
// are padded here with the sentinel via vecmath.PadSentinel.
func (idx *Index) Query(ctx context.Context, q *vecmath.Matrix, k int) (D [][]float32, I [][]uint64, err error) {
	if q.Cols != idx.base.Cols {
		return nil, nil, tdberrors.ShapeMismatch(
			fmt.Sprintf("query has %d columns, index has dimension %d", q.Cols, idx.base.Cols))
	}
	if k <= 0 {
		return nil, nil, tdberrors.InvalidArgument(fmt.Sprintf("k must be positive, got %d", k))
	}

	m := q.Rows
	N := idx.base.Rows

	D = make([][]float32, m)
	I = make([][]uint64, m)

	if N == 0 {
		for i := 0; i < m; i++ {
			padded := vecmath.PadSentinel(nil, k)
			D[i], I[i] = splitNeighbors(padded)
		}
		return D, I, nil
	}

	workers := runtime.NumCPU()
	if workers > N {
		workers = N
	}
	if workers < 1 {
		workers = 1
	}

	selectors := make([]*vecmath.HeapSelector, m)
	for i := range selectors {
		selectors[i] = vecmath.NewHeapSelector(k)
	}

	blockSize := (N + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	localResults := make([][]*vecmath.HeapSelector, workers)

	for w := 0; w < workers; w++ {
		w := w
		start := w * blockSize
		end := start + blockSize
		if end > N {
			end = N
		}
		if start >= end {
			continue
		}

		local := make([]*vecmath.HeapSelector, m)
		for i := range local {
			local[i] = vecmath.NewHeapSelector(k)
		}
		localResults[w] = local

		g.Go(func() error {
			qRow := make([]float32, q.Cols)
			for row := 0; row < m; row++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				q.RowInto(row, qRow)
				for col := start; col < end; col++ {
					dist := vecmath.SquaredL2(qRow, idx.base, col)
					local[row].Push(vecmath.Neighbor{Dist: dist, ID: uint64(col)})
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for w := 0; w < workers; w++ {
		if localResults[w] == nil {
			continue
		}
		for row := 0; row < m; row++ {
			selectors[row].Merge(localResults[w][row])
		}
	}

	for row := 0; row < m; row++ {
		padded := vecmath.PadSentinel(selectors[row].Results(), k)
		D[row], I[row] = splitNeighbors(padded)
	}

	return D, I, nil
}

func splitNeighbors(ns []vecmath.Neighbor) ([]float32, []uint64) {
	d := make([]float32, len(ns))
	ids := make([]uint64, len(ns))
	for i, n := range ns {
		d[i] = n.Dist
		ids[i] = n.ID
	}
	return d, ids
}
