// Package ivfindex implements the IVF-Flat index: centroid-based
// partition selection followed by an exhaustive scan restricted to the
// probed partitions, with an out-of-core mode that bounds resident
// partition memory via a memory budget and an LRU partition cache.
package ivfindex

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// ScanOrder selects the inner/outer loop nesting used while scanning a
// batch of loaded partitions.
type ScanOrder int

const (
	// ScanQueryMajor iterates queries outer, candidate vectors inner.
	ScanQueryMajor ScanOrder = iota
	// ScanVectorMajor ("nuv") iterates vectors in the batch outer,
	// queries that selected the vector's partition inner. Produces the
	// same result as ScanQueryMajor with different cache behavior.
	ScanVectorMajor
)

// QueryOptions tunes one Query call.
type QueryOptions struct {
	// MemoryBudgetBytes bounds resident partition bytes per batch. Zero
	// means infinite-RAM: every probed partition loads in a single batch.
	MemoryBudgetBytes int64
	// ScanOrder selects the scan loop nesting; zero value is query-major.
	ScanOrder ScanOrder
}

// Index is an IVF-Flat index: P centroids partitioning N base vectors,
// with partition p occupying base rows [Offsets[p], Offsets[p+1]).
type Index struct {
	centroids *vecmath.Matrix // P x d
	base      *vecmath.Matrix // N x d, partition-ordered
	ids       []uint64        // N, external ids aligned to base rows
	offsets   []int           // P+1

	cache *lru.Cache[int, partitionSlice]
}

// partitionSlice is the cached decoded view of one partition.
type partitionSlice struct {
	vectors *vecmath.Matrix // rows = partition size
	ids     []uint64
	byteLen int64
}

// New builds an IVF-Flat index handle. offsets must have length P+1 with
// offsets[P] == base.Rows (the I[P]=N invariant from ingestion). cacheSize
// bounds the number of decoded partitions kept warm across Query calls on
// this handle.
func New(centroids, base *vecmath.Matrix, ids []uint64, offsets []int, cacheSize int) (*Index, error) {
	if len(offsets) == 0 {
		return &Index{centroids: centroids, base: base, ids: ids, offsets: offsets}, nil
	}
	if offsets[len(offsets)-1] != base.Rows {
		return nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt,
			fmt.Sprintf("offsets[P]=%d does not match base size %d", offsets[len(offsets)-1], base.Rows), nil)
	}

	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[int, partitionSlice](cacheSize)
	if err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeInternal, err)
	}

	return &Index{centroids: centroids, base: base, ids: ids, offsets: offsets, cache: cache}, nil
}

// Dim returns the index's vector dimensionality.
func (idx *Index) Dim() int {
	if idx.centroids == nil {
		return idx.base.Cols
	}
	return idx.centroids.Cols
}

// P returns the partition count.
func (idx *Index) P() int {
	if len(idx.offsets) == 0 {
		return 0
	}
	return len(idx.offsets) - 1
}

// Query returns the k nearest base vectors for each row of q, probing
// nprobe partitions per query. nprobe is clamped to [1, P].
func (idx *Index) Query(ctx context.Context, q *vecmath.Matrix, k, nprobe int, opts QueryOptions) (D [][]float32, I [][]uint64, err error) {
	d := idx.Dim()
	if q.Cols != d {
		return nil, nil, tdberrors.ShapeMismatch(fmt.Sprintf("query has %d columns, index has dimension %d", q.Cols, d))
	}
	if k <= 0 {
		return nil, nil, tdberrors.InvalidArgument(fmt.Sprintf("k must be positive, got %d", k))
	}

	m := q.Rows
	D = make([][]float32, m)
	I = make([][]uint64, m)

	P := idx.P()
	N := idx.base.Rows
	if P == 0 || N == 0 {
		for i := 0; i < m; i++ {
			padded := vecmath.PadSentinel(nil, k)
			D[i], I[i] = splitNeighbors(padded)
		}
		return D, I, nil
	}

	if nprobe < 1 {
		nprobe = 1
	}
	if nprobe > P {
		nprobe = P
	}

	selected := idx.selectPartitions(q, nprobe)

	activeSet := make(map[int]struct{})
	for _, parts := range selected {
		for _, p := range parts {
			activeSet[p] = struct{}{}
		}
	}
	activeParts := make([]int, 0, len(activeSet))
	for p := range activeSet {
		activeParts = append(activeParts, p)
	}

	batches, err := idx.packBatches(activeParts, opts.MemoryBudgetBytes)
	if err != nil {
		return nil, nil, err
	}

	heaps := make([]*vecmath.HeapSelector, m)
	for i := range heaps {
		heaps[i] = vecmath.NewHeapSelector(k)
	}

	qRows := make([][]float32, m)
	for i := 0; i < m; i++ {
		qRows[i] = q.Row(i)
	}

	// invert selected -> which queries probe partition p, for vector-major order
	queriesOf := make(map[int][]int)
	for qi, parts := range selected {
		for _, p := range parts {
			queriesOf[p] = append(queriesOf[p], qi)
		}
	}

	for _, batch := range batches {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		parts, err := idx.loadBatch(ctx, batch)
		if err != nil {
			return nil, nil, err
		}

		switch opts.ScanOrder {
		case ScanVectorMajor:
			scanVectorMajor(ctx, parts, queriesOf, qRows, heaps)
		default:
			scanQueryMajor(ctx, parts, selected, qRows, heaps)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
	}

	for i := 0; i < m; i++ {
		padded := vecmath.PadSentinel(heaps[i].Results(), k)
		D[i], I[i] = splitNeighbors(padded)
	}

	return D, I, nil
}

// selectPartitions computes, for each query row, the nprobe closest
// partition ids by centroid distance (exhaustive scan of all P
// centroids, never an approximate graph — see DESIGN.md).
func (idx *Index) selectPartitions(q *vecmath.Matrix, nprobe int) [][]int {
	m := q.Rows
	out := make([][]int, m)

	qRow := make([]float32, q.Cols)
	for i := 0; i < m; i++ {
		q.RowInto(i, qRow)
		sel := vecmath.NewHeapSelector(nprobe)
		for p := 0; p < idx.P(); p++ {
			dist := vecmath.SquaredL2(qRow, idx.centroids, p)
			sel.Push(vecmath.Neighbor{Dist: dist, ID: uint64(p)})
		}
		results := sel.Results()
		parts := make([]int, len(results))
		for j, n := range results {
			parts[j] = int(n.ID)
		}
		out[i] = parts
	}
	return out
}

func (idx *Index) partitionByteSize(p int) int64 {
	rows := int64(idx.offsets[p+1] - idx.offsets[p])
	return rows * int64(idx.base.Cols) * 4 // f32-equivalent worst case; conservative for u8/i8 too
}

// packBatches greedily bin-packs activeParts into load batches bounded
// by memoryBudget bytes. memoryBudget == 0 means infinite-RAM: a single
// batch holds every partition.
func (idx *Index) packBatches(activeParts []int, memoryBudget int64) ([][]int, error) {
	if memoryBudget <= 0 {
		return [][]int{activeParts}, nil
	}

	var batches [][]int
	var current []int
	var currentBytes int64

	for _, p := range activeParts {
		size := idx.partitionByteSize(p)
		if size > memoryBudget {
			return nil, tdberrors.PartitionTooLarge(
				fmt.Sprintf("partition %d needs %d bytes, budget is %d", p, size, memoryBudget)).
				WithDetail("partition", fmt.Sprintf("%d", p))
		}
		if currentBytes+size > memoryBudget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, p)
		currentBytes += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

// loadBatch decodes (or fetches from cache) every partition in batch.
func (idx *Index) loadBatch(ctx context.Context, batch []int) (map[int]partitionSlice, error) {
	out := make(map[int]partitionSlice, len(batch))
	for _, p := range batch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if idx.cache != nil {
			if cached, ok := idx.cache.Get(p); ok {
				out[p] = cached
				continue
			}
		}

		lo, hi := idx.offsets[p], idx.offsets[p+1]
		rows := hi - lo
		vecs := vecmath.NewMatrix(idx.base.Kind, rows, idx.base.Cols)
		for i := 0; i < rows; i++ {
			vecs.SetRow(i, idx.base.Row(lo+i))
		}
		slice := partitionSlice{
			vectors: vecs,
			ids:     append([]uint64(nil), idx.ids[lo:hi]...),
			byteLen: idx.partitionByteSize(p),
		}
		if idx.cache != nil {
			idx.cache.Add(p, slice)
		}
		out[p] = slice
	}
	return out, nil
}

func scanQueryMajor(ctx context.Context, parts map[int]partitionSlice, selected [][]int, qRows [][]float32, heaps []*vecmath.HeapSelector) {
	for qi, partIDs := range selected {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, p := range partIDs {
			slice, ok := parts[p]
			if !ok {
				continue
			}
			for r := 0; r < slice.vectors.Rows; r++ {
				dist := vecmath.SquaredL2(qRows[qi], slice.vectors, r)
				heaps[qi].Push(vecmath.Neighbor{Dist: dist, ID: slice.ids[r]})
			}
		}
	}
}

func scanVectorMajor(ctx context.Context, parts map[int]partitionSlice, queriesOf map[int][]int, qRows [][]float32, heaps []*vecmath.HeapSelector) {
	for p, slice := range parts {
		select {
		case <-ctx.Done():
			return
		default:
		}
		queries := queriesOf[p]
		for r := 0; r < slice.vectors.Rows; r++ {
			rowVec := slice.vectors.Row(r)
			for _, qi := range queries {
				dist := vecmath.SquaredL2Vectors(qRows[qi], rowVec)
				heaps[qi].Push(vecmath.Neighbor{Dist: dist, ID: slice.ids[r]})
			}
		}
	}
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
