package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// shuffleWrite writes base's rows into partition order (§4.G step 5):
// input is divided into itemsPerShard-sized shards; each shard's rows
// are first histogrammed per partition so every shard knows its exact
// write offset within each partition ahead of time, then shards copy
// their rows into the shared output matrix concurrently without
// conflicting — the "per-partition buffers...concatenated at the
// correct offsets" described by the spec, without materializing a
// separate buffer per shard.
func shuffleWrite(ctx context.Context, base *vecmath.Matrix, ids []uint64, assign []int, offsets []int, itemsPerShard int) (*vecmath.Matrix, []uint64, error) {
	n := base.Rows
	p := len(offsets) - 1
	out := vecmath.NewMatrix(base.Kind, n, base.Cols)
	outIDs := make([]uint64, n)

	if n == 0 {
		return out, outIDs, nil
	}
	if itemsPerShard <= 0 {
		itemsPerShard = n
	}

	numShards := (n + itemsPerShard - 1) / itemsPerShard
	shardCounts := make([][]int, numShards)
	for s := 0; s < numShards; s++ {
		lo, hi := shardBounds(s, itemsPerShard, n)
		counts := make([]int, p)
		for i := lo; i < hi; i++ {
			counts[assign[i]]++
		}
		shardCounts[s] = counts
	}

	// shardOffset[s][part] is the absolute row this shard starts writing
	// at for that partition: the partition's base offset plus every
	// earlier shard's count in the same partition.
	shardOffset := make([][]int, numShards)
	running := make([]int, p)
	copy(running, offsets[:p])
	for s := 0; s < numShards; s++ {
		shardOffset[s] = append([]int(nil), running...)
		for part := 0; part < p; part++ {
			running[part] += shardCounts[s][part]
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < numShards; s++ {
		s := s
		g.Go(func() error {
			lo, hi := shardBounds(s, itemsPerShard, n)
			cursor := append([]int(nil), shardOffset[s]...)
			row := make([]float32, base.Cols)
			for i := lo; i < hi; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				part := assign[i]
				dst := cursor[part]
				cursor[part]++

				base.RowInto(i, row)
				out.SetRow(dst, row)
				outIDs[dst] = ids[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, outIDs, nil
}

func shardBounds(shard, itemsPerShard, n int) (lo, hi int) {
	lo = shard * itemsPerShard
	hi = lo + itemsPerShard
	if hi > n {
		hi = n
	}
	return lo, hi
}
