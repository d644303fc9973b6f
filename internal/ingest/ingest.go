// Package ingest implements the ingestion/training pipeline (§4.G):
// sampling, k-means training, nearest-centroid assignment, partition
// histogram/offsets, shuffle-write, and atomic publish of a new base
// snapshot. Grounded on faiss-go's train->add->search clustering example
// and monishSR-VecLite's centroid bookkeeping, adapted from streaming
// incremental updates to a batch pipeline; centroid averaging uses
// gonum/floats and gonum/stat the way kortschak-ins pulls in gonum for
// its own numerical work.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dudoslav/TileDB-Vector-Search/internal/group"
	"github.com/dudoslav/TileDB-Vector-Search/internal/progress"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// Source is the input to one ingestion run: a dense matrix of base
// vectors (column kind must match the group's dtype) and the external
// ids each row carries. A nil IDs slice assigns identity ids 0..N-1,
// matching "optional external ids" from §4.G's inputs.
type Source struct {
	Vectors *vecmath.Matrix
	IDs     []uint64
}

// Options configures one Pipeline.Run call. Partitions is ignored for a
// Flat group.
type Options struct {
	Partitions              int
	Train                   TrainOptions
	TrainingSampleSize      int // 0 selects the §9 default, min(N, max(256*P, 100_000))
	AssignWorkers           int
	InputVectorsPerWorkItem int
}

// Pipeline runs ingestion against one group.
type Pipeline struct {
	Group    *group.Group
	Reporter progress.Reporter
}

// New builds a Pipeline reporting through reporter (progress.NoopReporter
// if nil).
func New(grp *group.Group, reporter progress.Reporter) *Pipeline {
	if reporter == nil {
		reporter = progress.NoopReporter{}
	}
	return &Pipeline{Group: grp, Reporter: reporter}
}

// Run executes one ingestion at timestamp ts, producing and publishing a
// new base snapshot. ts must be strictly greater than the group's
// current latest ingestion timestamp (§3 invariant 3).
func (p *Pipeline) Run(ctx context.Context, src Source, ts uint64, opts Options) (uint64, error) {
	start := time.Now()

	if ts <= p.Group.LatestIngestionTimestamp() {
		return 0, tdberrors.TimestampBeforeLatestIngestion(
			fmt.Sprintf("ingestion timestamp %d must be strictly greater than latest ingestion timestamp %d", ts, p.Group.LatestIngestionTimestamp()))
	}
	if src.Vectors.Cols != p.Group.Dimensions {
		return 0, tdberrors.ShapeMismatch(
			fmt.Sprintf("source has %d columns, group has dimension %d", src.Vectors.Cols, p.Group.Dimensions))
	}
	if src.Vectors.Kind != p.Group.DType {
		return 0, tdberrors.TypeMismatch(
			fmt.Sprintf("source dtype %s does not match group dtype %s", src.Vectors.Kind, p.Group.DType))
	}

	n := src.Vectors.Rows
	ids := src.IDs
	if ids == nil {
		ids = make([]uint64, n)
		for i := range ids {
			ids[i] = uint64(i)
		}
	}
	if len(ids) != n {
		return 0, tdberrors.InvalidArgument(fmt.Sprintf("ids length %d does not match vector count %d", len(ids), n))
	}

	switch p.Group.IndexType {
	case group.IndexTypeIVFFlat:
		return p.runIVF(ctx, src.Vectors, ids, ts, opts, start)
	default:
		return p.runFlat(ctx, src.Vectors, ids, ts, start)
	}
}

func (p *Pipeline) runFlat(ctx context.Context, base *vecmath.Matrix, ids []uint64, ts uint64, start time.Time) (uint64, error) {
	p.Reporter.Update(progress.Event{Stage: progress.StageShuffleWrite, Message: "writing base snapshot"})
	if err := p.Group.WriteBaseSnapshot(ctx, ts, base, ids, nil, nil); err != nil {
		return 0, err
	}

	p.Reporter.Update(progress.Event{Stage: progress.StagePublish, Message: "publishing ingestion timestamp"})
	if err := p.Group.Publish(ctx, ts, 0, base.Rows); err != nil {
		return 0, err
	}

	p.Reporter.Complete(progress.CompletionStats{
		GroupTimestamp: ts,
		VectorCount:    base.Rows,
		PartitionCount: 0,
		Duration:       time.Since(start),
	})
	return ts, nil
}

func (p *Pipeline) runIVF(ctx context.Context, base *vecmath.Matrix, ids []uint64, ts uint64, opts Options, start time.Time) (uint64, error) {
	partitions := opts.Partitions
	if partitions <= 0 {
		return 0, tdberrors.InvalidArgument("partitions must be positive for an IVF_FLAT group")
	}
	n := base.Rows

	// Stage 1: sampling.
	sampleSize := opts.TrainingSampleSize
	if sampleSize <= 0 {
		sampleSize = TrainingSampleSize(n, partitions)
	}
	p.Reporter.Update(progress.Event{Stage: progress.StageSampling, Current: 0, Total: sampleSize, Message: "drawing training sample"})
	seed := opts.Train.Seed
	sampleIdx := reservoirSample(n, sampleSize, newSeededRand(seed))
	sample := buildSample(base, sampleIdx)
	p.Reporter.Update(progress.Event{Stage: progress.StageSampling, Current: sampleSize, Total: sampleSize, Message: "sample ready"})

	// Stage 2: k-means training.
	p.Reporter.Update(progress.Event{Stage: progress.StageTraining, Message: fmt.Sprintf("training %d centroids", partitions)})
	centroids := trainKMeans(sample, partitions, opts.Train)
	p.Reporter.Update(progress.Event{Stage: progress.StageTraining, Message: "training complete"})

	// Stage 3: assignment.
	p.Reporter.Update(progress.Event{Stage: progress.StageAssignment, Current: 0, Total: n, Message: "assigning vectors to partitions"})
	assign, err := assignAll(ctx, base, centroids, opts.AssignWorkers)
	if err != nil {
		return 0, err
	}
	p.Reporter.Update(progress.Event{Stage: progress.StageAssignment, Current: n, Total: n, Message: "assignment complete"})

	// Stage 4: histogram & offsets.
	_, offsets := histogramAndOffsets(assign, partitions)
	if offsets[partitions] != n {
		return 0, tdberrors.New(tdberrors.ErrCodeInternal,
			fmt.Sprintf("offsets[P]=%d does not equal N=%d", offsets[partitions], n), nil)
	}

	// Stage 5: shuffle write.
	itemsPerShard := opts.InputVectorsPerWorkItem
	p.Reporter.Update(progress.Event{Stage: progress.StageShuffleWrite, Current: 0, Total: n, Message: "shuffling vectors into partition order"})
	shuffled, shuffledIDs, err := shuffleWrite(ctx, base, ids, assign, offsets, itemsPerShard)
	if err != nil {
		return 0, err
	}
	p.Reporter.Update(progress.Event{Stage: progress.StageShuffleWrite, Current: n, Total: n, Message: "shuffle complete"})

	if err := p.Group.WriteBaseSnapshot(ctx, ts, shuffled, shuffledIDs, centroids, offsets); err != nil {
		return 0, err
	}

	p.Reporter.Update(progress.Event{Stage: progress.StagePublish, Message: "publishing ingestion timestamp"})
	if err := p.Group.Publish(ctx, ts, partitions, n); err != nil {
		return 0, err
	}

	p.Reporter.Complete(progress.CompletionStats{
		GroupTimestamp: ts,
		VectorCount:    n,
		PartitionCount: partitions,
		Duration:       time.Since(start),
	})
	return ts, nil
}

// ConsolidateUpdates is the "special ingestion" from §4.G: it replays
// the group's current base snapshot plus its effective updates log
// through the normal pipeline, publishing a fresh base snapshot whose
// timestamp is strictly greater than any cell timestamp consumed from
// the updates log.
func (p *Pipeline) ConsolidateUpdates(ctx context.Context, ts uint64, opts Options) (uint64, error) {
	ids, vectors, maxCellTS, hasUpdates, err := p.Group.LiveSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if hasUpdates && ts <= maxCellTS {
		return 0, tdberrors.TimestampBeforeLatestIngestion(
			fmt.Sprintf("consolidation timestamp %d must exceed the latest consumed update cell timestamp %d", ts, maxCellTS))
	}

	base := vecmath.NewMatrix(p.Group.DType, len(vectors), p.Group.Dimensions)
	for i, v := range vectors {
		base.SetRow(i, v)
	}

	return p.Run(ctx, Source{Vectors: base, IDs: ids}, ts, opts)
}
