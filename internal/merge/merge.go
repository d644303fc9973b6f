// Package merge fuses a base-index query with the updates log: it joins
// a concurrently-run base scan and updates scan, invalidates base rows
// superseded by a delete or replace, and truncates the union to k.
package merge

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/dudoslav/TileDB-Vector-Search/internal/flatindex"
	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/updatelog"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// RetrievalFactor is the oversampling factor applied to the base-index
// query before invalidation and merge.
const RetrievalFactor = 2

// BaseQueryFunc runs a base-index query for retrievalK neighbors per row
// of q. Both flatindex.Index.Query and an ivfindex.Index.Query closure
// (capturing nprobe/QueryOptions) satisfy this shape.
type BaseQueryFunc func(ctx context.Context, q *vecmath.Matrix, retrievalK int) (D [][]float32, I [][]uint64, err error)

// TimestampKind selects which row of the §4.F timestamp-selection table
// a Timestamp falls into.
type TimestampKind int

const (
	// TimestampLatest answers as of the latest ingestion.
	TimestampLatest TimestampKind = iota
	// TimestampAt answers as of a specific logical time.
	TimestampAt
	// TimestampRange restricts the updates log to an explicit window,
	// optionally disabling the base snapshot entirely (see Query).
	TimestampRange
)

// Timestamp is the caller's time-travel argument.
type Timestamp struct {
	Kind   TimestampKind
	At     uint64
	Lo, Hi uint64
}

// Latest answers as of the most recent ingestion.
func Latest() Timestamp { return Timestamp{Kind: TimestampLatest} }

// At answers as of the greatest ingestion timestamp <= t.
func At(t uint64) Timestamp { return Timestamp{Kind: TimestampAt, At: t} }

// Range selects by a time range [a,b]. If a exceeds the earliest
// ingestion timestamp, the base snapshot is skipped entirely and the
// updates log is read over [a,b] (an intentional "updates-only view",
// see §9 design note 2 and DESIGN.md). Otherwise the base snapshot at
// the earliest ingestion timestamp is used and the updates log is read
// over [earliest+1, b].
func Range(a, b uint64) Timestamp { return Timestamp{Kind: TimestampRange, Lo: a, Hi: b} }

const noUpperBound = math.MaxUint64

// Merger fuses BaseQuery with an updates log using a group's ingestion
// history to resolve time-travel timestamps.
type Merger struct {
	BaseQuery           BaseQueryFunc
	Updates             *updatelog.Log
	IngestionTimestamps []uint64 // ascending

	// GateZeroIDOnUnwrittenColumn disables the unconditional (dist=0,
	// id=0) invalidation quirk (§9 open question 1). Only enable this
	// when the caller has independently verified base column 0 holds a
	// real vector, not a zero-filled unwritten cell.
	GateZeroIDOnUnwrittenColumn bool
}

// New builds a Merger.
func New(baseQuery BaseQueryFunc, updates *updatelog.Log, ingestionTimestamps []uint64) *Merger {
	return &Merger{BaseQuery: baseQuery, Updates: updates, IngestionTimestamps: ingestionTimestamps}
}

// resolve computes (useBase, updateRange) per the §4.F table.
func (m *Merger) resolve(ts Timestamp) (useBase bool, updateRange storage.TSRange) {
	switch ts.Kind {
	case TimestampAt:
		baseTS, ok := m.greatestIngestionAtOrBefore(ts.At)
		if !ok {
			return false, storage.TSRange{Lo: 0, Hi: ts.At}
		}
		return true, storage.TSRange{Lo: baseTS + 1, Hi: ts.At}

	case TimestampRange:
		if len(m.IngestionTimestamps) == 0 {
			return false, storage.TSRange{Lo: ts.Lo, Hi: ts.Hi}
		}
		earliest := m.IngestionTimestamps[0]
		if ts.Lo > earliest {
			return false, storage.TSRange{Lo: ts.Lo, Hi: ts.Hi}
		}
		return true, storage.TSRange{Lo: earliest + 1, Hi: ts.Hi}

	default: // TimestampLatest
		if len(m.IngestionTimestamps) == 0 {
			return false, storage.TSRange{Lo: 0, Hi: noUpperBound}
		}
		latest := m.IngestionTimestamps[len(m.IngestionTimestamps)-1]
		return true, storage.TSRange{Lo: latest + 1, Hi: noUpperBound}
	}
}

// ResolveBaseTimestamp mirrors the §4.F base-snapshot-selection rule
// without running a query, letting a caller (internal/group) load the
// correct historical snapshot before constructing the BaseQueryFunc a
// Merger will invoke. ok is false when no base snapshot should be read
// at all (empty group, or the "updates-only view" branch of the range
// row — see §9 design note 2).
func ResolveBaseTimestamp(ingestionTimestamps []uint64, ts Timestamp) (baseTS uint64, ok bool) {
	m := &Merger{IngestionTimestamps: ingestionTimestamps}
	useBase, _ := m.resolve(ts)
	if !useBase {
		return 0, false
	}
	switch ts.Kind {
	case TimestampAt:
		return m.greatestIngestionAtOrBefore(ts.At)
	case TimestampRange:
		return ingestionTimestamps[0], true
	default: // TimestampLatest
		return ingestionTimestamps[len(ingestionTimestamps)-1], true
	}
}

func (m *Merger) greatestIngestionAtOrBefore(t uint64) (uint64, bool) {
	var best uint64
	found := false
	for _, ingestTS := range m.IngestionTimestamps {
		if ingestTS <= t {
			best = ingestTS
			found = true
		}
	}
	return best, found
}

// Query returns the k nearest live external ids for each row of q as of
// ts, fusing the base index with the updates log.
func (m *Merger) Query(ctx context.Context, q *vecmath.Matrix, k int, ts Timestamp) (D [][]float32, I [][]uint64, err error) {
	if k <= 0 {
		return nil, nil, tdberrors.InvalidArgument(fmt.Sprintf("k must be positive, got %d", k))
	}

	useBase, updateRange := m.resolve(ts)
	rows := q.Rows
	retrievalK := RetrievalFactor * k

	var baseD [][]float32
	var baseI [][]uint64
	var deleted map[uint64]struct{}
	var added []updatelog.IDVector

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !useBase {
			baseD = make([][]float32, rows)
			baseI = make([][]uint64, rows)
			for i := 0; i < rows; i++ {
				padded := vecmath.PadSentinel(nil, retrievalK)
				baseD[i], baseI[i] = splitNeighbors(padded)
			}
			return nil
		}
		d, ids, err := m.BaseQuery(gctx, q, retrievalK)
		if err != nil {
			return err
		}
		baseD, baseI = d, ids
		return nil
	})

	g.Go(func() error {
		d, a, err := m.Updates.Scan(gctx, updateRange)
		if err != nil {
			return err
		}
		deleted, added = d, a
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	invalid := make(map[uint64]struct{}, len(deleted)+len(added))
	for id := range deleted {
		invalid[id] = struct{}{}
	}
	for _, av := range added {
		invalid[av.ID] = struct{}{}
	}

	addD, addI, err := bruteForceAdded(ctx, added, q, k)
	if err != nil {
		return nil, nil, err
	}

	D = make([][]float32, rows)
	I = make([][]uint64, rows)

	for row := 0; row < rows; row++ {
		merged := vecmath.NewHeapSelector(k)

		for j, id := range baseI[row] {
			dist := baseD[row][j]
			if id == vecmath.SentinelID {
				continue
			}
			if _, bad := invalid[id]; bad {
				continue
			}
			if !m.GateZeroIDOnUnwrittenColumn && dist == 0 && id == 0 {
				continue
			}
			merged.Push(vecmath.Neighbor{Dist: dist, ID: id})
		}

		for j, id := range addI[row] {
			if id == vecmath.SentinelID {
				continue
			}
			merged.Push(vecmath.Neighbor{Dist: addD[row][j], ID: id})
		}

		padded := vecmath.PadSentinel(merged.Results(), k)
		D[row], I[row] = splitNeighbors(padded)
	}

	return D, I, nil
}

// bruteForceAdded runs the brute-force top-k required by §4.C against
// the added_vectors side of the updates-log scan, remapping flatindex's
// row-index ids back to external ids (reusing internal/flatindex rather
// than re-implementing distance/top-k for this small slice of vectors).
func bruteForceAdded(ctx context.Context, added []updatelog.IDVector, q *vecmath.Matrix, k int) ([][]float32, [][]uint64, error) {
	rows := q.Rows
	if len(added) == 0 {
		D := make([][]float32, rows)
		I := make([][]uint64, rows)
		for i := 0; i < rows; i++ {
			padded := vecmath.PadSentinel(nil, k)
			D[i], I[i] = splitNeighbors(padded)
		}
		return D, I, nil
	}

	d := q.Cols
	m := vecmath.NewMatrix(vecmath.KindF32, len(added), d)
	externalIDs := make([]uint64, len(added))
	for i, av := range added {
		m.SetRow(i, av.Vector)
		externalIDs[i] = av.ID
	}

	idx := flatindex.New(m)
	D, I, err := idx.Query(ctx, q, k)
	if err != nil {
		return nil, nil, err
	}

	for row := range I {
		for j, rowIdx := range I[row] {
			if rowIdx == vecmath.SentinelID {
				continue
			}
			I[row][j] = externalIDs[rowIdx]
		}
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
