// Package group implements the index group: the process-addressable
// handle (§3 "Index group") that owns a group's metadata
// (storage_version, index_version, ingestion_timestamps, sub-array URIs),
// dispatches queries to the flat or IVF-Flat index fused with the
// updates log, and exposes the write path ingestion uses to publish a
// new base snapshot atomically.
//
// Grounded on the teacher's internal/store/types.go MetadataStore/IndexInfo
// shape, generalized from a code-search catalog entry to the §6 group
// metadata table; group/run ids use github.com/google/uuid, same as
// SnellerInc-sneller and intelligencedev-manifold.
package group

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/dudoslav/TileDB-Vector-Search/internal/flatindex"
	"github.com/dudoslav/TileDB-Vector-Search/internal/ivfindex"
	"github.com/dudoslav/TileDB-Vector-Search/internal/merge"
	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/updatelog"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// IndexType selects the query engine a group's base snapshots use.
type IndexType string

const (
	IndexTypeFlat    IndexType = "FLAT"
	IndexTypeIVFFlat IndexType = "IVF_FLAT"
)

// CurrentStorageVersion selects the sub-array naming scheme (§6): "0.2"
// is the only version this implementation understands.
const CurrentStorageVersion = "0.2"

// CreateOptions fixes a new group's shape at creation time.
type CreateOptions struct {
	IndexType             IndexType
	DType                 vecmath.Kind
	Dimensions            int
	PartitionCacheEntries int
}

// Group is the in-process handle to one index group: its §6 metadata
// table plus the store it's backed by.
type Group struct {
	ID             string
	URI            string
	StorageVersion string
	IndexVersion   int
	IndexType      IndexType
	DType          vecmath.Kind
	Dimensions     int

	// IngestionTimestamps, PartitionHistory and BaseSizes are parallel
	// arrays, one entry per completed ingestion, in the same order as
	// §6's metadata table.
	IngestionTimestamps []uint64
	PartitionHistory    []uint64
	BaseSizes           []uint64

	cacheSize int
	store     *storage.SQLiteStore
}

// Create registers a brand-new, empty group: sub-array schemas plus an
// initial metadata record with no ingestion timestamps yet.
func Create(ctx context.Context, store *storage.SQLiteStore, uri string, opts CreateOptions) (*Group, error) {
	if opts.Dimensions <= 0 {
		return nil, tdberrors.InvalidArgument("dimensions must be positive")
	}
	g := &Group{
		ID:             uuid.NewString(),
		URI:            uri,
		StorageVersion: CurrentStorageVersion,
		IndexVersion:   1,
		IndexType:      opts.IndexType,
		DType:          opts.DType,
		Dimensions:     opts.Dimensions,
		cacheSize:      opts.PartitionCacheEntries,
		store:          store,
	}

	if err := store.Create(ctx, g.subURI("parts"), storage.Schema{
		Dense: &storage.DenseSchema{Kind: g.DType, Cols: g.Dimensions},
	}); err != nil {
		return nil, err
	}

	if g.IndexType == IndexTypeIVFFlat {
		if err := store.Create(ctx, g.subURI("centroids"), storage.Schema{
			Dense: &storage.DenseSchema{Kind: vecmath.KindF32, Cols: g.Dimensions},
		}); err != nil {
			return nil, err
		}
	}

	if _, err := updatelog.Create(ctx, store, g.subURI("updates"), g.Dimensions); err != nil {
		return nil, err
	}

	if err := g.persist(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Open loads a previously-created group's metadata from store.
func Open(ctx context.Context, store *storage.SQLiteStore, uri string) (*Group, error) {
	g := &Group{URI: uri, store: store}
	data, err := store.GetBlob(ctx, metaURI(uri), 0)
	if err != nil {
		return nil, err
	}
	if err := g.unmarshal(data); err != nil {
		return nil, err
	}
	return g, nil
}

// subURI resolves a sub-array's storage URI via the group's
// storage_version, per §6's "Sub-arrays (names resolved via
// storage_version)".
func (g *Group) subURI(name string) string {
	return fmt.Sprintf("%s/v%s/%s", g.URI, g.StorageVersion, name)
}

func metaURI(uri string) string {
	return uri + "/_meta"
}

// record is the on-disk JSON shape of a group's metadata blob.
type record struct {
	ID                  string    `json:"id"`
	StorageVersion      string    `json:"storage_version"`
	IndexVersion        int       `json:"index_version"`
	IndexType           IndexType `json:"index_type"`
	DType               int       `json:"dtype"`
	Dimensions          int       `json:"dimensions"`
	IngestionTimestamps []uint64  `json:"ingestion_timestamps"`
	PartitionHistory    []uint64  `json:"partition_history"`
	BaseSizes           []uint64  `json:"base_sizes"`
}

func (g *Group) persist(ctx context.Context) error {
	r := record{
		ID:                  g.ID,
		StorageVersion:      g.StorageVersion,
		IndexVersion:        g.IndexVersion,
		IndexType:           g.IndexType,
		DType:               int(g.DType),
		Dimensions:          g.Dimensions,
		IngestionTimestamps: g.IngestionTimestamps,
		PartitionHistory:    g.PartitionHistory,
		BaseSizes:           g.BaseSizes,
	}
	data, err := json.Marshal(r)
	if err != nil {
		return tdberrors.Wrap(tdberrors.ErrCodeInternal, err)
	}
	return g.store.PutBlob(ctx, metaURI(g.URI), 0, data)
}

func (g *Group) unmarshal(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return tdberrors.New(tdberrors.ErrCodeStorageCorrupt, "corrupt group metadata", err)
	}
	g.ID = r.ID
	g.StorageVersion = r.StorageVersion
	g.IndexVersion = r.IndexVersion
	g.IndexType = r.IndexType
	g.DType = vecmath.Kind(r.DType)
	g.Dimensions = r.Dimensions
	g.IngestionTimestamps = r.IngestionTimestamps
	g.PartitionHistory = r.PartitionHistory
	g.BaseSizes = r.BaseSizes
	return nil
}

// MetadataMap renders the group metadata exactly as §6's "Group metadata
// (string→string)" table: JSON-encoded array values under their literal
// key names, for `tdbvs group info` to print verbatim.
func (g *Group) MetadataMap() map[string]string {
	marshal := func(v any) string {
		b, _ := json.Marshal(v)
		return string(b)
	}
	return map[string]string{
		"storage_version":      g.StorageVersion,
		"index_version":        fmt.Sprintf("%d", g.IndexVersion),
		"index_type":           string(g.IndexType),
		"dtype":                g.DType.String(),
		"dimensions":           fmt.Sprintf("%d", g.Dimensions),
		"ingestion_timestamps": marshal(g.IngestionTimestamps),
		"partition_history":    marshal(g.PartitionHistory),
		"base_sizes":           marshal(g.BaseSizes),
	}
}

// LatestIngestionTimestamp returns the most recent ingestion timestamp,
// or 0 if the group has never been ingested into.
func (g *Group) LatestIngestionTimestamp() uint64 {
	if len(g.IngestionTimestamps) == 0 {
		return 0
	}
	return g.IngestionTimestamps[len(g.IngestionTimestamps)-1]
}

// WriteBaseSnapshot persists a new base snapshot's sub-arrays at ts
// without making it visible: Publish is what appends ts to
// IngestionTimestamps. Per §7's partial-failure rule, a caller must only
// call Publish after WriteBaseSnapshot returns successfully.
func (g *Group) WriteBaseSnapshot(ctx context.Context, ts uint64, parts *vecmath.Matrix, ids []uint64, centroids *vecmath.Matrix, offsets []int) error {
	if err := g.store.Append(ctx, g.subURI("parts"), parts, ts); err != nil {
		return err
	}
	if err := g.store.PutBlob(ctx, g.subURI("ids"), ts, encodeUint64s(ids)); err != nil {
		return err
	}
	if g.IndexType == IndexTypeIVFFlat {
		if err := g.store.Append(ctx, g.subURI("centroids"), centroids, ts); err != nil {
			return err
		}
		if err := g.store.PutBlob(ctx, g.subURI("index"), ts, encodeOffsets(offsets)); err != nil {
			return err
		}
	}
	return nil
}

// Publish appends ts to the ingestion history and bumps index_version,
// making the snapshot written by a prior WriteBaseSnapshot visible.
func (g *Group) Publish(ctx context.Context, ts uint64, partitionCount, baseSize int) error {
	g.IngestionTimestamps = append(g.IngestionTimestamps, ts)
	g.PartitionHistory = append(g.PartitionHistory, uint64(partitionCount))
	g.BaseSizes = append(g.BaseSizes, uint64(baseSize))
	g.IndexVersion++
	return g.persist(ctx)
}

// AppendUpdates writes ops to the group's updates log at ts, rejecting
// ts <= the latest ingestion timestamp (§9 design note 3).
func (g *Group) AppendUpdates(ctx context.Context, ops []updatelog.Op, ts uint64) error {
	log := updatelog.Open(g.store, g.subURI("updates"))
	if err := log.Append(ctx, ops, ts, g.LatestIngestionTimestamp()); err != nil {
		return err
	}
	if n, err := log.FragmentCount(ctx); err == nil && n > 10 {
		_ = log.Consolidate(ctx)
	}
	return nil
}

// QueryOptions tunes a Query call; NProbe/MemoryBudgetBytes/ScanOrder are
// ignored for a Flat group.
type QueryOptions struct {
	NProbe            int
	MemoryBudgetBytes int64
	ScanOrder         ivfindex.ScanOrder
}

// Query answers a kNN query against the group's logical view as of ts,
// dispatching to the flat or IVF-Flat engine and fusing the result with
// the updates log via internal/merge.
func (g *Group) Query(ctx context.Context, q *vecmath.Matrix, k int, ts merge.Timestamp, opts QueryOptions) (D [][]float32, I [][]uint64, err error) {
	if q.Cols != g.Dimensions {
		return nil, nil, tdberrors.ShapeMismatch(fmt.Sprintf("query has %d columns, group has dimension %d", q.Cols, g.Dimensions))
	}

	baseTS, ok := merge.ResolveBaseTimestamp(g.IngestionTimestamps, ts)
	baseQuery, err := g.baseQueryFunc(ctx, baseTS, ok, opts)
	if err != nil {
		return nil, nil, err
	}

	log := updatelog.Open(g.store, g.subURI("updates"))
	merger := merge.New(baseQuery, log, g.IngestionTimestamps)
	return merger.Query(ctx, q, k, ts)
}

func (g *Group) baseQueryFunc(ctx context.Context, baseTS uint64, ok bool, opts QueryOptions) (merge.BaseQueryFunc, error) {
	if !ok {
		return func(ctx context.Context, q *vecmath.Matrix, retrievalK int) ([][]float32, [][]uint64, error) {
			rows := q.Rows
			D := make([][]float32, rows)
			I := make([][]uint64, rows)
			for i := 0; i < rows; i++ {
				padded := vecmath.PadSentinel(nil, retrievalK)
				D[i], I[i] = splitNeighbors(padded)
			}
			return D, I, nil
		}, nil
	}

	partsArr, err := g.store.Open(ctx, g.subURI("parts"), storage.ModeRead, storage.TSRange{Lo: baseTS, Hi: baseTS})
	if err != nil {
		return nil, err
	}
	dense, ok := partsArr.(storage.DenseArray)
	if !ok {
		return nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt, "parts array is not dense", nil)
	}
	baseMatrix := dense.Matrix()

	idsBlob, err := g.store.GetBlob(ctx, g.subURI("ids"), baseTS)
	if err != nil {
		return nil, err
	}
	ids := decodeUint64s(idsBlob)

	switch g.IndexType {
	case IndexTypeIVFFlat:
		centArr, err := g.store.Open(ctx, g.subURI("centroids"), storage.ModeRead, storage.TSRange{Lo: baseTS, Hi: baseTS})
		if err != nil {
			return nil, err
		}
		centDense, ok := centArr.(storage.DenseArray)
		if !ok {
			return nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt, "centroids array is not dense", nil)
		}
		offsetsBlob, err := g.store.GetBlob(ctx, g.subURI("index"), baseTS)
		if err != nil {
			return nil, err
		}
		offsets := decodeOffsets(offsetsBlob)

		idx, err := ivfindex.New(centDense.Matrix(), baseMatrix, ids, offsets, g.cacheSize)
		if err != nil {
			return nil, err
		}
		nprobe := opts.NProbe
		if nprobe <= 0 {
			nprobe = idx.P()
		}
		return func(ctx context.Context, q *vecmath.Matrix, retrievalK int) ([][]float32, [][]uint64, error) {
			return idx.Query(ctx, q, retrievalK, nprobe, ivfindex.QueryOptions{
				MemoryBudgetBytes: opts.MemoryBudgetBytes,
				ScanOrder:         opts.ScanOrder,
			})
		}, nil

	default: // IndexTypeFlat
		idx := flatindex.New(baseMatrix)
		return func(ctx context.Context, q *vecmath.Matrix, retrievalK int) ([][]float32, [][]uint64, error) {
			D, I, err := idx.Query(ctx, q, retrievalK)
			if err != nil {
				return nil, nil, err
			}
			remapToExternalIDs(I, ids)
			return D, I, nil
		}, nil
	}
}

// remapToExternalIDs rewrites flatindex's row-index ids into external ids,
// leaving sentinel entries untouched.
func remapToExternalIDs(I [][]uint64, ids []uint64) {
	for row := range I {
		for j, rowIdx := range I[row] {
			if rowIdx == vecmath.SentinelID {
				continue
			}
			I[row][j] = ids[rowIdx]
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

// LiveSnapshot materializes every external id considered live "now" (base
// snapshot fused with the full updates log), the input consolidation
// (§4.G ConsolidateUpdates) folds into a fresh base snapshot. It also
// reports the greatest cell timestamp consumed from the updates log, so
// the caller can pick a new ingestion timestamp strictly greater than it
// (§4.G: "a new ingestion timestamp... strictly greater than any cell
// timestamp in the consumed updates log").
func (g *Group) LiveSnapshot(ctx context.Context) (ids []uint64, vectors [][]float32, maxCellTS uint64, hasUpdates bool, err error) {
	live := make(map[uint64][]float32)

	if len(g.IngestionTimestamps) > 0 {
		baseTS := g.LatestIngestionTimestamp()
		partsArr, err := g.store.Open(ctx, g.subURI("parts"), storage.ModeRead, storage.TSRange{Lo: baseTS, Hi: baseTS})
		if err != nil {
			return nil, nil, 0, false, err
		}
		dense := partsArr.(storage.DenseArray)
		matrix := dense.Matrix()
		idsBlob, err := g.store.GetBlob(ctx, g.subURI("ids"), baseTS)
		if err != nil {
			return nil, nil, 0, false, err
		}
		for i, id := range decodeUint64s(idsBlob) {
			live[id] = matrix.Row(i)
		}
	}

	log := updatelog.Open(g.store, g.subURI("updates"))
	lo := g.LatestIngestionTimestamp() + 1
	deleted, added, err := log.Scan(ctx, storage.TSRange{Lo: lo, Hi: math.MaxUint64})
	if err != nil {
		return nil, nil, 0, false, err
	}
	for id := range deleted {
		delete(live, id)
	}
	for _, av := range added {
		live[av.ID] = av.Vector
	}

	maxCellTS, hasUpdates, err = g.latestUpdateCellTimestamp(ctx)
	if err != nil {
		return nil, nil, 0, false, err
	}

	ids = make([]uint64, 0, len(live))
	vectors = make([][]float32, 0, len(live))
	for id, v := range live {
		ids = append(ids, id)
		vectors = append(vectors, v)
	}
	return ids, vectors, maxCellTS, hasUpdates, nil
}

func (g *Group) latestUpdateCellTimestamp(ctx context.Context) (uint64, bool, error) {
	frags, err := g.store.Fragments(ctx, g.subURI("updates"))
	if err != nil {
		return 0, false, err
	}
	var max uint64
	found := false
	for _, f := range frags {
		if !found || f.TSRange.Hi > max {
			max = f.TSRange.Hi
			found = true
		}
	}
	return max, found, nil
}

func encodeUint64s(vals []uint64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func decodeUint64s(buf []byte) []uint64 {
	n := len(buf) / 8
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}

func encodeOffsets(offsets []int) []byte {
	vals := make([]uint64, len(offsets))
	for i, o := range offsets {
		vals[i] = uint64(o)
	}
	return encodeUint64s(vals)
}

func decodeOffsets(buf []byte) []int {
	vals := decodeUint64s(buf)
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}
