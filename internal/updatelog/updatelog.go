// Package updatelog implements the sparse updates log that sits on top
// of a group's immutable base index: inserts, replaces, and deletes that
// haven't yet been folded into a new base snapshot by ingestion.
package updatelog

import (
	"context"
	"fmt"

	"github.com/dudoslav/TileDB-Vector-Search/internal/storage"
	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
)

// Op is one logical write against the updates log: a tombstone (nil/empty
// Vector) or an insert/replace (non-empty Vector).
type Op struct {
	ExternalID uint64
	Vector     []float32
}

// Log wraps a storage.Store's sparse "updates" sub-array for one group.
type Log struct {
	store *storage.SQLiteStore
	uri   string
}

// Open binds a Log to an already-created sparse array at uri.
func Open(store *storage.SQLiteStore, uri string) *Log {
	return &Log{store: store, uri: uri}
}

// Create registers the updates sub-array's schema with the backing store.
func Create(ctx context.Context, store *storage.SQLiteStore, uri string, cols int) (*Log, error) {
	schema := storage.Schema{Sparse: &storage.SparseSchema{Cols: cols}}
	if err := store.Create(ctx, uri, schema); err != nil {
		return nil, err
	}
	return Open(store, uri), nil
}

// Append writes ops as one new fragment at timestamp ts. It rejects
// ts <= latestIngestionTimestamp: the updates log only ever holds writes
// strictly after the base it layers on top of.
func (l *Log) Append(ctx context.Context, ops []Op, ts, latestIngestionTimestamp uint64) error {
	if ts <= latestIngestionTimestamp {
		return tdberrors.TimestampBeforeLatestIngestion(
			fmt.Sprintf("update timestamp %d must be strictly greater than latest ingestion timestamp %d", ts, latestIngestionTimestamp))
	}
	if len(ops) == 0 {
		return nil
	}

	cells := make([]storage.SparseCell, len(ops))
	for i, op := range ops {
		cells[i] = storage.SparseCell{ExternalID: op.ExternalID, Value: op.Vector}
	}
	return l.store.Append(ctx, l.uri, cells, ts)
}

// Scan reads every row in tsRange, keeps only the largest cell_ts per
// external id (last-write-wins), and partitions the result into deleted
// ids (tombstones) and added/replaced id-vector pairs.
func (l *Log) Scan(ctx context.Context, tsRange storage.TSRange) (deleted map[uint64]struct{}, added []IDVector, err error) {
	arr, err := l.store.Open(ctx, l.uri, storage.ModeRead, tsRange)
	if err != nil {
		return nil, nil, err
	}

	sparse, ok := arr.(storage.SparseArray)
	if !ok {
		return nil, nil, tdberrors.New(tdberrors.ErrCodeStorageCorrupt, "updates array is not sparse", nil)
	}

	deleted = make(map[uint64]struct{})
	for _, cell := range sparse.Cells() {
		if len(cell.Value) == 0 {
			deleted[cell.ExternalID] = struct{}{}
			continue
		}
		added = append(added, IDVector{ID: cell.ExternalID, Vector: cell.Value})
	}

	return deleted, added, nil
}

// Consolidate merges the updates log's physical fragments into one,
// exposed directly since a >10-fragment updates log is the case called
// out by §4.A for consolidation.
func (l *Log) Consolidate(ctx context.Context) error {
	return l.store.Consolidate(ctx, l.uri)
}

// FragmentCount reports the current physical fragment count, used by
// callers to decide when to trigger Consolidate.
func (l *Log) FragmentCount(ctx context.Context) (int, error) {
	frags, err := l.store.Fragments(ctx, l.uri)
	if err != nil {
		return 0, err
	}
	return len(frags), nil
}

// IDVector pairs an external id with its current vector, the shape
// internal/merge and internal/flatindex need for a brute-force scan over
// the updates log's live (non-tombstoned) rows.
type IDVector struct {
	ID     uint64
	Vector []float32
}
