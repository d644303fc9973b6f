// Package storage implements the array/store abstraction: dense
// column-major base arrays and sparse external-id-keyed arrays, persisted
// as timestamp-ranged fragments so reads at a given ts_range see exactly
// the cells written within it and nothing written later.
package storage

import (
	"context"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// Mode selects how an array is opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// TSRange is an inclusive timestamp range [Lo, Hi] used for time-travel
// reads. A zero Hi (0,0) is invalid; callers must supply an explicit
// upper bound, typically "now" or a specific ingestion timestamp.
type TSRange struct {
	Lo uint64
	Hi uint64
}

// Contains reports whether ts falls within the inclusive range.
func (r TSRange) Contains(ts uint64) bool {
	return ts >= r.Lo && ts <= r.Hi
}

// Overlaps reports whether r and other share any timestamp.
func (r TSRange) Overlaps(other TSRange) bool {
	return r.Lo <= other.Hi && other.Lo <= r.Hi
}

// Schema describes the shape of an array at creation time.
type Schema struct {
	// Dense describes a dense column-major array; nil for sparse arrays.
	Dense *DenseSchema
	// Sparse describes a sparse array; nil for dense arrays.
	Sparse *SparseSchema
}

// DenseSchema fixes the element kind and dimensionality of a dense array.
type DenseSchema struct {
	Kind vecmath.Kind
	Cols int
}

// SparseSchema fixes the element kind of a sparse array's value cells.
type SparseSchema struct {
	Kind vecmath.Kind
	Cols int
}

// FragmentInfo describes one physical fragment of an array.
type FragmentInfo struct {
	FragmentID string
	TSRange    TSRange
	// ColLo/ColHi bound the dense column range this fragment covers;
	// zero-valued for sparse-array fragments, which carry rows instead.
	ColLo, ColHi int
	Rows         int
}

// Array is the common read surface of a dense or sparse array opened at
// a particular ts_range.
type Array interface {
	// TSRange returns the range this array view was opened with.
	TSRange() TSRange
}

// DenseArray is a column-major typed base array, merged from whichever
// fragments overlap the opened ts_range (later fragment wins per column).
type DenseArray interface {
	Array
	// Matrix returns the merged dense data as of the opened ts_range.
	Matrix() *vecmath.Matrix
	// Size returns the number of columns (base vectors).
	Size() int
}

// SparseCell is one row of a sparse array: an external id, the
// timestamp the cell was written at, and its value (nil/empty Value
// encodes a tombstone, i.e. a delete).
type SparseCell struct {
	ExternalID uint64
	Timestamp  uint64
	Value      []float32 // nil/empty means deleted
}

// SparseArray is an external-id-keyed array merged by last-write-wins on
// cell timestamp within the opened ts_range.
type SparseArray interface {
	Array
	// Cells returns the merged rows, one per distinct external id, in
	// unspecified order.
	Cells() []SparseCell
}

// Store is the storage adapter contract: create/open/append/consolidate/
// vacuum/fragments, mirroring the original TileDB array API surface.
type Store interface {
	Create(ctx context.Context, uri string, schema Schema) error
	Open(ctx context.Context, uri string, mode Mode, ts TSRange) (Array, error)
	Append(ctx context.Context, uri string, cells any, ts uint64) error
	Consolidate(ctx context.Context, uri string) error
	Vacuum(ctx context.Context, uri string) error
	Fragments(ctx context.Context, uri string) ([]FragmentInfo, error)
	Close() error
}
