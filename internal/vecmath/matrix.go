// Package vecmath provides the distance and top-k selection kernels shared
// by the flat and IVF indexes: a small tagged-variant matrix type that
// carries u8/i8/f32 base vectors without forcing every caller through
// generics, squared-L2 distance, and two top-k selection strategies.
package vecmath

import "fmt"

// Kind identifies the element type backing a Matrix.
type Kind int

const (
	KindF32 Kind = iota
	KindU8
	KindI8
)

func (k Kind) String() string {
	switch k {
	case KindF32:
		return "f32"
	case KindU8:
		return "u8"
	case KindI8:
		return "i8"
	default:
		return "unknown"
	}
}

func (k Kind) elemSize() int {
	switch k {
	case KindF32:
		return 4
	case KindU8, KindI8:
		return 1
	default:
		return 0
	}
}

// Matrix is a column-major, dynamically-typed dense matrix: Rows vectors
// of Cols dimensions, element type given by Kind. Base arrays are stored
// this way so storage.DenseArray need not be generic over element type;
// queries are always decoded to KindF32 before distance computation.
type Matrix struct {
	Kind Kind
	Rows int
	Cols int
	data []byte
}

// NewMatrix allocates a zeroed Matrix of the given shape and kind.
func NewMatrix(kind Kind, rows, cols int) *Matrix {
	return &Matrix{
		Kind: kind,
		Rows: rows,
		Cols: cols,
		data: make([]byte, rows*cols*kind.elemSize()),
	}
}

// NewMatrixFromF32 builds an f32 matrix from row-major data, copying it
// into a new backing buffer.
func NewMatrixFromF32(rows, cols int, data []float32) *Matrix {
	m := &Matrix{Kind: KindF32, Rows: rows, Cols: cols}
	m.data = f32SliceToBytes(data)
	return m
}

// Row returns row i decoded to float32, regardless of the underlying Kind.
// Callers on a hot path should prefer RowInto to avoid the allocation.
func (m *Matrix) Row(i int) []float32 {
	out := make([]float32, m.Cols)
	m.RowInto(i, out)
	return out
}

// RowInto decodes row i into dst, which must have length >= m.Cols.
func (m *Matrix) RowInto(i int, dst []float32) {
	if i < 0 || i >= m.Rows {
		panic(fmt.Sprintf("vecmath: row %d out of range [0,%d)", i, m.Rows))
	}
	start := i * m.Cols
	switch m.Kind {
	case KindF32:
		f32 := bytesToF32Slice(m.data)
		copy(dst, f32[start:start+m.Cols])
	case KindU8:
		for j := 0; j < m.Cols; j++ {
			dst[j] = float32(m.data[start+j])
		}
	case KindI8:
		for j := 0; j < m.Cols; j++ {
			dst[j] = float32(int8(m.data[start+j]))
		}
	}
}

// SetRow writes a float32 row into row i, converting/truncating to the
// matrix's Kind (used by ingestion when writing u8/i8 base columns).
func (m *Matrix) SetRow(i int, row []float32) {
	if len(row) != m.Cols {
		panic(fmt.Sprintf("vecmath: row length %d does not match Cols %d", len(row), m.Cols))
	}
	start := i * m.Cols
	switch m.Kind {
	case KindF32:
		f32 := bytesToF32Slice(m.data)
		copy(f32[start:start+m.Cols], row)
	case KindU8:
		for j, v := range row {
			m.data[start+j] = byte(uint8(v))
		}
	case KindI8:
		for j, v := range row {
			m.data[start+j] = byte(int8(v))
		}
	}
}

// Bytes exposes the raw backing buffer, used by storage when persisting a
// fragment as an opaque blob.
func (m *Matrix) Bytes() []byte {
	return m.data
}

// SetBytes replaces the backing buffer wholesale, used by storage when
// decoding a fragment blob back into a Matrix of known shape/kind.
func (m *Matrix) SetBytes(data []byte) {
	m.data = data
}

// Float32sToBytes copies a float32 slice into a new byte slice, used by
// storage to serialize sparse update-log value cells (always
// carried as f32 regardless of the base array's element kind).
func Float32sToBytes(f []float32) []byte {
	return f32SliceToBytes(f)
}

// BytesToFloat32s reinterprets a byte slice as float32 without copying.
func BytesToFloat32s(b []byte) []float32 {
	return bytesToF32Slice(b)
}

func f32SliceToBytes(f []float32) []byte {
	b := make([]byte, len(f)*4)
	fs := bytesToF32Slice(b)
	copy(fs, f)
	return b
}
