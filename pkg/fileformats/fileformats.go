// Package fileformats reads the simple length/header-prefixed vector
// formats listed in §6 "File formats (ingestion sources)": fvecs/ivecs
// (per-vector i32 dimension header) and the u8bin/f32bin row-major blobs
// used by big-ANN-style ground-truth and base datasets. These are
// ingestion sources only, not part of the storage adapter itself.
package fileformats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dudoslav/TileDB-Vector-Search/internal/tdberrors"
	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

// ReadFvecs reads a complete fvecs stream into a KindF32 matrix. Every
// vector must share the dimension of the first; a mismatch is reported
// as TypeMismatch since it indicates a malformed or concatenated file.
func ReadFvecs(r io.Reader) (*vecmath.Matrix, error) {
	br := bufio.NewReader(r)

	var rows [][]float32
	dim := -1
	for {
		var d int32
		if err := binary.Read(br, binary.LittleEndian, &d); err != nil {
			if err == io.EOF {
				break
			}
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		if dim == -1 {
			dim = int(d)
		} else if int(d) != dim {
			return nil, tdberrors.TypeMismatch(fmt.Sprintf("fvecs: vector dimension changed from %d to %d", dim, d))
		}

		row := make([]float32, d)
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		rows = append(rows, row)
	}

	return buildF32Matrix(rows, dim)
}

// IVecs is the parsed contents of an ivecs file: typically ground-truth
// neighbor ids rather than vectors to be ingested, kept as raw rows
// rather than a vecmath.Matrix.
type IVecs struct {
	Dim  int
	Rows [][]int32
}

// ReadIvecs reads a complete ivecs stream (ground-truth neighbor lists).
func ReadIvecs(r io.Reader) (*IVecs, error) {
	br := bufio.NewReader(r)

	out := &IVecs{Dim: -1}
	for {
		var d int32
		if err := binary.Read(br, binary.LittleEndian, &d); err != nil {
			if err == io.EOF {
				break
			}
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		if out.Dim == -1 {
			out.Dim = int(d)
		} else if int(d) != out.Dim {
			return nil, tdberrors.TypeMismatch(fmt.Sprintf("ivecs: row dimension changed from %d to %d", out.Dim, d))
		}

		row := make([]int32, d)
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// ReadU8Bin reads a u8bin stream: header (u32 N, u32 d) then N*d bytes
// of row-major u8 data.
func ReadU8Bin(r io.Reader) (*vecmath.Matrix, error) {
	n, d, err := readBinHeader(r)
	if err != nil {
		return nil, err
	}

	data := make([]byte, n*d)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}

	m := vecmath.NewMatrix(vecmath.KindU8, n, d)
	m.SetBytes(data)
	return m, nil
}

// ReadF32Bin reads an f32bin stream: header (u32 N, u32 d) then N*d
// row-major float32s.
func ReadF32Bin(r io.Reader) (*vecmath.Matrix, error) {
	n, d, err := readBinHeader(r)
	if err != nil {
		return nil, err
	}

	m := vecmath.NewMatrix(vecmath.KindF32, n, d)
	row := make([]float32, d)
	for i := 0; i < n; i++ {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func readBinHeader(r io.Reader) (n, d int, err error) {
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, header[:]); err != nil {
		return 0, 0, tdberrors.Wrap(tdberrors.ErrCodeStorageIO, err)
	}
	return int(header[0]), int(header[1]), nil
}

func buildF32Matrix(rows [][]float32, dim int) (*vecmath.Matrix, error) {
	if dim < 0 {
		dim = 0
	}
	m := vecmath.NewMatrix(vecmath.KindF32, len(rows), dim)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m, nil
}
