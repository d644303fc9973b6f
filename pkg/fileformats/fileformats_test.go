package fileformats

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dudoslav/TileDB-Vector-Search/internal/vecmath"
)

func writeFvecs(t *testing.T, rows [][]float32) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, row := range rows {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(row))))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, row))
	}
	return buf.Bytes()
}

func TestReadFvecs(t *testing.T) {
	rows := [][]float32{{1, 2, 3}, {4, 5, 6}}
	m, err := ReadFvecs(bytes.NewReader(writeFvecs(t, rows)))
	require.NoError(t, err)
	require.Equal(t, 2, m.Rows)
	require.Equal(t, 3, m.Cols)
	require.Equal(t, vecmath.KindF32, m.Kind)
	require.Equal(t, []float32{1, 2, 3}, m.Row(0))
	require.Equal(t, []float32{4, 5, 6}, m.Row(1))
}

func TestReadFvecs_DimensionMismatch(t *testing.T) {
	rows := [][]float32{{1, 2, 3}, {4, 5}}
	_, err := ReadFvecs(bytes.NewReader(writeFvecs(t, rows)))
	require.Error(t, err)
}

func TestReadIvecs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]int32{7, 9}))

	out, err := ReadIvecs(&buf)
	require.NoError(t, err)
	require.Equal(t, 2, out.Dim)
	require.Equal(t, [][]int32{{7, 9}}, out.Rows)
}

func TestReadU8Bin(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(3)))
	buf.Write([]byte{1, 2, 3, 4, 5, 6})

	m, err := ReadU8Bin(&buf)
	require.NoError(t, err)
	require.Equal(t, vecmath.KindU8, m.Kind)
	require.Equal(t, []float32{1, 2, 3}, m.Row(0))
	require.Equal(t, []float32{4, 5, 6}, m.Row(1))
}

func TestReadF32Bin(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0.5, 1.5}))

	m, err := ReadF32Bin(&buf)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 1.5}, m.Row(0))
}
