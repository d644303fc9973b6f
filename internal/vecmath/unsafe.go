package vecmath

import "unsafe"

// bytesToF32Slice reinterprets a byte buffer as a float32 slice without
// copying, the same raw-reinterpret idiom sneller's columnar buffers use
// for packed numeric vectors.
func bytesToF32Slice(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), n)
}
