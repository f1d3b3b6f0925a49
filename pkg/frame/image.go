package frame

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Format is the pixel layout of a decoded image.
type Format int

const (
	Gray8 Format = iota
	Gray16
	BGR8
)

func (f Format) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case Gray16:
		return "gray16"
	case BGR8:
		return "bgr8"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Image is a decoded frame backed by an OpenCV matrix.
// The receiver of an Image owns it and must Close it.
type Image struct {
	gocv.Mat
	Format Format
}

// matFromBytes copies data into a new matrix so the result does not alias
// Go memory.
func matFromBytes(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("wrap %dx%d buffer: %w", cols, rows, err)
	}
	defer view.Close()
	return view.Clone(), nil
}

// matFromUint16 builds a CV_16UC1 matrix from samples.
func matFromUint16(rows, cols int, samples []uint16) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV16UC1)
	dst, err := m.DataPtrUint16()
	if err != nil {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("access 16-bit matrix: %w", err)
	}
	copy(dst, samples)
	return m, nil
}
