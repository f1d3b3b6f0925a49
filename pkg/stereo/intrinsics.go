package stereo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when a camera has no usable intrinsic parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// Intrinsics is a pinhole camera model for one sensor at one resolution.
type Intrinsics struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// DefaultRightIntrinsics is the factory calibration of the right mono
// camera at 640x400, used when the device does not report its own.
func DefaultRightIntrinsics() Intrinsics {
	return Intrinsics{
		Width:  640,
		Height: 400,
		Fx:     394.4684143066406,
		Fy:     394.4684143066406,
		Ppx:    330.13140869140625,
		Ppy:    198.85931396484375,
	}
}

// FromMatrix builds intrinsics from a row-major 3x3 camera matrix.
func FromMatrix(k [3][3]float64, width, height int) Intrinsics {
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     k[0][0],
		Fy:     k[1][1],
		Ppx:    k[0][2],
		Ppy:    k[1][2],
	}
}

// CheckValid reports missing or nonsensical parameters.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return ErrNoIntrinsics
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("invalid size (%d, %d): %w", in.Width, in.Height, ErrNoIntrinsics)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("invalid focal length (%v, %v): %w", in.Fx, in.Fy, ErrNoIntrinsics)
	}
	return nil
}

// CameraMatrix returns K.
func (in *Intrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Ppx,
		0, in.Fy, in.Ppy,
		0, 0, 1,
	})
}

// PixelToPoint back-projects pixel (x, y) at depth z. The result is in the
// unit of z.
func (in *Intrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	xOverZ := (x - in.Ppx) / in.Fx
	yOverZ := (y - in.Ppy) / in.Fy
	return xOverZ * z, yOverZ * z, z
}
