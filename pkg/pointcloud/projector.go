// Package pointcloud back-projects depth maps into 3-D points using the
// pinhole intrinsics of the camera the depth is aligned to.
package pointcloud

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// ErrNoIntrinsics means the projector cannot be built: point cloud output
// needs calibrated intrinsics.
var ErrNoIntrinsics = stereo.ErrNoIntrinsics

// ErrSize is returned when the depth map, the backdrop and the intrinsics do
// not share one resolution.
var ErrSize = errors.New("point cloud inputs differ in size")

// Projector turns depth maps into clouds. It is immutable and safe for
// concurrent use.
type Projector struct {
	intrinsics stereo.Intrinsics
	kinv       [3][3]float64
}

// NewProjector validates in and precomputes the inverse camera matrix.
func NewProjector(in *stereo.Intrinsics) (*Projector, error) {
	if err := in.CheckValid(); err != nil {
		return nil, fmt.Errorf("point cloud projector: %w", err)
	}

	var inv mat.Dense
	if err := inv.Inverse(in.CameraMatrix()); err != nil {
		return nil, fmt.Errorf("point cloud projector: invert camera matrix: %w", err)
	}

	p := &Projector{intrinsics: *in}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			p.kinv[r][c] = inv.At(r, c)
		}
	}
	return p, nil
}

// Intrinsics returns the calibration the projector was built with.
func (p *Projector) Intrinsics() stereo.Intrinsics {
	return p.intrinsics
}

// Project back-projects every valid pixel of depth. Points are in metres in
// the camera frame (x right, y down, z forward). The backdrop colours the
// points: a BGR image when colorized is set, a grayscale one otherwise. A nil
// or empty backdrop leaves points white.
func (p *Projector) Project(depth *frame.DepthMap, backdrop *gocv.Mat, colorized bool) (*Cloud, error) {
	if depth.Width != p.intrinsics.Width || depth.Height != p.intrinsics.Height {
		return nil, fmt.Errorf("%w: depth %dx%d, intrinsics %dx%d",
			ErrSize, depth.Width, depth.Height, p.intrinsics.Width, p.intrinsics.Height)
	}

	hasColor := backdrop != nil && !backdrop.Empty()
	if hasColor {
		if backdrop.Cols() != depth.Width || backdrop.Rows() != depth.Height {
			return nil, fmt.Errorf("%w: depth %dx%d, backdrop %dx%d",
				ErrSize, depth.Width, depth.Height, backdrop.Cols(), backdrop.Rows())
		}
		want := 1
		if colorized {
			want = 3
		}
		if backdrop.Channels() != want {
			return nil, fmt.Errorf("backdrop has %d channels, want %d", backdrop.Channels(), want)
		}
	}

	cloud := &Cloud{
		Width:  depth.Width,
		Height: depth.Height,
		Points: make([]Point, 0, depth.ValidCount()),
	}

	for y := 0; y < depth.Height; y++ {
		for x := 0; x < depth.Width; x++ {
			mm, ok := depth.At(x, y)
			if !ok {
				continue
			}

			pt := Point{Position: p.unproject(float64(x), float64(y), float64(mm)/1000), R: 255, G: 255, B: 255}
			if hasColor {
				if colorized {
					bgr := backdrop.GetVecbAt(y, x)
					pt.R, pt.G, pt.B = bgr[2], bgr[1], bgr[0]
				} else {
					v := backdrop.GetUCharAt(y, x)
					pt.R, pt.G, pt.B = v, v, v
				}
			}
			cloud.Points = append(cloud.Points, pt)
		}
	}
	return cloud, nil
}

// unproject computes z * K^-1 * [u v 1].
func (p *Projector) unproject(u, v, z float64) r3.Vector {
	k := &p.kinv
	return r3.Vector{
		X: z * (k[0][0]*u + k[0][1]*v + k[0][2]),
		Y: z * (k[1][0]*u + k[1][1]*v + k[1][2]),
		Z: z * (k[2][0]*u + k[2][1]*v + k[2][2]),
	}
}
