package sim

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// Scene is a flat wall with a disc floating in front of it. The disc drifts
// left and right as frames advance.
type Scene struct {
	Width  int
	Height int

	WallMM float64
	DiscMM float64
	// DiscRadius is in pixels; 0 means a quarter of the height.
	DiscRadius int
}

// DefaultScene is a 640x400 view of a wall 2 m away and a disc at 1 m.
func DefaultScene() Scene {
	return Scene{Width: 640, Height: 400, WallMM: 2000, DiscMM: 1000}
}

func (s Scene) radius() int {
	if s.DiscRadius > 0 {
		return s.DiscRadius
	}
	return s.Height / 4
}

// center returns the disc centre for frame seq.
func (s Scene) center(seq uint64) image.Point {
	swing := float64(s.Width) / 4
	x := float64(s.Width)/2 + swing*math.Sin(float64(seq)*0.05)
	return image.Pt(int(x), s.Height/2)
}

func (s Scene) inDisc(x, y int, c image.Point) bool {
	dx, dy := x-c.X, y-c.Y
	r := s.radius()
	return dx*dx+dy*dy <= r*r
}

// Mono renders the scene as seen from one camera. shift moves the disc
// horizontally to fake parallax.
func (s Scene) Mono(seq uint64, shift int) []byte {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(60, 0, 0, 0), s.Height, s.Width, gocv.MatTypeCV8UC1)
	defer img.Close()

	grid := color.RGBA{120, 120, 120, 0}
	for x := 0; x < s.Width; x += 40 {
		gocv.Line(&img, image.Pt(x, 0), image.Pt(x, s.Height-1), grid, 1)
	}
	for y := 0; y < s.Height; y += 40 {
		gocv.Line(&img, image.Pt(0, y), image.Pt(s.Width-1, y), grid, 1)
	}

	c := s.center(seq)
	c.X += shift
	gocv.Circle(&img, c, s.radius(), color.RGBA{220, 220, 220, 0}, -1)

	return img.ToBytes()
}

// Pair renders the left and right views with the parallax of the disc.
func (s Scene) Pair(seq uint64, cfg stereo.Config) (left, right []byte) {
	px := int(cfg.DisparityFromDepth(s.DiscMM)) / cfg.DisparityLevels()
	return s.Mono(seq, px/2), s.Mono(seq, -px/2)
}

// Disparity returns the disparity samples for frame seq, encoded the way the
// device sends them: one byte per pixel, or little-endian 16-bit in subpixel
// mode.
func (s Scene) Disparity(seq uint64, cfg stereo.Config) []byte {
	wall := cfg.DisparityFromDepth(s.WallMM)
	disc := cfg.DisparityFromDepth(s.DiscMM)
	c := s.center(seq)

	bpp := cfg.DisparityBytes()
	out := make([]byte, s.Width*s.Height*bpp)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			d := wall
			if s.inDisc(x, y, c) {
				d = disc
			}
			i := y*s.Width + x
			if bpp == 2 {
				binary.LittleEndian.PutUint16(out[2*i:], d)
			} else {
				out[i] = byte(d)
			}
		}
	}
	return out
}

// Depth returns 16-bit little-endian millimetres for frame seq.
func (s Scene) Depth(seq uint64) []byte {
	c := s.center(seq)
	wall, disc := uint16(s.WallMM), uint16(s.DiscMM)

	out := make([]byte, 2*s.Width*s.Height)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			v := wall
			if s.inDisc(x, y, c) {
				v = disc
			}
			binary.LittleEndian.PutUint16(out[2*(y*s.Width+x):], v)
		}
	}
	return out
}

// colour renders a BGR view of the scene at w x h.
func (s Scene) colour(seq uint64, w, h int) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 60, 30, 0), h, w, gocv.MatTypeCV8UC3)
	c := s.center(seq)
	c = image.Pt(c.X*w/s.Width, c.Y*h/s.Height)
	r := s.radius() * h / s.Height
	gocv.Circle(&img, c, r, color.RGBA{R: 230, G: 80, B: 40}, -1)
	return img
}

// Preview renders the colour preview as planar BGR (3 x h x w), the camera's
// default colour order.
func (s Scene) Preview(seq uint64, w, h int) []byte {
	img := s.colour(seq, w, h)
	defer img.Close()

	planes := gocv.Split(img)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	out := make([]byte, 0, 3*w*h)
	for _, p := range planes {
		out = append(out, p.ToBytes()...)
	}
	return out
}

// Video renders the RGB video as NV12: a full Y plane then interleaved UV at
// half resolution. w and h must be even.
func (s Scene) Video(seq uint64, w, h int) []byte {
	img := s.colour(seq, w, h)
	defer img.Close()

	i420 := gocv.NewMat()
	defer i420.Close()
	gocv.CvtColor(img, &i420, gocv.ColorBGRToYUVI420)
	planar := i420.ToBytes()

	ySize := w * h
	cSize := ySize / 4
	out := make([]byte, ySize+2*cSize)
	copy(out, planar[:ySize])
	u := planar[ySize : ySize+cSize]
	v := planar[ySize+cSize:]
	for i := 0; i < cSize; i++ {
		out[ySize+2*i] = u[i]
		out[ySize+2*i+1] = v[i]
	}
	return out
}
