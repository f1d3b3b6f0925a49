package pointcloud

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

func smallIntrinsics() *stereo.Intrinsics {
	return &stereo.Intrinsics{Width: 4, Height: 2, Fx: 2, Fy: 2, Ppx: 2, Ppy: 1}
}

func TestNewProjector_RequiresIntrinsics(t *testing.T) {
	_, err := NewProjector(nil)
	assert.ErrorIs(t, err, ErrNoIntrinsics)

	_, err = NewProjector(&stereo.Intrinsics{Width: 640, Height: 400})
	assert.ErrorIs(t, err, ErrNoIntrinsics)

	p, err := NewProjector(smallIntrinsics())
	require.NoError(t, err)
	assert.Equal(t, 4, p.Intrinsics().Width)
}

func TestProject_MatchesPinholeModel(t *testing.T) {
	in := stereo.DefaultRightIntrinsics()
	p, err := NewProjector(&in)
	require.NoError(t, err)

	depth := frame.NewDepthMap(in.Width, in.Height)
	depth.Set(10, 20, 1500)
	depth.Set(600, 380, 616)

	cloud, err := p.Project(depth, nil, false)
	require.NoError(t, err)
	require.Equal(t, 2, cloud.Len())

	for i, px := range [][3]float64{{10, 20, 1500}, {600, 380, 616}} {
		x, y, z := in.PixelToPoint(px[0], px[1], px[2]/1000)
		got := cloud.Points[i].Position
		assert.InDelta(t, x, got.X, 1e-9)
		assert.InDelta(t, y, got.Y, 1e-9)
		assert.InDelta(t, z, got.Z, 1e-9)
	}
	assert.Equal(t, 0xFFFFFF, cloud.Points[0].PackedRGB())
}

func TestProject_SkipsNoDepth(t *testing.T) {
	p, err := NewProjector(smallIntrinsics())
	require.NoError(t, err)

	depth := &frame.DepthMap{Width: 4, Height: 2, Data: []uint16{0, 1000, 0, 2000, 0, 0, 0, 3000}}
	cloud, err := p.Project(depth, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, cloud.Len())
	for _, pt := range cloud.Points {
		assert.Greater(t, pt.Position.Z, 0.0)
	}
}

func TestProject_GrayBackdrop(t *testing.T) {
	p, err := NewProjector(smallIntrinsics())
	require.NoError(t, err)

	backdrop := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 4, gocv.MatTypeCV8UC1)
	defer backdrop.Close()
	backdrop.SetUCharAt(1, 3, 77)

	depth := frame.NewDepthMap(4, 2)
	depth.Set(3, 1, 1000)

	cloud, err := p.Project(depth, &backdrop, false)
	require.NoError(t, err)
	require.Equal(t, 1, cloud.Len())
	pt := cloud.Points[0]
	assert.Equal(t, [3]uint8{77, 77, 77}, [3]uint8{pt.R, pt.G, pt.B})
}

func TestProject_ColorBackdrop(t *testing.T) {
	p, err := NewProjector(smallIntrinsics())
	require.NoError(t, err)

	// BGR (10, 20, 30)
	backdrop := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 2, 4, gocv.MatTypeCV8UC3)
	defer backdrop.Close()

	depth := frame.NewDepthMap(4, 2)
	depth.Set(0, 0, 500)

	cloud, err := p.Project(depth, &backdrop, true)
	require.NoError(t, err)
	pt := cloud.Points[0]
	assert.Equal(t, [3]uint8{30, 20, 10}, [3]uint8{pt.R, pt.G, pt.B})
	assert.Equal(t, 30<<16|20<<8|10, pt.PackedRGB())

	// A gray backdrop cannot be used as a colorized one.
	gray := gocv.NewMatWithSize(2, 4, gocv.MatTypeCV8UC1)
	defer gray.Close()
	_, err = p.Project(depth, &gray, true)
	assert.Error(t, err)
}

func TestProject_SizeMismatch(t *testing.T) {
	p, err := NewProjector(smallIntrinsics())
	require.NoError(t, err)

	_, err = p.Project(frame.NewDepthMap(8, 2), nil, false)
	assert.True(t, errors.Is(err, ErrSize))

	backdrop := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	defer backdrop.Close()
	_, err = p.Project(frame.NewDepthMap(4, 2), &backdrop, false)
	assert.ErrorIs(t, err, ErrSize)
}

func TestCloud_BoundsAndCentroid(t *testing.T) {
	empty := &Cloud{}
	_, _, ok := empty.Bounds()
	assert.False(t, ok)
	assert.Equal(t, r3.Vector{}, empty.Centroid())

	c := &Cloud{Points: []Point{
		{Position: r3.Vector{X: -1, Y: 0, Z: 1}},
		{Position: r3.Vector{X: 1, Y: 2, Z: 3}},
	}}
	min, max, ok := c.Bounds()
	require.True(t, ok)
	assert.Equal(t, r3.Vector{X: -1, Y: 0, Z: 1}, min)
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, max)
	assert.Equal(t, r3.Vector{X: 0, Y: 1, Z: 2}, c.Centroid())
}

func TestCloud_WritePCD(t *testing.T) {
	c := &Cloud{Width: 2, Height: 1, Points: []Point{
		{Position: r3.Vector{X: 0.5, Y: -0.25, Z: 1}, R: 255},
		{Position: r3.Vector{X: 0, Y: 0, Z: 2}, B: 1},
	}}

	var buf bytes.Buffer
	require.NoError(t, c.WritePCD(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "VERSION .7", lines[0])
	assert.Equal(t, "FIELDS x y z rgb", lines[1])
	assert.Equal(t, "WIDTH 2", lines[5])
	assert.Equal(t, "POINTS 2", lines[8])
	assert.Equal(t, "DATA ascii", lines[9])
	assert.Equal(t, "0.500000 -0.250000 1.000000 16711680", lines[10])
	assert.Equal(t, "0.000000 0.000000 2.000000 1", lines[11])
}
