package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/pointcloud"
)

func TestOpen(t *testing.T) {
	root := t.TempDir()

	s, err := Open(root)
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(s.Dir()))

	_, err = uuid.Parse(filepath.Base(s.Dir()))
	assert.NoError(t, err, "session dir should be a UUID")

	other, err := Open(root)
	require.NoError(t, err)
	assert.NotEqual(t, s.Dir(), other.Dir())

	_, err = Open("")
	assert.Error(t, err)
}

func TestSaveImage(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 2, 3, 0), 4, 6, gocv.MatTypeCV8UC3)
	defer img.Close()

	require.NoError(t, s.SaveImage(7, frame.Disparity, img))
	path := s.ImagePath(7, frame.Disparity)
	assert.Equal(t, "7-disparity.png", filepath.Base(path))

	back := gocv.IMRead(path, gocv.IMReadColor)
	defer back.Close()
	require.False(t, back.Empty())
	assert.Equal(t, 4, back.Rows())
	assert.Equal(t, 6, back.Cols())
	assert.EqualValues(t, 1, s.Written())

	empty := gocv.NewMat()
	defer empty.Close()
	assert.ErrorIs(t, s.SaveImage(8, frame.Left, empty), ErrWrite)
}

func TestSaveProjectionInputs(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	depth := &frame.DepthMap{Width: 3, Height: 2, Data: []uint16{0, 616, 1000, 65535, 300, 1}}
	right := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV8UC1)
	defer right.Close()

	require.NoError(t, s.SaveProjectionInputs(3, depth, right))

	pgm := filepath.Join(s.Dir(), "3-tmpImgDepth.pgm")
	back := gocv.IMRead(pgm, gocv.IMReadUnchanged)
	defer back.Close()
	require.False(t, back.Empty())
	assert.Equal(t, gocv.MatTypeCV16UC1, back.Type())
	samples, err := back.DataPtrUint16()
	require.NoError(t, err)
	assert.Equal(t, depth.Data, samples)

	_, err = os.Stat(filepath.Join(s.Dir(), "3-tmpImgRight.png"))
	assert.NoError(t, err)
}

func TestSaveCloud(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	cloud := &pointcloud.Cloud{Points: []pointcloud.Point{{Position: r3.Vector{Z: 1}}}}
	require.NoError(t, s.SaveCloud(5, cloud))

	data, err := os.ReadFile(filepath.Join(s.Dir(), "5-cloud.pcd"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "VERSION .7\n"))
	assert.Contains(t, string(data), "POINTS 1\n")
}

func TestSaveDepthHistogram(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	depth := &frame.DepthMap{Width: 4, Height: 1, Data: []uint16{0, 600, 616, 2000}}
	ok, err := s.SaveDepthHistogram(2, depth)
	require.NoError(t, err)
	assert.True(t, ok)

	info, err := os.Stat(filepath.Join(s.Dir(), "2-depthHist.png"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.EqualValues(t, 1, s.Written())

	ok, err = s.SaveDepthHistogram(3, &frame.DepthMap{Width: 2, Height: 1, Data: []uint16{0, 0}})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, s.Written())
}
