package frame

import (
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// DepthMap holds per-pixel distances in millimetres, row-major.
// stereo.NoDepth marks pixels without an estimate.
type DepthMap struct {
	Width  int
	Height int
	Data   []uint16
}

// NewDepthMap returns a map with every pixel set to NoDepth.
func NewDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		Width:  width,
		Height: height,
		Data:   make([]uint16, width*height),
	}
}

// At returns the depth at (x, y) and whether it is a real estimate.
func (dm *DepthMap) At(x, y int) (uint16, bool) {
	if x < 0 || y < 0 || x >= dm.Width || y >= dm.Height {
		return stereo.NoDepth, false
	}
	v := dm.Data[y*dm.Width+x]
	return v, v != stereo.NoDepth
}

// Set stores a depth at (x, y).
func (dm *DepthMap) Set(x, y int, mm uint16) {
	dm.Data[y*dm.Width+x] = mm
}

// ValidCount returns the number of pixels carrying an estimate.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, v := range dm.Data {
		if v != stereo.NoDepth {
			n++
		}
	}
	return n
}

// DepthStats summarizes the valid pixels of a depth map, in millimetres.
type DepthStats struct {
	Valid    int     `json:"valid"`
	Coverage float64 `json:"coverage"`
	Min      float64 `json:"min_mm"`
	Max      float64 `json:"max_mm"`
	Mean     float64 `json:"mean_mm"`
	Median   float64 `json:"median_mm"`
}

// Stats computes DepthStats. A map without valid pixels returns zero values.
func (dm *DepthMap) Stats() DepthStats {
	valid := make([]float64, 0, len(dm.Data))
	for _, v := range dm.Data {
		if v != stereo.NoDepth {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return DepthStats{}
	}
	sort.Float64s(valid)

	return DepthStats{
		Valid:    len(valid),
		Coverage: float64(len(valid)) / float64(len(dm.Data)),
		Min:      valid[0],
		Max:      valid[len(valid)-1],
		Mean:     stat.Mean(valid, nil),
		Median:   stat.Quantile(0.5, stat.Empirical, valid, nil),
	}
}

// Mat copies the map into a CV_16UC1 matrix, e.g. for a 16-bit PGM.
func (dm *DepthMap) Mat() (gocv.Mat, error) {
	return matFromUint16(dm.Height, dm.Width, dm.Data)
}
