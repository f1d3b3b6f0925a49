package storage

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// HistogramBins is the number of bins in a depth histogram.
const HistogramBins = 64

// SaveDepthHistogram plots the distribution of valid depth values as
// <iteration>-depthHist.png. A map without valid pixels writes nothing and
// returns false.
func (s *Store) SaveDepthHistogram(iteration uint64, depth *frame.DepthMap) (bool, error) {
	values := make(plotter.Values, 0, depth.ValidCount())
	for _, v := range depth.Data {
		if v != stereo.NoDepth {
			values = append(values, float64(v))
		}
	}
	if len(values) == 0 {
		return false, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Iteration %d - Depth", iteration)
	p.X.Label.Text = "Depth (mm)"
	p.Y.Label.Text = "Pixels"

	h, err := plotter.NewHist(values, HistogramBins)
	if err != nil {
		return false, fmt.Errorf("depth histogram: %w", err)
	}
	p.Add(h)

	path := s.path(iteration, "depthHist.png")
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return false, fmt.Errorf("save %s: %w", path, err)
	}
	s.written.Add(1)
	return true, nil
}
