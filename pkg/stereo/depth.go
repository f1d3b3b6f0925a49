package stereo

import "math"

const (
	// NoDepth marks a pixel without a depth estimate (zero disparity).
	NoDepth uint16 = 0
	// MaxDepth is the largest representable depth in millimetres.
	MaxDepth uint16 = math.MaxUint16
)

// DepthFromDisparity converts one disparity sample to millimetres:
//
//	round(scale * levels * baseline * focal / d)
//
// A zero disparity has no finite depth and returns (NoDepth, false).
// Results beyond the uint16 range clamp to MaxDepth.
func (c Config) DepthFromDisparity(d uint16) (uint16, bool) {
	if d == 0 {
		return NoDepth, false
	}
	return clampDepth(c.depthNumerator() / float64(d)), true
}

// DepthTable precomputes DepthFromDisparity for every disparity value up to
// and including max. Index 0 holds NoDepth.
func (c Config) DepthTable(max int) []uint16 {
	table := make([]uint16, max+1)
	num := c.depthNumerator()
	for d := 1; d <= max; d++ {
		table[d] = clampDepth(num / float64(d))
	}
	return table
}

// DisparityFromDepth is the inverse of DepthFromDisparity: the disparity
// sample a device would report for a surface mm millimetres away. Surfaces
// too close saturate at MaxDisparity; mm <= 0 gives 0.
func (c Config) DisparityFromDepth(mm float64) uint16 {
	if mm <= 0 {
		return 0
	}
	d := math.Round(c.depthNumerator() / mm)
	if max := float64(c.MaxDisparity()); d > max {
		return uint16(max)
	}
	return uint16(d)
}

// VisualLevel rescales a disparity into 0-255 using MaxDisparity as the top
// of the range. Values past the top saturate.
func (c Config) VisualLevel(d uint16) uint8 {
	v := float64(d) * 255.0 / float64(c.MaxDisparity())
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func (c Config) depthNumerator() float64 {
	return c.EffectiveScale() * float64(c.DisparityLevels()) * c.BaselineMM * c.FocalPixels
}

func clampDepth(v float64) uint16 {
	v = math.Round(v)
	if v >= float64(MaxDepth) {
		return MaxDepth
	}
	if v < 1 {
		// a valid sample rounding to zero would read as NoDepth
		return 1
	}
	return uint16(v)
}
