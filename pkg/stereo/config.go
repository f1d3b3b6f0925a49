// Package stereo holds the stereo-depth settings shared by the host and the
// device pipeline, and the disparity arithmetic derived from them.
package stereo

import (
	"fmt"
	"strings"
)

// MedianFilter selects the on-device median filter kernel.
type MedianFilter int

const (
	MedianOff MedianFilter = iota
	Kernel3x3
	Kernel5x5
	Kernel7x7
)

func (m MedianFilter) String() string {
	switch m {
	case MedianOff:
		return "off"
	case Kernel3x3:
		return "3x3"
	case Kernel5x5:
		return "5x5"
	case Kernel7x7:
		return "7x7"
	default:
		return fmt.Sprintf("MedianFilter(%d)", int(m))
	}
}

// ParseMedianFilter accepts "off", "3x3", "5x5", "7x7" and the device-style
// names MEDIAN_OFF / KERNEL_3x3 etc.
func ParseMedianFilter(s string) (MedianFilter, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "kernel_")
	v = strings.TrimPrefix(v, "median_")
	switch v {
	case "", "off", "none":
		return MedianOff, nil
	case "3x3", "3":
		return Kernel3x3, nil
	case "5x5", "5":
		return Kernel5x5, nil
	case "7x7", "7":
		return Kernel7x7, nil
	}
	return MedianOff, fmt.Errorf("unknown median filter %q", s)
}

// Device limits and demo constants.
const (
	BaseMaxDisparity   = 96
	SubpixelLevels     = 32
	MaxConfidence      = 255
	DefaultConfidence  = 200
	DefaultBaselineMM  = 75.0
	DefaultWidth       = 640
	DefaultHeight      = 400
	DefaultFocalPixels = 394.4684143066406

	// DefaultScale is the subpixel fix-scale used with the 400P mono sensors.
	DefaultScale = 1080.0 / 400.0 / 10.0
)

// Config is fixed at startup and read-only afterwards.
type Config struct {
	// LeftRightCheck gives better handling of occlusions.
	LeftRightCheck bool `json:"lrcheck"`
	// Extended doubles the disparity range for closer minimum depth.
	Extended bool `json:"extended"`
	// Subpixel enables 32-level fractional disparity.
	Subpixel bool         `json:"subpixel"`
	Median   MedianFilter `json:"median"`

	BaselineMM  float64 `json:"baseline_mm"`
	FocalPixels float64 `json:"focal_px"`
	Scale       float64 `json:"scale"`

	Confidence int `json:"confidence"` // 0-255, lower keeps fewer pixels
	EdgeFill   int `json:"edge_fill"`  // rectification edge fill colour

	Rectified   bool `json:"rectified"`    // output rectified streams
	DepthOutput bool `json:"depth_output"` // depth stream instead of disparity only

	// Resolution of the mono sensors, or of the injected frames in static mode.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Default mirrors the settings the demo was tuned with on an OAK-D at 400P.
func Default() Config {
	return Config{
		LeftRightCheck: true,
		Extended:       false,
		Subpixel:       true,
		Median:         MedianOff,

		BaselineMM:  DefaultBaselineMM,
		FocalPixels: DefaultFocalPixels,
		Scale:       DefaultScale,

		Confidence: DefaultConfidence,
		EdgeFill:   0,

		Rectified:   true,
		DepthOutput: false,

		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// NeedsMedianOff reports whether one of the modes the device cannot combine
// with median filtering is enabled.
func (c Config) NeedsMedianOff() bool {
	return c.LeftRightCheck || c.Extended || c.Subpixel
}

// Sanitize returns the effective configuration. Median filtering is forced
// off whenever left-right check, extended or subpixel is set.
func (c Config) Sanitize() Config {
	if c.NeedsMedianOff() {
		c.Median = MedianOff
	}
	return c
}

// MaxDisparity is the largest disparity value the device can report:
// 96, doubled for extended, times 32 for subpixel.
func (c Config) MaxDisparity() int {
	d := BaseMaxDisparity
	if c.Extended {
		d *= 2
	}
	if c.Subpixel {
		d *= SubpixelLevels
	}
	return d
}

// DisparityLevels is the number of fractional steps per pixel of disparity.
func (c Config) DisparityLevels() int {
	if c.Subpixel {
		return SubpixelLevels
	}
	return 1
}

// DisparityBytes is the width of one disparity sample on the wire.
func (c Config) DisparityBytes() int {
	if c.Subpixel {
		return 2
	}
	return 1
}

// EffectiveScale is the calibration scale applied to depth. The fix-scale
// only applies to subpixel disparity; integer disparity uses 1.
func (c Config) EffectiveScale() float64 {
	if c.Subpixel {
		return c.Scale
	}
	return 1
}

// Validate checks ranges. Returns a list of problems, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.BaselineMM <= 0 {
		errors = append(errors, "baseline_mm must be positive")
	}
	if c.FocalPixels <= 0 {
		errors = append(errors, "focal_px must be positive")
	}
	if c.Subpixel && c.Scale <= 0 {
		errors = append(errors, "scale must be positive when subpixel is enabled")
	}
	if c.Confidence < 0 || c.Confidence > MaxConfidence {
		errors = append(errors, "confidence must be between 0 and 255")
	}
	if c.EdgeFill < 0 || c.EdgeFill > 255 {
		errors = append(errors, "edge_fill must be between 0 and 255")
	}
	if c.Median < MedianOff || c.Median > Kernel7x7 {
		errors = append(errors, "median must be off, 3x3, 5x5 or 7x7")
	}
	if c.Width <= 0 || c.Height <= 0 {
		errors = append(errors, "width and height must be positive")
	}

	return errors
}

// String renders the options the way they are announced at startup.
func (c Config) String() string {
	return fmt.Sprintf("lrcheck=%t extended=%t subpixel=%t median=%s",
		c.LeftRightCheck, c.Extended, c.Subpixel, c.Median)
}
