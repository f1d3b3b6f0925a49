// Package config loads the demo configuration. Values are layered: built-in
// defaults, then an optional YAML file, then OAKD_ environment variables.
// Command-line flags are applied on top by the commands themselves.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// DefaultFileName is read from the working directory when no path is given.
const DefaultFileName = "oakd.yml"

// EnvPrefix marks environment overrides. Nested keys are separated by a
// double underscore, e.g. OAKD_STEREO__SUBPIXEL=false.
const EnvPrefix = "OAKD_"

// Default listen address and host URL.
const (
	DefaultListen  = ":8080"
	DefaultHostURL = "http://localhost:8080"
)

// Stereo is the file form of the stereo settings.
type Stereo struct {
	Preset         string  `koanf:"preset" yaml:"preset"`
	LeftRightCheck bool    `koanf:"lrcheck" yaml:"lrcheck"`
	Extended       bool    `koanf:"extended" yaml:"extended"`
	Subpixel       bool    `koanf:"subpixel" yaml:"subpixel"`
	Median         string  `koanf:"median" yaml:"median"`
	Confidence     int     `koanf:"confidence" yaml:"confidence"`
	EdgeFill       int     `koanf:"edge_fill" yaml:"edge_fill"`
	BaselineMM     float64 `koanf:"baseline_mm" yaml:"baseline_mm"`
	FocalPixels    float64 `koanf:"focal_px" yaml:"focal_px"`
	Scale          float64 `koanf:"scale" yaml:"scale"`
	Rectified      bool    `koanf:"rectified" yaml:"rectified"`
	DepthOutput    bool    `koanf:"depth" yaml:"depth"`
	Width          int     `koanf:"width" yaml:"width"`
	Height         int     `koanf:"height" yaml:"height"`
}

// Device is the device bridge side.
type Device struct {
	Listen      string        `koanf:"listen" yaml:"listen"`
	QueueDepth  int           `koanf:"queue_depth" yaml:"queue_depth"`
	WaitTimeout time.Duration `koanf:"wait_timeout" yaml:"wait_timeout"`
}

// Replay configures static input mode.
type Replay struct {
	Enabled       bool          `koanf:"enabled" yaml:"enabled"`
	Dir           string        `koanf:"dir" yaml:"dir"`
	Size          int           `koanf:"size" yaml:"size"`
	FrameInterval time.Duration `koanf:"frame_interval" yaml:"frame_interval"`
}

// Output controls what leaves the host loop.
type Output struct {
	Dir         string   `koanf:"dir" yaml:"dir"`
	Display     bool     `koanf:"display" yaml:"display"`
	ViewerFPS   float64  `koanf:"viewer_fps" yaml:"viewer_fps"`
	SkipStreams []string `koanf:"skip_streams" yaml:"skip_streams"`
	Histogram   bool     `koanf:"histogram" yaml:"histogram"`
}

// PointCloud enables projection of disparity frames. Colorized colours the
// points from the disparity visualization instead of the rectified right
// image.
type PointCloud struct {
	Enabled   bool `koanf:"enabled" yaml:"enabled"`
	Colorized bool `koanf:"colorized" yaml:"colorized"`
}

// Config is the full demo configuration.
type Config struct {
	Stereo     Stereo     `koanf:"stereo" yaml:"stereo"`
	Device     Device     `koanf:"device" yaml:"device"`
	Replay     Replay     `koanf:"replay" yaml:"replay"`
	Output     Output     `koanf:"output" yaml:"output"`
	PointCloud PointCloud `koanf:"pointcloud" yaml:"pointcloud"`
	LogLevel   string     `koanf:"log_level" yaml:"log_level"`
}

// Error lists every problem found while validating a configuration.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns the built-in configuration.
func Default() Config {
	s := stereo.Default()
	return Config{
		Stereo: Stereo{
			LeftRightCheck: s.LeftRightCheck,
			Extended:       s.Extended,
			Subpixel:       s.Subpixel,
			Median:         s.Median.String(),
			Confidence:     s.Confidence,
			EdgeFill:       s.EdgeFill,
			BaselineMM:     s.BaselineMM,
			FocalPixels:    s.FocalPixels,
			Scale:          s.Scale,
			Rectified:      s.Rectified,
			DepthOutput:    s.DepthOutput,
			Width:          s.Width,
			Height:         s.Height,
		},
		Device: Device{
			Listen:      DefaultListen,
			QueueDepth:  8,
			WaitTimeout: 30 * time.Second,
		},
		Replay: Replay{
			Dir:           "dataset",
			Size:          2,
			FrameInterval: 33 * time.Millisecond,
		},
		Output: Output{
			Display:     true,
			ViewerFPS:   10,
			SkipStreams: []string{"left", "right", "depth"},
		},
		LogLevel:   "info",
	}
}

// Load reads the configuration. A missing file at path is not an error; an
// empty path means DefaultFileName.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	return c, nil
}

// envKey maps OAKD_STEREO__EDGE_FILL to stereo.edge_fill.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// ToStereo converts the file form into a stereo configuration. A named preset
// replaces the four mode settings; geometry always comes from the file.
func (c Config) ToStereo() (stereo.Config, error) {
	s := c.Stereo
	median, err := stereo.ParseMedianFilter(s.Median)
	if err != nil {
		return stereo.Config{}, &Error{Problems: []string{err.Error()}}
	}

	out := stereo.Config{
		LeftRightCheck: s.LeftRightCheck,
		Extended:       s.Extended,
		Subpixel:       s.Subpixel,
		Median:         median,
		BaselineMM:     s.BaselineMM,
		FocalPixels:    s.FocalPixels,
		Scale:          s.Scale,
		Confidence:     s.Confidence,
		EdgeFill:       s.EdgeFill,
		Rectified:      s.Rectified,
		DepthOutput:    s.DepthOutput,
		Width:          s.Width,
		Height:         s.Height,
	}

	if s.Preset != "" {
		p := stereo.GetPreset(s.Preset)
		if p == nil {
			return stereo.Config{}, &Error{Problems: []string{fmt.Sprintf("unknown preset %q (have %s)",
				s.Preset, strings.Join(stereo.PresetNames(), ", "))}}
		}
		out.LeftRightCheck = p.LeftRightCheck
		out.Extended = p.Extended
		out.Subpixel = p.Subpixel
		out.Median = p.Median
	}

	if problems := out.Validate(); len(problems) > 0 {
		return stereo.Config{}, &Error{Problems: problems}
	}
	return out, nil
}

// Validate checks the non-stereo settings and the stereo conversion.
func (c Config) Validate() error {
	var problems []string
	if c.Device.Listen == "" {
		problems = append(problems, "device.listen must be set")
	}
	if c.Device.QueueDepth < 1 {
		problems = append(problems, "device.queue_depth must be at least 1")
	}
	if c.Replay.Enabled {
		if c.Replay.Dir == "" {
			problems = append(problems, "replay.dir must be set in static mode")
		}
		if c.Replay.Size < 1 {
			problems = append(problems, "replay.size must be at least 1")
		}
	}
	if c.Output.ViewerFPS < 0 {
		problems = append(problems, "output.viewer_fps must not be negative")
	}

	if _, err := c.ToStereo(); err != nil {
		if ce, ok := err.(*Error); ok {
			problems = append(problems, ce.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Dump writes the configuration as YAML.
func (c Config) Dump(w io.Writer) error {
	b, err := yml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// HostURL returns the demo host URL from OAKD_HOST.
// Falls back to the provided default if not set.
func HostURL(defaultURL string) string {
	if u := os.Getenv("OAKD_HOST"); u != "" {
		return u
	}
	return defaultURL
}
