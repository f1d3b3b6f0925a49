// Package app runs the host loop: it polls the device output queues, decodes
// whatever is ready and hands the results to the display, the viewer, the
// store and the point cloud projector.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/device"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/pointcloud"
	"github.com/teslashibe/go-oakd/pkg/stereo"
	"github.com/teslashibe/go-oakd/pkg/web"
)

// DefaultIdleSleep is how long the loop waits after a cycle found no frames.
const DefaultIdleSleep = time.Millisecond

// statusInterval limits how often the viewer status is refreshed.
const statusInterval = 500 * time.Millisecond

// Source hands out the output queue of each stream, or nil when the stream is
// not part of the pipeline.
type Source interface {
	Queue(s frame.Stream) *device.Queue
}

// Viewer shows decoded images. Poll reports whether the user asked to quit.
type Viewer interface {
	Show(s frame.Stream, img gocv.Mat)
	Poll() bool
}

// Recorder persists loop output keyed by iteration.
type Recorder interface {
	SaveImage(iteration uint64, s frame.Stream, img gocv.Mat) error
	SaveProjectionInputs(iteration uint64, depth *frame.DepthMap, backdrop gocv.Mat) error
	SaveCloud(iteration uint64, cloud *pointcloud.Cloud) error
	SaveDepthHistogram(iteration uint64, depth *frame.DepthMap) (bool, error)
}

// Projector converts a depth map into a point cloud.
type Projector interface {
	Project(depth *frame.DepthMap, backdrop *gocv.Mat, colorized bool) (*pointcloud.Cloud, error)
}

// Feeder injects input frames once per iteration in static mode.
type Feeder interface {
	Step(ctx context.Context) error
}

// Publisher forwards frames and status to remote viewers.
type Publisher interface {
	Publish(s frame.Stream, img gocv.Mat) bool
	PublishDepth(s frame.Stream, iteration uint64, stats frame.DepthStats)
	UpdateStatus(update func(*web.Status))
}

// Deps are the collaborators of the loop. Only Source is required.
type Deps struct {
	Source    Source
	Viewer    Viewer
	Recorder  Recorder
	Projector Projector
	Feeder    Feeder
	Publisher Publisher
}

// Options tune the loop.
type Options struct {
	// Streams are polled in this order every cycle.
	Streams []frame.Stream
	// Skip lists streams that are drained but not decoded.
	Skip []frame.Stream
	// Colorized projects the disparity visualization instead of the
	// rectified right image.
	Colorized bool
	// Histogram saves a depth histogram for every disparity frame.
	Histogram bool
	// MaxIterations stops the loop after that many iterations; 0 runs until
	// cancelled.
	MaxIterations uint64
	IdleSleep     time.Duration
}

// DefaultSkip returns the streams the demo leaves undecoded to save CPU.
func DefaultSkip() []frame.Stream {
	return []frame.Stream{frame.Left, frame.Right, frame.Depth}
}

// Stats counts what the loop did.
type Stats struct {
	Iterations uint64            `json:"iterations"`
	Decoded    map[string]uint64 `json:"decoded"`
	Drained    uint64            `json:"drained"`
	Clouds     uint64            `json:"clouds"`
	SaveErrors uint64            `json:"save_errors"`
}

// App is the host loop. Run must be called from a single goroutine; the
// decoder it drives is not safe for concurrent use.
type App struct {
	dec  *frame.Decoder
	deps Deps
	opts Options
	skip map[frame.Stream]bool

	logger     *slog.Logger
	stats      Stats
	lastStatus time.Time
}

// New creates the loop around dec.
func New(dec *frame.Decoder, deps Deps, opts Options) (*App, error) {
	if dec == nil {
		return nil, errors.New("app: decoder is required")
	}
	if deps.Source == nil {
		return nil, errors.New("app: frame source is required")
	}
	if len(opts.Streams) == 0 {
		return nil, errors.New("app: no streams to poll")
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = DefaultIdleSleep
	}

	a := &App{
		dec:    dec,
		deps:   deps,
		opts:   opts,
		logger: log.Component("app"),
		skip:   make(map[frame.Stream]bool, len(opts.Skip)),
		stats:  Stats{Decoded: make(map[string]uint64)},
	}
	for _, s := range opts.Skip {
		a.skip[s] = true
	}
	return a, nil
}

// Stats returns a copy of the counters.
func (a *App) Stats() Stats {
	out := a.stats
	out.Decoded = make(map[string]uint64, len(a.stats.Decoded))
	for k, v := range a.stats.Decoded {
		out.Decoded[k] = v
	}
	return out
}

// Run loops until ctx is cancelled, the viewer asks to quit, MaxIterations is
// reached or a frame cannot be decoded. Only the last case returns an error.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("loop started",
		"streams", streamNames(a.opts.Streams),
		"skip", streamNames(a.opts.Skip),
		"static", a.deps.Feeder != nil,
		"pointcloud", a.deps.Projector != nil)
	defer func() {
		a.logger.Info("loop stopped", "iterations", a.stats.Iterations, "clouds", a.stats.Clouds)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if a.deps.Feeder != nil {
			if err := a.deps.Feeder.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("feed inputs: %w", err)
			}
		}

		n, err := a.Cycle()
		if err != nil {
			return err
		}

		if n > 0 {
			a.dec.Advance()
			a.stats.Iterations++
			a.publishStatus()
		}

		if a.deps.Viewer != nil && a.deps.Viewer.Poll() {
			a.logger.Info("quit requested")
			return nil
		}
		if a.opts.MaxIterations > 0 && a.stats.Iterations >= a.opts.MaxIterations {
			return nil
		}

		if n == 0 && a.deps.Feeder == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.opts.IdleSleep):
			}
		}
	}
}

// Cycle polls every stream once, in order, and handles the frames that are
// ready. It returns how many frames were taken off the queues.
func (a *App) Cycle() (int, error) {
	n := 0
	for _, s := range a.opts.Streams {
		q := a.deps.Source.Queue(s)
		if q == nil {
			continue
		}
		f, ok := q.TryGet()
		if !ok {
			continue
		}
		n++

		if a.skip[s] {
			a.stats.Drained++
			continue
		}

		res, err := a.dec.Decode(f)
		if err != nil {
			return n, fmt.Errorf("decode %s at iteration %d: %w", s, a.dec.Iteration(), err)
		}
		err = a.handle(res)
		res.Close()
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (a *App) handle(res *frame.Result) error {
	iter := a.dec.Iteration()
	a.stats.Decoded[res.Stream.String()]++

	if a.deps.Viewer != nil {
		a.deps.Viewer.Show(res.Stream, res.Image.Mat)
	}
	if a.deps.Publisher != nil && a.deps.Publisher.Publish(res.Stream, res.Image.Mat) && res.Depth != nil {
		a.deps.Publisher.PublishDepth(res.Stream, iter, res.Depth.Stats())
	}
	if a.deps.Recorder != nil {
		a.saved(a.deps.Recorder.SaveImage(iter, res.Stream, res.Image.Mat), "image", res.Stream)
	}

	if res.Stream != frame.Disparity || res.Depth == nil {
		return nil
	}

	if a.opts.Histogram && a.deps.Recorder != nil {
		_, err := a.deps.Recorder.SaveDepthHistogram(iter, res.Depth)
		a.saved(err, "histogram", res.Stream)
	}
	if a.deps.Projector != nil {
		return a.project(iter, res)
	}
	return nil
}

// project builds the cloud for one disparity frame. The backdrop is either
// the colour-mapped disparity or the last rectified right image.
func (a *App) project(iter uint64, res *frame.Result) error {
	var backdrop *gocv.Mat
	if a.opts.Colorized {
		backdrop = &res.Image.Mat
	} else if right, ok := a.dec.LastRectifiedRight(); ok {
		backdrop = &right
		if a.deps.Recorder != nil {
			a.saved(a.deps.Recorder.SaveProjectionInputs(iter, res.Depth, right), "projection inputs", res.Stream)
		}
	}

	cloud, err := a.deps.Projector.Project(res.Depth, backdrop, a.opts.Colorized)
	if err != nil {
		return fmt.Errorf("project iteration %d: %w", iter, err)
	}
	a.stats.Clouds++

	if a.deps.Recorder != nil {
		a.saved(a.deps.Recorder.SaveCloud(iter, cloud), "cloud", res.Stream)
	}
	a.logger.Debug("point cloud", "iteration", iter, "points", cloud.Len())
	return nil
}

// saved logs persistence failures. They do not stop the loop.
func (a *App) saved(err error, what string, s frame.Stream) {
	if err == nil {
		return
	}
	a.stats.SaveErrors++
	a.logger.Warn("save failed", "what", what, "stream", s.String(), "error", err)
}

func (a *App) publishStatus() {
	if a.deps.Publisher == nil {
		return
	}
	now := time.Now()
	if now.Sub(a.lastStatus) < statusInterval {
		return
	}
	a.lastStatus = now

	iter := a.dec.Iteration()
	a.deps.Publisher.UpdateStatus(func(s *web.Status) {
		s.Iteration = iter
	})
}

// NewProjector returns the projector for a run, or nil when point clouds are
// not requested. Point clouds need rectified output; without it they are
// disabled with a warning. Missing intrinsics are an error.
func NewProjector(cfg stereo.Config, in *stereo.Intrinsics, requested bool) (Projector, error) {
	if !requested {
		return nil, nil
	}
	if !cfg.Rectified {
		log.Component("app").Warn("point cloud disabled: rectified output is off")
		return nil, nil
	}
	p, err := pointcloud.NewProjector(in)
	if err != nil {
		return nil, fmt.Errorf("point cloud conversion requested but unavailable: %w", err)
	}
	return p, nil
}

func streamNames(streams []frame.Stream) []string {
	names := make([]string, len(streams))
	for i, s := range streams {
		names[i] = s.String()
	}
	return names
}
