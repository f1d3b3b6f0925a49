// oakd-demo: host side of the OAK-D camera demo
// Decodes the device streams, shows them and optionally writes point clouds
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-oakd/internal/config"
	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/app"
	"github.com/teslashibe/go-oakd/pkg/device"
	"github.com/teslashibe/go-oakd/pkg/display"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/replay"
	"github.com/teslashibe/go-oakd/pkg/storage"
	"github.com/teslashibe/go-oakd/pkg/stereo"
	"github.com/teslashibe/go-oakd/pkg/web"
)

var version = "0.1.0"

// OpenCV windows must be driven from the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	cfg, dump, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	if dump {
		if err := cfg.Dump(os.Stdout); err != nil {
			log.Error("dump config", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig layers command line flags over the config file and environment.
func loadConfig() (config.Config, bool, error) {
	configPath := flag.String("config", "", "Config file (default "+config.DefaultFileName+")")
	pcl := flag.Bool("pcl", false, "Convert disparity into point clouds")
	static := flag.Bool("static", false, "Feed frames from the dataset instead of the cameras")
	listen := flag.String("listen", config.DefaultListen, "Address for the device bridge and the viewer")
	headless := flag.Bool("headless", false, "Do not open OpenCV windows")
	dataDir := flag.String("data", "", "Write decoded frames under this directory")
	dataset := flag.String("dataset", "", "Dataset directory for -static")
	preset := flag.String("preset", "", "Stereo preset: "+fmt.Sprint(stereo.PresetNames()))
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	dump := flag.Bool("dump-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, false, err
	}

	// Only flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pcl":
			cfg.PointCloud.Enabled = *pcl
		case "static":
			cfg.Replay.Enabled = *static
		case "listen":
			cfg.Device.Listen = *listen
		case "headless":
			cfg.Output.Display = !*headless
		case "data":
			cfg.Output.Dir = *dataDir
		case "dataset":
			cfg.Replay.Dir = *dataset
		case "preset":
			cfg.Stereo.Preset = *preset
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	return cfg, *dump, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.Component("demo")

	sc, err := cfg.ToStereo()
	if err != nil {
		return err
	}

	server := web.NewServer(cfg.Device.Listen, cfg.Output.ViewerFPS)

	devices := device.NewHub(cfg.Device.QueueDepth)
	devices.RegisterRoutes(server.App())
	devices.RegisterAPIRoutes(server.API())
	registerHealth(server, devices)

	server.StartAsync(ctx)
	defer server.Shutdown()

	logger.Info("waiting for device",
		"bridge", "ws://localhost"+cfg.Device.Listen+"/ws/device",
		"timeout", cfg.Device.WaitTimeout)

	wctx, wcancel := context.WithTimeout(ctx, cfg.Device.WaitTimeout)
	info, err := devices.WaitForDevice(wctx)
	wcancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("no device: %w", err)
	}

	pipe, err := device.BuildPipeline(info, sc, !cfg.Replay.Enabled)
	if err != nil {
		return err
	}

	// Point clouds are checked before the device starts streaming.
	intrinsics, _ := info.StereoIntrinsics()
	projector, err := app.NewProjector(pipe.Stereo, intrinsics, cfg.PointCloud.Enabled)
	if err != nil {
		return err
	}

	if err := devices.Configure(pipe); err != nil {
		return fmt.Errorf("configure device: %w", err)
	}

	dec := frame.NewDecoder(pipe.Stereo)
	defer dec.Close()
	logger.Info("pipeline configured",
		"device", info.Name,
		"kind", pipe.Kind,
		"stereo", dec.Config().String(),
		"streams", len(pipe.Streams))

	deps := app.Deps{
		Source:    devices,
		Publisher: server,
		Projector: projector,
	}

	if cfg.Output.Display {
		windows := display.New()
		defer windows.Close()
		deps.Viewer = windows
	}

	sessionDir := ""
	if cfg.Output.Dir != "" {
		store, err := storage.Open(cfg.Output.Dir)
		if err != nil {
			return err
		}
		sessionDir = store.Dir()
		deps.Recorder = store
		logger.Info("recording", "dir", sessionDir)
	}

	if cfg.Replay.Enabled {
		deps.Feeder = replay.NewPlayer(replay.Config{
			Dir:           cfg.Replay.Dir,
			Size:          cfg.Replay.Size,
			Width:         pipe.Stereo.Width,
			Height:        pipe.Stereo.Height,
			FrameInterval: cfg.Replay.FrameInterval,
			Pace:          true,
		}, pipe.Inputs, devices)
	}

	skip := make([]frame.Stream, 0, len(cfg.Output.SkipStreams))
	for _, name := range cfg.Output.SkipStreams {
		s, err := frame.ParseStream(name)
		if err != nil {
			return fmt.Errorf("output.skip_streams: %w", err)
		}
		skip = append(skip, s)
	}

	server.UpdateStatus(func(s *web.Status) {
		s.DeviceConnected = true
		s.Device = info.Name
		s.Pipeline = pipe.Message().Streams
		s.Stereo = dec.Config().String()
		s.StaticMode = cfg.Replay.Enabled
		s.PointCloud = projector != nil
		s.SessionDir = sessionDir
	})

	loop, err := app.New(dec, deps, app.Options{
		Streams:   pipe.Streams,
		Skip:      skip,
		Colorized: cfg.PointCloud.Colorized,
		Histogram: cfg.Output.Histogram,
	})
	if err != nil {
		return err
	}

	err = loop.Run(ctx)
	if errors.Is(err, frame.ErrShape) {
		return fmt.Errorf("device output does not match the stereo settings: %w", err)
	}
	return err
}

// registerHealth adds /health and a Prometheus style /metrics.
func registerHealth(server *web.Server, devices *device.Hub) {
	routes := server.App()

	routes.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"device":  devices.Connected(),
		})
	})

	routes.Get("/metrics", func(c *fiber.Ctx) error {
		stats := devices.GetStats()
		status := server.GetStatus()

		out := fmt.Sprintf(`# HELP oakd_frames_received Total frames received from the device
# TYPE oakd_frames_received counter
oakd_frames_received %d

# HELP oakd_frames_unrouted Frames for streams outside the pipeline
# TYPE oakd_frames_unrouted counter
oakd_frames_unrouted %d

# HELP oakd_bad_frames Frames that could not be parsed
# TYPE oakd_bad_frames counter
oakd_bad_frames %d

# HELP oakd_iteration Current host loop iteration
# TYPE oakd_iteration gauge
oakd_iteration %d

# HELP oakd_queue_dropped Frames dropped by full output queues
# TYPE oakd_queue_dropped counter
`, stats.FramesReceived, stats.FramesUnrouted, stats.BadFrames, status.Iteration)
		for name, q := range stats.Queues {
			out += fmt.Sprintf("oakd_queue_dropped{stream=%q} %d\n", name, q.Dropped)
		}
		return c.SendString(out)
	})
}
