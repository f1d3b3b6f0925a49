// oakd-sim: simulated OAK-D device bridge
// Connects to an oakd-demo host and streams a synthetic scene
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-oakd/internal/config"
	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/sim"
)

func main() {
	cfg := sim.DefaultConfig()

	host := flag.String("host", "", "Host URL (overrides OAKD_HOST env var)")
	id := flag.String("id", "", "Device id (random if empty)")
	fps := flag.Float64("fps", cfg.FPS, "Frames per second in camera mode")
	rgbOnly := flag.Bool("rgb-only", false, "Report only the RGB camera")
	wallMM := flag.Float64("wall", cfg.Scene.WallMM, "Distance to the wall in mm")
	discMM := flag.Float64("disc", cfg.Scene.DiscMM, "Distance to the disc in mm")
	once := flag.Bool("once", false, "Exit when the host drops the connection")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*logLevel)

	cfg.HostURL = config.HostURL(config.DefaultHostURL)
	if *host != "" {
		cfg.HostURL = *host
	}
	cfg.ID = *id
	cfg.FPS = *fps
	cfg.Scene.WallMM = *wallMM
	cfg.Scene.DiscMM = *discMM
	cfg.Reconnect = !*once
	if *rgbOnly {
		cfg.Cameras = []frame.Socket{frame.SocketRGB}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dev := sim.New(cfg)
	log.Info("simulated device starting", "id", dev.ID(), "host", cfg.HostURL)

	if err := dev.Run(ctx); err != nil {
		log.Error("simulator stopped", "error", err)
		os.Exit(1)
	}
	log.Info("simulator stopped", "frames", dev.FramesSent(), "sessions", dev.Sessions())
}
