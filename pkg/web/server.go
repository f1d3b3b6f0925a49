// Package web serves a live viewer for the decoded streams: JSON status over
// HTTP and JPEG frames over websockets.
package web

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/hub"
)

// DefaultFPS caps the frames per second sent to viewers for each stream.
const DefaultFPS = 10

// DefaultJPEGQuality is the encoder quality for viewer frames.
const DefaultJPEGQuality = 80

// Status is the pipeline state shown to viewers
type Status struct {
	DeviceConnected bool     `json:"device_connected"`
	Device          string   `json:"device,omitempty"`
	Pipeline        []string `json:"pipeline,omitempty"`
	Stereo          string   `json:"stereo,omitempty"`
	StaticMode      bool     `json:"static_mode"`
	PointCloud      bool     `json:"point_cloud"`
	SessionDir      string   `json:"session_dir,omitempty"`
	Iteration       uint64   `json:"iteration"`
}

// StreamInfo describes one viewer stream
type StreamInfo struct {
	Name      string `json:"name"`
	Clients   int    `json:"clients"`
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
}

// DepthMessage is the JSON sent on a stream alongside its frames when a
// depth map is available.
type DepthMessage struct {
	Stream    string           `json:"stream"`
	Iteration uint64           `json:"iteration"`
	Depth     frame.DepthStats `json:"depth"`
}

type viewerStream struct {
	hub       *hub.Hub
	limiter   *rate.Limiter
	published atomic.Uint64
	skipped   atomic.Uint64
}

// Server is the viewer web server
type Server struct {
	app    *fiber.App
	api    fiber.Router
	addr   string
	logger *slog.Logger

	state   Status
	stateMu sync.RWMutex

	streams   map[frame.Stream]*viewerStream
	statusHub *hub.Hub
	settings  *settingsManager
}

// NewServer creates a viewer listening on addr that sends at most fps frames
// per second per stream.
func NewServer(addr string, fps float64) *Server {
	settings := DefaultSettings()
	if fps > 0 {
		settings.FPS = fps
	}

	s := &Server{
		addr:      addr,
		logger:    log.Component("web"),
		streams:   make(map[frame.Stream]*viewerStream),
		statusHub: hub.New("status"),
		settings:  &settingsManager{current: settings},
	}
	s.settings.onChange = s.applySettings
	for _, st := range frame.Streams() {
		s.streams[st] = &viewerStream{
			hub:     hub.New(st.String()),
			limiter: rate.NewLimiter(rate.Limit(settings.FPS), 1),
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               "OAK-D Viewer",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/streams", s.handleStreams)
	api.Get("/viewer", s.handleGetSettings)
	api.Patch("/viewer", s.handleUpdateSettings)

	// WebSocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Use("/ws/stream", upgrade)
	app.Use("/ws/status", upgrade)

	app.Get("/ws/stream/:name", s.checkStream, websocket.New(s.handleStreamWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	s.api = api
	return s
}

// App returns the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// API returns the /api route group.
func (s *Server) API() fiber.Router {
	return s.api
}

// Start runs the hubs and serves until the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("viewer listening", "addr", s.addr)

	go s.statusHub.Run(ctx)
	for _, vs := range s.streams {
		go vs.hub.Run(ctx)
	}

	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// UpdateStatus updates the status and broadcasts it to status viewers
func (s *Server) UpdateStatus(update func(*Status)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	s.statusHub.BroadcastJSON(state)
}

// GetStatus returns a copy of the current status.
func (s *Server) GetStatus() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Publish JPEG-encodes img and sends it to the stream's viewers. Nothing is
// encoded when nobody watches or the stream's rate limit is exhausted. It
// reports whether a frame was sent.
func (s *Server) Publish(stream frame.Stream, img gocv.Mat) bool {
	vs, ok := s.streams[stream]
	if !ok || vs.hub.ClientCount() == 0 {
		return false
	}
	if !vs.limiter.Allow() {
		vs.skipped.Add(1)
		return false
	}

	data, err := s.encode(img)
	if err != nil {
		s.logger.Warn("encode failed", "stream", stream.String(), "error", err)
		return false
	}

	vs.hub.BroadcastBinary(data)
	vs.published.Add(1)
	return true
}

// PublishDepth sends depth statistics to the stream's viewers.
func (s *Server) PublishDepth(stream frame.Stream, iteration uint64, stats frame.DepthStats) {
	vs, ok := s.streams[stream]
	if !ok || vs.hub.ClientCount() == 0 {
		return
	}
	vs.hub.BroadcastJSON(DepthMessage{
		Stream:    stream.String(),
		Iteration: iteration,
		Depth:     stats,
	})
}

// Settings returns the current viewer settings.
func (s *Server) Settings() Settings {
	return s.settings.Get()
}

// SetSettings replaces the viewer settings.
func (s *Server) SetSettings(settings Settings) error {
	return s.settings.Set(settings)
}

func (s *Server) applySettings(settings Settings) {
	for _, vs := range s.streams {
		vs.limiter.SetLimit(rate.Limit(settings.FPS))
	}
	s.logger.Info("viewer settings changed", "fps", settings.FPS, "quality", settings.Quality)
}

func (s *Server) encode(img gocv.Mat) ([]byte, error) {
	settings := s.settings.Get()

	src := img
	if img.Type() == gocv.MatTypeCV16UC1 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		img.ConvertToWithParams(&scaled, gocv.MatTypeCV8UC1, float32(255/settings.DepthRangeMM), 0)
		src = scaled
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, settings.Quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// StreamInfos returns per-stream viewer counters.
func (s *Server) StreamInfos() []StreamInfo {
	infos := make([]StreamInfo, 0, len(s.streams))
	for _, st := range frame.Streams() {
		vs := s.streams[st]
		infos = append(infos, StreamInfo{
			Name:      st.String(),
			Clients:   vs.hub.ClientCount(),
			Published: vs.published.Load(),
			Skipped:   vs.skipped.Load(),
		})
	}
	return infos
}
