// Package sim emulates an OAK-D behind the device bridge protocol. It renders
// a synthetic scene, so the host can be run and tested without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-oakd/internal/httpc"
	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/protocol"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

const (
	// probePath answers once the host is up.
	probePath = "/api/device/stats"

	pingPeriod = 5 * time.Second
	writeWait  = 5 * time.Second
)

// Config describes the emulated device.
type Config struct {
	HostURL string
	ID      string
	Name    string
	Cameras []frame.Socket

	Intrinsics stereo.Intrinsics
	BaselineMM float64
	Scale      float64

	FPS         float64
	PreviewSize int
	VideoWidth  int
	VideoHeight int

	Scene Scene

	// ConnectTimeout bounds the retries for one connection attempt.
	ConnectTimeout time.Duration
	// Reconnect dials again after the host drops the connection.
	Reconnect bool
}

// DefaultConfig is an OAK-D with all three cameras at 30 fps.
func DefaultConfig() Config {
	return Config{
		HostURL:        "http://localhost:8080",
		Name:           "OAK-D (simulated)",
		Cameras:        []frame.Socket{frame.SocketRGB, frame.SocketLeft, frame.SocketRight},
		Intrinsics:     stereo.DefaultRightIntrinsics(),
		BaselineMM:     stereo.DefaultBaselineMM,
		Scale:          stereo.DefaultScale,
		FPS:            30,
		PreviewSize:    300,
		VideoWidth:     640,
		VideoHeight:    360,
		Scene:          DefaultScene(),
		ConnectTimeout: 30 * time.Second,
		Reconnect:      true,
	}
}

// Device is one emulated device connection.
type Device struct {
	cfg    Config
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	seq       uint64
	lastInput int64
	pending   map[string]*protocol.InputData

	framesSent atomic.Uint64
	inputs     atomic.Uint64
	sessions   atomic.Uint64
}

// New creates a device. An empty ID gets a random one.
func New(cfg Config) *Device {
	if cfg.ID == "" {
		cfg.ID = "sim-" + uuid.NewString()[:8]
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Device{
		cfg:       cfg,
		logger:    log.Component("sim").With("id", cfg.ID),
		lastInput: -1,
		pending:   make(map[string]*protocol.InputData),
	}
}

// ID returns the device id sent to the host.
func (d *Device) ID() string {
	return d.cfg.ID
}

// FramesSent returns the number of output frames sent.
func (d *Device) FramesSent() uint64 {
	return d.framesSent.Load()
}

// InputsReceived returns the number of injected frames received.
func (d *Device) InputsReceived() uint64 {
	return d.inputs.Load()
}

// Sessions returns how many times the device connected.
func (d *Device) Sessions() uint64 {
	return d.sessions.Load()
}

// Info is what the device reports on connect.
func (d *Device) Info() protocol.DeviceInfo {
	cams := make([]string, len(d.cfg.Cameras))
	for i, c := range d.cfg.Cameras {
		cams[i] = string(c)
	}
	return protocol.DeviceInfo{
		Name:       d.cfg.Name,
		MxID:       d.cfg.ID,
		Cameras:    cams,
		Intrinsics: protocol.IntrinsicsDataFrom(d.cfg.Intrinsics),
		BaselineMM: d.cfg.BaselineMM,
	}
}

// Run connects to the host and serves pipelines until ctx is done. With
// Reconnect set, a dropped connection is dialled again.
func (d *Device) Run(ctx context.Context) error {
	for {
		conn, err := d.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = d.session(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		if !d.cfg.Reconnect {
			return err
		}
		d.logger.Warn("connection lost, reconnecting", "error", err)
	}
}

func (d *Device) retryPolicy(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      d.cfg.ConnectTimeout,
		Clock:               backoff.SystemClock}, ctx)
}

// WaitForHost polls the host until its API answers.
func (d *Device) WaitForHost(ctx context.Context) error {
	probe := strings.TrimRight(d.cfg.HostURL, "/") + probePath
	attempts := 0
	op := func() error {
		attempts++
		return httpc.CheckOK(ctx, probe)
	}
	if err := backoff.Retry(op, d.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("host %s not reachable after %d attempts: %w", d.cfg.HostURL, attempts, err)
	}
	return nil
}

func (d *Device) connect(ctx context.Context) (*websocket.Conn, error) {
	if err := d.WaitForHost(ctx); err != nil {
		return nil, err
	}

	target, err := bridgeURL(d.cfg.HostURL, d.cfg.ID)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var conn *websocket.Conn
	op := func() error {
		c, _, err := dialer.DialContext(ctx, target, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, d.retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	d.logger.Info("connected", "url", target)
	return conn, nil
}

// bridgeURL maps http://host:port to ws://host:port/ws/device/<id>.
func bridgeURL(hostURL, id string) (string, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return "", fmt.Errorf("bad host url %q: %w", hostURL, err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("bad host url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/device/" + url.PathEscape(id)
	return u.String(), nil
}

// session serves one connection until it fails or ctx is done.
func (d *Device) session(ctx context.Context, conn *websocket.Conn) error {
	d.sessions.Add(1)
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wsMu.Lock()
	d.ws = conn
	d.wsMu.Unlock()
	defer func() {
		d.wsMu.Lock()
		d.ws = nil
		d.wsMu.Unlock()
		conn.Close()
	}()

	// Closing the connection unblocks the reader.
	go func() {
		<-sctx.Done()
		conn.Close()
	}()

	info, err := protocol.NewDeviceInfoMessage(d.Info())
	if err != nil {
		return err
	}
	if err := d.send(info); err != nil {
		return err
	}

	msgs := make(chan *protocol.Message, 16)
	readErr := make(chan error, 1)
	go d.readLoop(sctx.Done(), conn, msgs, readErr)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / d.cfg.FPS))
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var pipe *protocol.PipelineData
	for {
		select {
		case <-sctx.Done():
			return sctx.Err()

		case err := <-readErr:
			return err

		case msg := <-msgs:
			switch msg.Type {
			case protocol.TypePipeline:
				p, err := msg.GetPipelineData()
				if err != nil {
					d.logger.Warn("bad pipeline", "error", err)
					continue
				}
				pipe = p
				d.lastInput = -1
				d.pending = make(map[string]*protocol.InputData)
				d.logger.Info("pipeline started", "streams", p.Streams, "from_camera", p.FromCamera)

			case protocol.TypeInput:
				in, err := msg.GetInputData()
				if err != nil {
					d.logger.Warn("bad input", "error", err)
					continue
				}
				d.inputs.Add(1)
				if pipe == nil || pipe.FromCamera {
					continue
				}
				if err := d.handleInput(pipe, in); err != nil {
					return err
				}

			case protocol.TypePong:
				if pong, err := msg.GetPongData(); err == nil {
					d.logger.Debug("pong", "latency_ms", pong.LatencyMs)
				}
			}

		case <-ticker.C:
			if pipe == nil || !pipe.FromCamera {
				continue
			}
			if err := d.emitCamera(pipe); err != nil {
				return err
			}

		case <-ping.C:
			msg, err := protocol.NewPingMessage(uuid.NewString())
			if err != nil {
				continue
			}
			if err := d.send(msg); err != nil {
				return err
			}
		}
	}
}

func (d *Device) readLoop(done <-chan struct{}, conn *websocket.Conn, msgs chan<- *protocol.Message, errc chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			d.logger.Warn("parse error", "error", err)
			continue
		}
		select {
		case msgs <- msg:
		case <-done:
			return
		}
	}
}

func (d *Device) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.wsMu.Lock()
	defer d.wsMu.Unlock()
	if d.ws == nil {
		return errors.New("not connected")
	}
	d.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return d.ws.WriteMessage(websocket.TextMessage, data)
}

// stereoConfig is the device side view of the host's stereo settings.
func (d *Device) stereoConfig(p *protocol.PipelineData) stereo.Config {
	cfg := stereo.Default()
	cfg.BaselineMM = d.cfg.BaselineMM
	cfg.FocalPixels = d.cfg.Intrinsics.Fx
	cfg.Scale = d.cfg.Scale
	if s := p.Stereo; s != nil {
		cfg.LeftRightCheck = s.LeftRightCheck
		cfg.Extended = s.Extended
		cfg.Subpixel = s.Subpixel
		cfg.Rectified = s.Rectified
		cfg.DepthOutput = s.Depth
	}
	return cfg.Sanitize()
}

// emitCamera sends one frame for every pipeline stream.
func (d *Device) emitCamera(p *protocol.PipelineData) error {
	d.seq++
	ts := time.Duration(d.seq) * time.Duration(float64(time.Second)/d.cfg.FPS)
	scene := d.scene(d.cfg.Intrinsics.Width, d.cfg.Intrinsics.Height)
	left, right := scene.Pair(d.seq, d.stereoConfig(p))
	return d.emit(p, scene, ts, left, right)
}

// handleInput pairs injected frames. A pair is complete once both inputs
// carry the same timestamp; repeated pairs are ignored.
func (d *Device) handleInput(p *protocol.PipelineData, in *protocol.InputData) error {
	d.pending[in.Stream] = in

	r, l := d.pending["in_right"], d.pending["in_left"]
	if r == nil || l == nil || r.TimestampMs != l.TimestampMs || r.TimestampMs == d.lastInput {
		return nil
	}
	d.lastInput = r.TimestampMs

	right, err := r.DecodeInputData()
	if err != nil {
		return fmt.Errorf("decode in_right: %w", err)
	}
	left, err := l.DecodeInputData()
	if err != nil {
		return fmt.Errorf("decode in_left: %w", err)
	}
	if len(right) != r.Width*r.Height || len(left) != l.Width*l.Height {
		d.logger.Warn("dropping input pair with bad size", "ts_ms", r.TimestampMs)
		return nil
	}

	d.seq++
	return d.emit(p, d.scene(r.Width, r.Height), time.Duration(r.TimestampMs)*time.Millisecond, left, right)
}

func (d *Device) scene(w, h int) Scene {
	s := d.cfg.Scene
	s.Width, s.Height = w, h
	return s
}

func (d *Device) emit(p *protocol.PipelineData, scene Scene, ts time.Duration, left, right []byte) error {
	cfg := d.stereoConfig(p)

	for _, name := range p.Streams {
		s, err := frame.ParseStream(name)
		if err != nil {
			d.logger.Warn("unknown pipeline stream", "stream", name)
			continue
		}

		f := frame.RawFrame{
			Stream:    s,
			Type:      frame.TypeRAW8,
			Width:     scene.Width,
			Height:    scene.Height,
			Seq:       d.seq,
			Timestamp: ts,
		}

		switch s {
		case frame.Left, frame.RectifiedLeft:
			f.Data, f.Socket = left, frame.SocketLeft
		case frame.Right, frame.RectifiedRight:
			f.Data, f.Socket = right, frame.SocketRight
		case frame.Disparity:
			f.Data, f.Socket = scene.Disparity(d.seq, cfg), frame.SocketRight
			if cfg.DisparityBytes() == 2 {
				f.Type = frame.TypeRAW16
			}
		case frame.Depth:
			f.Data, f.Socket, f.Type = scene.Depth(d.seq), frame.SocketRight, frame.TypeRAW16
		case frame.RGBPreview:
			n := d.cfg.PreviewSize
			f.Width, f.Height, f.Type, f.Socket = n, n, frame.TypeRGB888p, frame.SocketRGB
			f.Data = scene.Preview(d.seq, n, n)
		case frame.RGBVideo:
			w, h := d.cfg.VideoWidth, d.cfg.VideoHeight
			f.Width, f.Height, f.Type, f.Socket = w, h, frame.TypeNV12, frame.SocketRGB
			f.Data = scene.Video(d.seq, w, h)
		}

		msg, err := protocol.NewFrameMessage(f)
		if err != nil {
			return err
		}
		if err := d.send(msg); err != nil {
			return err
		}
		d.framesSent.Add(1)
	}
	return nil
}
