package sim

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-oakd/pkg/device"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

func TestBridgeURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/device/sim-1"},
		{"https://oak.example:443/", "wss://oak.example:443/ws/device/sim-1"},
		{"ws://10.0.0.2:9000/base", "ws://10.0.0.2:9000/base/ws/device/sim-1"},
	}
	for _, tt := range tests {
		got, err := bridgeURL(tt.host, "sim-1")
		require.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, got)
	}

	_, err := bridgeURL("ftp://x", "sim-1")
	assert.Error(t, err)
}

func TestScene_Disparity(t *testing.T) {
	s := DefaultScene()

	for _, subpixel := range []bool{false, true} {
		cfg := stereo.Default()
		cfg.Subpixel = subpixel

		data := s.Disparity(0, cfg)
		require.Len(t, data, s.Width*s.Height*cfg.DisparityBytes())

		at := func(x, y int) uint16 {
			i := y*s.Width + x
			if cfg.DisparityBytes() == 2 {
				return uint16(data[2*i]) | uint16(data[2*i+1])<<8
			}
			return uint16(data[i])
		}

		c := s.center(0)
		assert.Equal(t, cfg.DisparityFromDepth(s.DiscMM), at(c.X, c.Y), "disc, subpixel=%t", subpixel)
		assert.Equal(t, cfg.DisparityFromDepth(s.WallMM), at(0, 0), "wall, subpixel=%t", subpixel)
	}
}

func TestScene_DecodesBackToDepth(t *testing.T) {
	s := DefaultScene()
	cfg := stereo.Default()

	dec := frame.NewDecoder(cfg)
	defer dec.Close()

	res, err := dec.Decode(frame.RawFrame{
		Stream: frame.Disparity,
		Type:   frame.TypeRAW16,
		Width:  s.Width,
		Height: s.Height,
		Data:   s.Disparity(7, cfg),
	})
	require.NoError(t, err)
	defer res.Close()

	c := s.center(7)
	mm, ok := res.Depth.At(c.X, c.Y)
	require.True(t, ok)
	assert.InDelta(t, s.DiscMM, float64(mm), 5)

	mm, ok = res.Depth.At(1, 1)
	require.True(t, ok)
	assert.InDelta(t, s.WallMM, float64(mm), 5)
}

func TestScene_Mono(t *testing.T) {
	s := DefaultScene()
	cfg := stereo.Default()

	left, right := s.Pair(0, cfg)
	require.Len(t, left, s.Width*s.Height)
	require.Len(t, right, s.Width*s.Height)
	assert.NotEqual(t, left, right, "views differ by parallax")

	c := s.center(0)
	assert.EqualValues(t, 220, left[c.Y*s.Width+c.X], "disc is bright")
	assert.EqualValues(t, 60, left[(s.Height-2)*s.Width+1], "wall is dark")
}

func TestScene_ColourStreams(t *testing.T) {
	s := DefaultScene()
	dec := frame.NewDecoder(stereo.Default())
	defer dec.Close()

	preview, err := dec.Decode(frame.RawFrame{
		Stream: frame.RGBPreview, Type: frame.TypeRGB888p, Width: 300, Height: 300,
		Data: s.Preview(0, 300, 300),
	})
	require.NoError(t, err)
	defer preview.Close()

	c := s.center(0)
	px := preview.Image.GetVecbAt(c.Y*300/s.Height, c.X*300/s.Width)
	assert.Equal(t, []uint8{40, 80, 230}, []uint8{px[0], px[1], px[2]}, "planar preview keeps channel order")

	video, err := dec.Decode(frame.RawFrame{
		Stream: frame.RGBVideo, Type: frame.TypeNV12, Width: 640, Height: 360,
		Data: s.Video(0, 640, 360),
	})
	require.NoError(t, err)
	defer video.Close()

	bgr := video.Image.GetVecbAt(c.Y*360/s.Height, c.X*640/s.Width)
	assert.InDelta(t, 40, int(bgr[0]), 6)
	assert.InDelta(t, 80, int(bgr[1]), 6)
	assert.InDelta(t, 230, int(bgr[2]), 6)
}

func startHost(t *testing.T, addr string) *device.Hub {
	t.Helper()

	hub := device.NewHub(0)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	return hub
}

func startDevice(t *testing.T, port string) (*Device, context.CancelFunc) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HostURL = "http://localhost:" + port
	cfg.ID = "sim-test"
	cfg.ConnectTimeout = 5 * time.Second
	cfg.Reconnect = false

	dev := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dev.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return dev, cancel
}

func waitFrame(t *testing.T, q *device.Queue) frame.RawFrame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := q.TryGet(); ok {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no frame within 5s")
	return frame.RawFrame{}
}

func TestDevice_CameraPipeline(t *testing.T) {
	hub := startHost(t, ":18200")
	dev, _ := startDevice(t, "18200")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := hub.WaitForDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sim-test", info.MxID)

	in, err := info.StereoIntrinsics()
	require.NoError(t, err)
	assert.Equal(t, stereo.DefaultRightIntrinsics(), *in)

	cfg := stereo.Default()
	p, err := device.BuildPipeline(info, cfg, true)
	require.NoError(t, err)
	require.NoError(t, hub.Configure(p))

	f := waitFrame(t, hub.Queue(frame.Disparity))
	assert.Equal(t, frame.TypeRAW16, f.Type)
	assert.Equal(t, frame.SocketRight, f.Socket)

	dec := frame.NewDecoder(cfg)
	defer dec.Close()
	res, err := dec.Decode(f)
	require.NoError(t, err)
	defer res.Close()

	c := dev.cfg.Scene.center(f.Seq)
	mm, ok := res.Depth.At(c.X, c.Y)
	require.True(t, ok)
	assert.InDelta(t, dev.cfg.Scene.DiscMM, float64(mm), 5)

	rr := waitFrame(t, hub.Queue(frame.RectifiedRight))
	assert.Len(t, rr.Data, 640*400)
	assert.Positive(t, dev.FramesSent())
}

func TestDevice_StaticPipeline(t *testing.T) {
	hub := startHost(t, ":18201")
	dev, _ := startDevice(t, "18201")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := hub.WaitForDevice(ctx)
	require.NoError(t, err)

	cfg := stereo.Default()
	p, err := device.BuildPipeline(info, cfg, false)
	require.NoError(t, err)
	require.NoError(t, hub.Configure(p))

	right := make([]byte, 640*400)
	left := make([]byte, 640*400)
	for i := range right {
		right[i] = byte(i % 251)
		left[i] = byte(i % 241)
	}

	// First pair is sent twice, like the replay does.
	for i := 0; i < 2; i++ {
		require.NoError(t, hub.SendInput(device.InRight, frame.RawFrame{Width: 640, Height: 400, Data: right, Socket: frame.SocketRight}))
		require.NoError(t, hub.SendInput(device.InLeft, frame.RawFrame{Width: 640, Height: 400, Data: left, Socket: frame.SocketLeft}))
	}

	rr := waitFrame(t, hub.Queue(frame.RectifiedRight))
	assert.Equal(t, right, rr.Data)
	rl := waitFrame(t, hub.Queue(frame.RectifiedLeft))
	assert.Equal(t, left, rl.Data)

	deadline := time.Now().Add(2 * time.Second)
	for dev.InputsReceived() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 4, dev.InputsReceived())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.Queue(frame.Disparity).Len(), "a repeated pair is emitted once")
}

func TestDevice_HostUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HostURL = "http://127.0.0.1:1"
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.Reconnect = false

	err := New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}
