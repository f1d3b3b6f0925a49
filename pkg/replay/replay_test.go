package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/device"
	"github.com/teslashibe/go-oakd/pkg/frame"
)

type sent struct {
	stream string
	f      frame.RawFrame
}

type recorder struct {
	sent []sent
	err  error
}

func (r *recorder) SendInput(stream string, f frame.RawFrame) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sent{stream, f})
	return nil
}

var stereoInputs = []device.Input{
	{Name: device.InRight, Socket: frame.SocketRight},
	{Name: device.InLeft, Socket: frame.SocketLeft},
}

// writeDataset creates pairs of w x h images whose pixels encode the pair
// index and side.
func writeDataset(t *testing.T, pairs, w, h int) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < pairs; i++ {
		sub := filepath.Join(dir, strconv.Itoa(i))
		require.NoError(t, os.MkdirAll(sub, 0o755))

		for side, name := range []string{device.InRight, device.InLeft} {
			val := float64(10*i + side)
			img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(val, 0, 0, 0), h, w, gocv.MatTypeCV8UC1)
			ok := gocv.IMWrite(filepath.Join(sub, name+".png"), img)
			img.Close()
			require.True(t, ok, "write %s", name)
		}
	}
	return dir
}

func testConfig(dir string, w, h int) Config {
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Width = w
	cfg.Height = h
	cfg.Pace = false
	return cfg
}

func TestPlayer_Step(t *testing.T) {
	const w, h = 8, 4
	dir := writeDataset(t, 2, w, h)
	out := &recorder{}
	p := NewPlayer(testConfig(dir, w, h), stereoInputs, out)

	ctx := context.Background()
	require.NoError(t, p.Step(ctx))

	// First pair goes out twice per input, right before left.
	require.Len(t, out.sent, 4)
	assert.Equal(t, device.InRight, out.sent[0].stream)
	assert.Equal(t, device.InRight, out.sent[1].stream)
	assert.Equal(t, device.InLeft, out.sent[2].stream)
	assert.Equal(t, device.InLeft, out.sent[3].stream)

	first := out.sent[0].f
	assert.Equal(t, frame.TypeRAW8, first.Type)
	assert.Equal(t, frame.SocketRight, first.Socket)
	assert.Equal(t, frame.Right, first.Stream)
	assert.Equal(t, time.Duration(0), first.Timestamp)
	assert.Equal(t, w, first.Width)
	assert.Equal(t, h, first.Height)
	require.Len(t, first.Data, w*h)
	assert.Equal(t, byte(0), first.Data[0])
	assert.Equal(t, byte(1), out.sent[2].f.Data[0])
	assert.Equal(t, frame.SocketLeft, out.sent[2].f.Socket)

	assert.Equal(t, 1, p.Index())
	assert.Equal(t, 33*time.Millisecond, p.Timestamp())

	require.NoError(t, p.Step(ctx))
	require.Len(t, out.sent, 6)
	assert.Equal(t, 33*time.Millisecond, out.sent[4].f.Timestamp)
	assert.Equal(t, byte(10), out.sent[4].f.Data[0])
	assert.Equal(t, byte(11), out.sent[5].f.Data[0])

	// Index wraps around the dataset size.
	assert.Equal(t, 0, p.Index())
	require.NoError(t, p.Step(ctx))
	assert.Equal(t, byte(0), out.sent[6].f.Data[0])
	assert.Equal(t, 66*time.Millisecond, out.sent[6].f.Timestamp)
	assert.EqualValues(t, 8, p.Sent())
}

func TestPlayer_WrongSize(t *testing.T) {
	dir := writeDataset(t, 1, 8, 4)
	cfg := testConfig(dir, 640, 400)
	cfg.Size = 1

	err := NewPlayer(cfg, stereoInputs, &recorder{}).Step(context.Background())
	assert.ErrorIs(t, err, ErrImage)
}

func TestPlayer_MissingImage(t *testing.T) {
	err := NewPlayer(testConfig(t.TempDir(), 8, 4), stereoInputs, &recorder{}).Step(context.Background())
	assert.ErrorIs(t, err, ErrImage)
}

func TestPlayer_SendError(t *testing.T) {
	dir := writeDataset(t, 1, 8, 4)
	cfg := testConfig(dir, 8, 4)
	cfg.Size = 1

	err := NewPlayer(cfg, stereoInputs, &recorder{err: device.ErrNotConnected}).Step(context.Background())
	assert.True(t, errors.Is(err, device.ErrNotConnected))
}

func TestPlayer_PaceCancelled(t *testing.T) {
	dir := writeDataset(t, 1, 8, 4)
	cfg := testConfig(dir, 8, 4)
	cfg.Size = 1
	cfg.Pace = true
	cfg.FrameInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPlayer(cfg, stereoInputs, &recorder{}).Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPlayer_Defaults(t *testing.T) {
	p := NewPlayer(Config{}, nil, &recorder{})
	assert.Equal(t, DefaultSize, p.cfg.Size)
	assert.Equal(t, DefaultFrameInterval, p.cfg.FrameInterval)
}
