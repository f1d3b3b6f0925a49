// Package replay feeds a recorded stereo dataset into the device input
// streams, for running stereo on static frames.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/device"
	"github.com/teslashibe/go-oakd/pkg/frame"
)

// Defaults match the dataset layout shipped with the demo.
const (
	DefaultDir           = "dataset"
	DefaultSize          = 2
	DefaultFrameInterval = 33 * time.Millisecond
)

// ErrImage is returned when a dataset image is missing or has the wrong size.
var ErrImage = errors.New("bad dataset image")

// Sender delivers a frame to a device input stream.
type Sender interface {
	SendInput(stream string, f frame.RawFrame) error
}

// Config selects the dataset and the expected frame size.
type Config struct {
	Dir           string
	Size          int // number of image pairs
	Width         int
	Height        int
	FrameInterval time.Duration
	// Pace sleeps one frame interval after each pair.
	Pace bool
}

// DefaultConfig returns the settings for a 640x400 dataset of two pairs.
func DefaultConfig() Config {
	return Config{
		Dir:           DefaultDir,
		Size:          DefaultSize,
		Width:         640,
		Height:        400,
		FrameInterval: DefaultFrameInterval,
		Pace:          true,
	}
}

// Player sends one image pair per Step, cycling over the dataset.
// It is not safe for concurrent use.
type Player struct {
	cfg    Config
	inputs []device.Input
	out    Sender
	logger *slog.Logger

	index     int
	timestamp time.Duration
	sent      uint64
}

// NewPlayer creates a player feeding inputs in the given order.
func NewPlayer(cfg Config, inputs []device.Input, out Sender) *Player {
	if cfg.Size < 1 {
		cfg.Size = DefaultSize
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	return &Player{
		cfg:    cfg,
		inputs: inputs,
		out:    out,
		logger: log.Component("replay"),
	}
}

// Step loads the current pair, sends it and advances. The very first pair is
// sent twice so the device sync stage has something to match against.
func (p *Player) Step(ctx context.Context) error {
	for _, in := range p.inputs {
		path := p.path(in.Name)
		data, err := p.load(path)
		if err != nil {
			return err
		}

		f := frame.RawFrame{
			Stream:    streamFor(in.Socket),
			Type:      frame.TypeRAW8,
			Width:     p.cfg.Width,
			Height:    p.cfg.Height,
			Data:      data,
			Timestamp: p.timestamp,
			Socket:    in.Socket,
		}

		sends := 1
		if p.timestamp == 0 {
			sends = 2
		}
		for i := 0; i < sends; i++ {
			if err := p.out.SendInput(in.Name, f); err != nil {
				return fmt.Errorf("send %s: %w", in.Name, err)
			}
			p.sent++
		}
		p.logger.Debug("sent frame", "path", path, "timestamp_ms", p.timestamp.Milliseconds())
	}

	p.timestamp += p.cfg.FrameInterval
	p.index = (p.index + 1) % p.cfg.Size

	if p.cfg.Pace {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.FrameInterval):
		}
	}
	return nil
}

// Index returns the dataset index of the next pair.
func (p *Player) Index() int {
	return p.index
}

// Timestamp returns the timestamp the next pair will carry.
func (p *Player) Timestamp() time.Duration {
	return p.timestamp
}

// Sent returns the number of frames delivered.
func (p *Player) Sent() uint64 {
	return p.sent
}

func (p *Player) path(input string) string {
	return filepath.Join(p.cfg.Dir, strconv.Itoa(p.index), input+".png")
}

func (p *Player) load(path string) ([]byte, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: cannot read %s", ErrImage, path)
	}
	if img.Cols() != p.cfg.Width || img.Rows() != p.cfg.Height {
		return nil, fmt.Errorf("%w: %s is %dx%d, want %dx%d",
			ErrImage, path, img.Cols(), img.Rows(), p.cfg.Width, p.cfg.Height)
	}
	return img.ToBytes(), nil
}

func streamFor(s frame.Socket) frame.Stream {
	if s == frame.SocketLeft {
		return frame.Left
	}
	return frame.Right
}
