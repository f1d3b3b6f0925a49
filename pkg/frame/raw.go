package frame

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShape means a payload does not match its declared dimensions.
	// It points at a mismatch between the stereo settings and what the
	// device actually sends, and is not recoverable at runtime.
	ErrShape = errors.New("frame payload does not match its shape")

	// ErrUnknownStream is returned for stream names outside the fixed set.
	ErrUnknownStream = errors.New("unknown stream")
)

// RawFrame is one buffer as delivered by a device output queue.
// Data must not be modified once the frame is queued.
type RawFrame struct {
	Stream Stream
	Type   PixelType
	Width  int
	Height int
	Data   []byte

	// Seq is the device sequence number.
	Seq uint64
	// Timestamp is on the device clock.
	Timestamp time.Duration
	Socket    Socket
}

// ShapeError reports a payload whose length is not what its width, height
// and pixel layout require.
type ShapeError struct {
	Stream Stream
	Width  int
	Height int
	Layout string
	Want   int
	Got    int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s %dx%d %s: want %d bytes, got %d",
		e.Stream, e.Width, e.Height, e.Layout, e.Want, e.Got)
}

func (e *ShapeError) Unwrap() error {
	return ErrShape
}

func checkSize(f RawFrame, layout string, want int) error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) != want {
		return &ShapeError{
			Stream: f.Stream,
			Width:  f.Width,
			Height: f.Height,
			Layout: layout,
			Want:   want,
			Got:    len(f.Data),
		}
	}
	return nil
}
