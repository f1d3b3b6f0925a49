// Package frame turns raw device buffers into displayable images and, for the
// disparity stream, metric depth maps.
package frame

import "fmt"

// Stream identifies one of the device output streams. The set is closed.
type Stream int

const (
	RGBPreview Stream = iota
	RGBVideo
	Left
	Right
	RectifiedLeft
	RectifiedRight
	Disparity
	Depth

	numStreams
)

var streamNames = [numStreams]string{
	RGBPreview:     "rgb_preview",
	RGBVideo:       "rgb_video",
	Left:           "left",
	Right:          "right",
	RectifiedLeft:  "rectified_left",
	RectifiedRight: "rectified_right",
	Disparity:      "disparity",
	Depth:          "depth",
}

// Streams returns every stream in decode order.
func Streams() []Stream {
	out := make([]Stream, 0, numStreams)
	for s := Stream(0); s < numStreams; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is a known stream.
func (s Stream) Valid() bool {
	return s >= 0 && s < numStreams
}

// String returns the device stream name.
func (s Stream) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stream(%d)", int(s))
	}
	return streamNames[s]
}

// ParseStream maps a device stream name to a Stream.
func ParseStream(name string) (Stream, error) {
	for s, n := range streamNames {
		if n == name {
			return Stream(s), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStream, name)
}

// MustParseStreams parses a list of names and panics on an unknown one.
// Intended for fixed tables.
func MustParseStreams(names ...string) []Stream {
	out := make([]Stream, len(names))
	for i, n := range names {
		s, err := ParseStream(n)
		if err != nil {
			panic(err)
		}
		out[i] = s
	}
	return out
}

// PixelType is the buffer layout a frame declares, if any.
type PixelType int

const (
	TypeUnset PixelType = iota
	TypeRAW8
	TypeRAW16
	TypeNV12
	TypeRGB888p
)

func (p PixelType) String() string {
	switch p {
	case TypeRAW8:
		return "RAW8"
	case TypeRAW16:
		return "RAW16"
	case TypeNV12:
		return "NV12"
	case TypeRGB888p:
		return "RGB888p"
	default:
		return ""
	}
}

// ParsePixelType maps a wire name to a PixelType. Empty means unset.
func ParsePixelType(s string) (PixelType, error) {
	switch s {
	case "":
		return TypeUnset, nil
	case "RAW8":
		return TypeRAW8, nil
	case "RAW16":
		return TypeRAW16, nil
	case "NV12":
		return TypeNV12, nil
	case "RGB888p":
		return TypeRGB888p, nil
	}
	return TypeUnset, fmt.Errorf("unknown pixel type %q", s)
}

// Socket is the camera board socket a frame belongs to.
type Socket string

const (
	SocketRGB   Socket = "RGB"
	SocketLeft  Socket = "LEFT"
	SocketRight Socket = "RIGHT"
)
