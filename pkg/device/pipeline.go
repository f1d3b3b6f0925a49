package device

import (
	"fmt"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/protocol"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// Input stream names for host-fed frames. Right is sent first: the device
// sync stage times out if the pair arrives too far apart.
const (
	InRight = "in_right"
	InLeft  = "in_left"
)

// Kind says which of the two pipeline shapes was built.
type Kind string

const (
	KindStereo Kind = "stereo"
	KindRGB    Kind = "rgb"
)

// Input is one host-fed stream and the camera socket its frames are tagged
// with.
type Input struct {
	Name   string
	Socket frame.Socket
}

// Pipeline describes what the device produces and what it expects from the
// host. Streams are in the order the app loop polls them.
type Pipeline struct {
	Kind       Kind
	Streams    []frame.Stream
	Inputs     []Input
	FromCamera bool
	QueueDepth int
	Stereo     stereo.Config
}

// BuildPipeline picks the stereo pipeline when the device has both mono
// cameras and the RGB pipeline otherwise. With fromCamera false the stereo
// pipeline is fed from the host through in_right and in_left.
func BuildPipeline(info *protocol.DeviceInfo, cfg stereo.Config, fromCamera bool) (*Pipeline, error) {
	if info == nil {
		return nil, fmt.Errorf("build pipeline: %w", ErrNotConnected)
	}

	cfg = cfg.Sanitize()
	p := &Pipeline{
		FromCamera: fromCamera,
		QueueDepth: DefaultQueueDepth,
		Stereo:     cfg,
	}

	if !info.HasCamera(frame.SocketLeft) || !info.HasCamera(frame.SocketRight) {
		if !fromCamera {
			return nil, fmt.Errorf("static input needs a stereo device, %q has cameras %v", info.Name, info.Cameras)
		}
		p.Kind = KindRGB
		p.Streams = []frame.Stream{frame.RGBPreview, frame.RGBVideo}
		return p, nil
	}

	p.Kind = KindStereo
	p.Streams = []frame.Stream{frame.Left, frame.Right}
	if cfg.Rectified {
		p.Streams = append(p.Streams, frame.RectifiedLeft, frame.RectifiedRight)
	}
	p.Streams = append(p.Streams, frame.Disparity, frame.Depth)

	if !fromCamera {
		p.Inputs = []Input{
			{Name: InRight, Socket: frame.SocketRight},
			{Name: InLeft, Socket: frame.SocketLeft},
		}
	}
	return p, nil
}

// Has reports whether the pipeline produces s.
func (p *Pipeline) Has(s frame.Stream) bool {
	for _, ps := range p.Streams {
		if ps == s {
			return true
		}
	}
	return false
}

// Message returns the wire form sent to the bridge.
func (p *Pipeline) Message() protocol.PipelineData {
	names := make([]string, len(p.Streams))
	for i, s := range p.Streams {
		names[i] = s.String()
	}

	data := protocol.PipelineData{
		Streams:    names,
		FromCamera: p.FromCamera,
		QueueDepth: p.QueueDepth,
	}
	if p.Kind == KindStereo {
		data.Stereo = protocol.StereoSettingsFrom(p.Stereo)
	}
	if !p.FromCamera {
		for _, in := range p.Inputs {
			data.InputStreams = append(data.InputStreams, in.Name)
		}
		data.EmptyCalibration = true
		data.InputWidth = p.Stereo.Width
		data.InputHeight = p.Stereo.Height
	}
	return data
}
