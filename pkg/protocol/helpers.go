package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/stereo"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from a raw device buffer
func NewFrameMessage(f frame.RawFrame) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Stream:      f.Stream.String(),
		Width:       f.Width,
		Height:      f.Height,
		Type:        f.Type.String(),
		Seq:         f.Seq,
		TimestampMs: f.Timestamp.Milliseconds(),
		Socket:      string(f.Socket),
		Data:        base64.StdEncoding.EncodeToString(f.Data),
	})
}

// NewDeviceInfoMessage creates a device info message
func NewDeviceInfoMessage(info DeviceInfo) (*Message, error) {
	return NewMessage(TypeDeviceInfo, info)
}

// NewPipelineMessage creates a pipeline message
func NewPipelineMessage(p PipelineData) (*Message, error) {
	return NewMessage(TypePipeline, p)
}

// NewInputMessage creates a frame injection message for an input stream
func NewInputMessage(stream string, f frame.RawFrame) (*Message, error) {
	return NewMessage(TypeInput, InputData{
		Stream:      stream,
		Width:       f.Width,
		Height:      f.Height,
		TimestampMs: f.Timestamp.Milliseconds(),
		Socket:      string(f.Socket),
		Data:        base64.StdEncoding.EncodeToString(f.Data),
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// StereoSettingsFrom converts a stereo config to its wire form. The config is
// sanitized first so the device never sees a median filter it cannot run.
func StereoSettingsFrom(cfg stereo.Config) *StereoSettings {
	cfg = cfg.Sanitize()
	return &StereoSettings{
		LeftRightCheck: cfg.LeftRightCheck,
		Extended:       cfg.Extended,
		Subpixel:       cfg.Subpixel,
		Median:         cfg.Median.String(),
		Confidence:     cfg.Confidence,
		EdgeFill:       cfg.EdgeFill,
		Rectified:      cfg.Rectified,
		Depth:          cfg.DepthOutput,
	}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 buffer
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// RawFrame converts the wire frame into a frame.RawFrame.
func (f *FrameData) RawFrame() (frame.RawFrame, error) {
	stream, err := frame.ParseStream(f.Stream)
	if err != nil {
		return frame.RawFrame{}, err
	}
	pt, err := frame.ParsePixelType(f.Type)
	if err != nil {
		return frame.RawFrame{}, err
	}
	data, err := f.DecodeFrameData()
	if err != nil {
		return frame.RawFrame{}, fmt.Errorf("decode %s payload: %w", f.Stream, err)
	}
	return frame.RawFrame{
		Stream:    stream,
		Type:      pt,
		Width:     f.Width,
		Height:    f.Height,
		Data:      data,
		Seq:       f.Seq,
		Timestamp: time.Duration(f.TimestampMs) * time.Millisecond,
		Socket:    frame.Socket(f.Socket),
	}, nil
}

// GetDeviceInfo extracts device info from a message
func (m *Message) GetDeviceInfo() (*DeviceInfo, error) {
	var data DeviceInfo
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// HasCamera reports whether the device has a camera on socket.
func (d *DeviceInfo) HasCamera(socket frame.Socket) bool {
	for _, c := range d.Cameras {
		if c == string(socket) {
			return true
		}
	}
	return false
}

// StereoIntrinsics returns the calibration as stereo.Intrinsics.
func (d *DeviceInfo) StereoIntrinsics() (*stereo.Intrinsics, error) {
	if d.Intrinsics == nil {
		return nil, stereo.ErrNoIntrinsics
	}
	in := &stereo.Intrinsics{
		Width:  d.Intrinsics.Width,
		Height: d.Intrinsics.Height,
		Fx:     d.Intrinsics.Fx,
		Fy:     d.Intrinsics.Fy,
		Ppx:    d.Intrinsics.Ppx,
		Ppy:    d.Intrinsics.Ppy,
	}
	if err := in.CheckValid(); err != nil {
		return nil, err
	}
	return in, nil
}

// IntrinsicsDataFrom converts stereo intrinsics to the wire form.
func IntrinsicsDataFrom(in stereo.Intrinsics) *IntrinsicsData {
	return &IntrinsicsData{
		Width:  in.Width,
		Height: in.Height,
		Fx:     in.Fx,
		Fy:     in.Fy,
		Ppx:    in.Ppx,
		Ppy:    in.Ppy,
	}
}

// GetPipelineData extracts pipeline data from a message
func (m *Message) GetPipelineData() (*PipelineData, error) {
	var data PipelineData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetInputData extracts input data from a message
func (m *Message) GetInputData() (*InputData, error) {
	var data InputData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeInputData decodes the base64 buffer
func (in *InputData) DecodeInputData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(in.Data)
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
