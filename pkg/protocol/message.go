// Package protocol defines the WebSocket messages exchanged between the host
// and an OAK-D device bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Host messages
	TypeFrame      MessageType = "frame"       // Raw output buffer
	TypeDeviceInfo MessageType = "device_info" // Cameras and calibration

	// Host → Device messages
	TypePipeline MessageType = "pipeline" // Pipeline definition
	TypeInput    MessageType = "input"    // Frame injected into an input stream

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Device → Host Message Types
// =============================================================================

// FrameData carries one raw output buffer
type FrameData struct {
	Stream      string `json:"stream"` // "disparity", "rectified_right", ...
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Type        string `json:"type,omitempty"` // "RAW8", "RAW16", "NV12", "RGB888p"
	Seq         uint64 `json:"seq"`
	TimestampMs int64  `json:"ts_ms"` // Device clock
	Socket      string `json:"socket,omitempty"`
	Data        string `json:"data"` // base64 encoded
}

// DeviceInfo describes what the device has connected
type DeviceInfo struct {
	Name    string   `json:"name"`
	MxID    string   `json:"mxid,omitempty"`
	Cameras []string `json:"cameras"` // board sockets: "RGB", "LEFT", "RIGHT"

	// Intrinsics of the right camera at the stereo resolution. Nil when the
	// device is uncalibrated.
	Intrinsics *IntrinsicsData `json:"intrinsics,omitempty"`
	BaselineMM float64         `json:"baseline_mm,omitempty"`
}

// IntrinsicsData is a pinhole calibration
type IntrinsicsData struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// =============================================================================
// Host → Device Message Types
// =============================================================================

// PipelineData tells the bridge which streams to produce
type PipelineData struct {
	Streams      []string `json:"streams"`
	InputStreams []string `json:"input_streams,omitempty"` // "in_right", "in_left"
	FromCamera   bool     `json:"from_camera"`
	QueueDepth   int      `json:"queue_depth"`

	Stereo *StereoSettings `json:"stereo,omitempty"`

	// Static input mode: the device gets no calibration and a fixed input
	// resolution.
	EmptyCalibration bool `json:"empty_calibration,omitempty"`
	InputWidth       int  `json:"input_width,omitempty"`
	InputHeight      int  `json:"input_height,omitempty"`
}

// StereoSettings is the stereo node configuration sent to the device
type StereoSettings struct {
	LeftRightCheck bool   `json:"lrcheck"`
	Extended       bool   `json:"extended"`
	Subpixel       bool   `json:"subpixel"`
	Median         string `json:"median"`
	Confidence     int    `json:"confidence"`
	EdgeFill       int    `json:"edge_fill"`
	Rectified      bool   `json:"rectified"`
	Depth          bool   `json:"depth"`
}

// InputData injects a frame into a device input stream
type InputData struct {
	Stream      string `json:"stream"` // "in_right", "in_left"
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TimestampMs int64  `json:"ts_ms"`
	Socket      string `json:"socket"`
	Data        string `json:"data"` // base64 encoded
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
