package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-oakd/internal/log"
	"github.com/teslashibe/go-oakd/pkg/frame"
	"github.com/teslashibe/go-oakd/pkg/protocol"
)

// ErrNotConnected is returned when no device bridge is attached.
var ErrNotConnected = errors.New("device not connected")

// Connection is the attached device bridge.
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the bridge
func (c *Connection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub accepts a single device bridge and buffers its output streams.
type Hub struct {
	mu       sync.RWMutex
	conn     *Connection
	info     *protocol.DeviceInfo
	ready    chan struct{}
	pipeline *Pipeline
	queues   map[frame.Stream]*Queue
	depth    int
	logger   *slog.Logger

	onFrame func(deviceID string, f frame.RawFrame)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesUnrouted   atomic.Uint64
	badFrames        atomic.Uint64
}

// NewHub creates a hub whose output queues hold queueDepth frames.
func NewHub(queueDepth int) *Hub {
	if queueDepth < 1 {
		queueDepth = DefaultQueueDepth
	}
	return &Hub{
		ready:  make(chan struct{}),
		queues: make(map[frame.Stream]*Queue),
		depth:  queueDepth,
		logger: log.Component("device"),
	}
}

// OnFrame sets a callback invoked for every frame received, before it is
// queued. It runs on the connection goroutine.
func (h *Hub) OnFrame(callback func(deviceID string, f frame.RawFrame)) {
	h.mu.Lock()
	h.onFrame = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(h.handleDevice))
	app.Get("/ws/device/:id", websocket.New(h.handleDevice))
}

// handleDevice serves one bridge connection until it closes.
func (h *Hub) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	conn := &Connection{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	if h.conn != nil {
		existing := h.conn.ID
		h.mu.Unlock()
		h.logger.Warn("rejecting second device bridge", "id", id, "attached", existing)
		_ = c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}
	h.conn = conn
	h.mu.Unlock()

	h.logger.Info("device connected", "id", id)

	defer func() {
		h.mu.Lock()
		if h.conn == conn {
			h.conn = nil
			h.info = nil
			select {
			case <-h.ready:
				h.ready = make(chan struct{})
			default:
			}
		}
		h.mu.Unlock()
		h.logger.Info("device disconnected", "id", id)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("device read error", "id", id, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = time.Now()
		conn.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(conn, data)
	}
}

// handleMessage processes an incoming message from the bridge
func (h *Hub) handleMessage(conn *Connection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("parse error", "id", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.handleFrame(conn, msg)

	case protocol.TypeDeviceInfo:
		info, err := msg.GetDeviceInfo()
		if err != nil {
			h.logger.Warn("bad device info", "id", conn.ID, "error", err)
			return
		}
		h.setInfo(conn, info)

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		pingID := ""
		if ping != nil {
			pingID = ping.ID
		}
		pong, err := protocol.NewPongMessage(pingID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			h.messagesSent.Add(1)
			_ = conn.Send(pong)
		}
	}
}

func (h *Hub) handleFrame(conn *Connection, msg *protocol.Message) {
	h.framesReceived.Add(1)

	fd, err := msg.GetFrameData()
	if err != nil {
		h.badFrames.Add(1)
		return
	}
	f, err := fd.RawFrame()
	if err != nil {
		h.badFrames.Add(1)
		h.logger.Warn("dropping frame", "id", conn.ID, "stream", fd.Stream, "error", err)
		return
	}

	h.mu.RLock()
	cb := h.onFrame
	q := h.queues[f.Stream]
	h.mu.RUnlock()

	if cb != nil {
		cb(conn.ID, f)
	}
	if q == nil {
		h.framesUnrouted.Add(1)
		return
	}
	q.Push(f)
}

func (h *Hub) setInfo(conn *Connection, info *protocol.DeviceInfo) {
	h.mu.Lock()
	h.info = info
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	p := h.pipeline
	h.mu.Unlock()

	h.logger.Info("device info", "id", conn.ID, "name", info.Name, "cameras", info.Cameras)

	// A bridge that reconnects gets the pipeline again.
	if p != nil {
		if err := h.sendPipeline(p); err != nil {
			h.logger.Warn("resend pipeline failed", "error", err)
		}
	}
}

// WaitForDevice blocks until a bridge is attached and has reported its
// device info.
func (h *Hub) WaitForDevice(ctx context.Context) (*protocol.DeviceInfo, error) {
	for {
		h.mu.RLock()
		ready := h.ready
		h.mu.RUnlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}

		if info := h.Info(); info != nil {
			return info, nil
		}
	}
}

// Info returns the attached device's info, or nil.
func (h *Hub) Info() *protocol.DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.info
}

// Connected reports whether a bridge is attached.
func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Configure creates an output queue per pipeline stream and sends the
// pipeline to the bridge. Frames for streams outside the pipeline are
// discarded.
func (h *Hub) Configure(p *Pipeline) error {
	depth := p.QueueDepth
	if depth < 1 {
		depth = h.depth
	}

	queues := make(map[frame.Stream]*Queue, len(p.Streams))
	for _, s := range p.Streams {
		queues[s] = NewQueue(depth)
	}

	h.mu.Lock()
	h.pipeline = p
	h.queues = queues
	h.mu.Unlock()

	return h.sendPipeline(p)
}

func (h *Hub) sendPipeline(p *Pipeline) error {
	msg, err := protocol.NewPipelineMessage(p.Message())
	if err != nil {
		return err
	}
	return h.send(msg)
}

// Queue returns the output queue for s, or nil if s is not in the pipeline.
func (h *Hub) Queue(s frame.Stream) *Queue {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.queues[s]
}

// SendInput injects f into the named device input stream.
func (h *Hub) SendInput(stream string, f frame.RawFrame) error {
	msg, err := protocol.NewInputMessage(stream, f)
	if err != nil {
		return err
	}
	return h.send(msg)
}

func (h *Hub) send(msg *protocol.Message) error {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	h.messagesSent.Add(1)
	return conn.Send(msg)
}

// Stats contains hub statistics
type Stats struct {
	Connected        bool                  `json:"connected"`
	MessagesReceived uint64                `json:"messages_received"`
	MessagesSent     uint64                `json:"messages_sent"`
	FramesReceived   uint64                `json:"frames_received"`
	FramesUnrouted   uint64                `json:"frames_unrouted"`
	BadFrames        uint64                `json:"bad_frames"`
	Queues           map[string]QueueStats `json:"queues"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	queues := make(map[string]QueueStats, len(h.queues))
	for s, q := range h.queues {
		queues[s.String()] = q.Stats()
	}
	connected := h.conn != nil
	h.mu.RUnlock()

	return Stats{
		Connected:        connected,
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesUnrouted:   h.framesUnrouted.Load(),
		BadFrames:        h.badFrames.Load(),
		Queues:           queues,
	}
}

// ConnectionInfo describes the attached bridge
type ConnectionInfo struct {
	ID        string               `json:"id"`
	Connected time.Time            `json:"connected"`
	LastSeen  time.Time            `json:"last_seen"`
	Device    *protocol.DeviceInfo `json:"device,omitempty"`
	Pipeline  []string             `json:"pipeline,omitempty"`
}

// GetConnectionInfo returns info about the attached bridge, or nil.
func (h *Hub) GetConnectionInfo() *ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.conn == nil {
		return nil
	}

	h.conn.mu.Lock()
	ci := &ConnectionInfo{
		ID:        h.conn.ID,
		Connected: h.conn.Connected,
		LastSeen:  h.conn.LastSeen,
		Device:    h.info,
	}
	h.conn.mu.Unlock()

	if h.pipeline != nil {
		for _, s := range h.pipeline.Streams {
			ci.Pipeline = append(ci.Pipeline, s.String())
		}
	}
	return ci
}

// RegisterAPIRoutes registers API routes for the device
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	dev := api.Group("/device")

	dev.Get("/", func(c *fiber.Ctx) error {
		info := h.GetConnectionInfo()
		if info == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrNotConnected.Error()})
		}
		return c.JSON(info)
	})

	dev.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
