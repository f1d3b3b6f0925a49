// Package device is the host side of the device bridge: it accepts the
// bridge's websocket, buffers its output streams in small non-blocking
// queues and sends it the pipeline definition and injected input frames.
package device

import (
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-oakd/pkg/frame"
)

// DefaultQueueDepth is the number of frames kept per output stream.
const DefaultQueueDepth = 8

// Queue is a bounded FIFO of raw frames. Push never blocks: when the queue
// is full the oldest frame is dropped. TryGet never waits.
type Queue struct {
	mu    sync.Mutex
	buf   []frame.RawFrame
	head  int
	count int

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue creates a queue holding up to depth frames. A depth below one
// uses DefaultQueueDepth.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Queue{buf: make([]frame.RawFrame, depth)}
}

// Push appends f, evicting the oldest frame when full. It reports whether a
// frame was dropped.
func (q *Queue) Push(f frame.RawFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pushed.Add(1)
	dropped := false
	if q.count == len(q.buf) {
		q.buf[q.head] = frame.RawFrame{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped.Add(1)
		dropped = true
	}
	q.buf[(q.head+q.count)%len(q.buf)] = f
	q.count++
	return dropped
}

// TryGet pops the oldest frame, if any.
func (q *Queue) TryGet() (frame.RawFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return frame.RawFrame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = frame.RawFrame{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return f, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue depth.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// QueueStats counts traffic through one queue.
type QueueStats struct {
	Depth   int    `json:"depth"`
	Queued  int    `json:"queued"`
	Pushed  uint64 `json:"pushed"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Depth:   q.Cap(),
		Queued:  q.Len(),
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
	}
}
