package hub

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

func TestNew(t *testing.T) {
	h := New("disparity")

	if h.Name() != "disparity" {
		t.Errorf("Name() = %q", h.Name())
	}
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not run before Run")
	}
}

func TestBroadcast_DropsWhenBackedUp(t *testing.T) {
	h := New("test")

	// Nothing drains the channel without Run.
	for i := 0; i < cap(h.broadcast); i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	if h.Dropped() != 0 {
		t.Fatalf("Dropped() = %d before the buffer is full", h.Dropped())
	}

	h.BroadcastBinary([]byte{0xFF})
	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	if h.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", h.Dropped())
	}
}

func TestBroadcastJSON_Error(t *testing.T) {
	h := New("test")
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub did not start")
	}

	h.BroadcastBinary([]byte("frame"))
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("IsRunning() after stop")
	}

	// Registering after shutdown must not block.
	c := NewClient(h, nil)
	if _, ok := <-c.send; ok {
		t.Error("client of a stopped hub should get a closed channel")
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := NewBinaryMessage([]byte{1}); m.Type != BinaryMessage {
		t.Errorf("NewBinaryMessage type = %v", m.Type)
	}
	if m := NewJSONMessage([]byte("{}")); m.Type != JSONMessage {
		t.Errorf("NewJSONMessage type = %v", m.Type)
	}
	if NewBinaryMessage(nil).wsType() != websocket.BinaryMessage {
		t.Error("frames must go out as binary")
	}
	if NewJSONMessage(nil).wsType() != websocket.TextMessage {
		t.Error("JSON must go out as text")
	}
}
