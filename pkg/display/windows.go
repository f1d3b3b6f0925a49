// Package display shows decoded streams in OpenCV windows.
package display

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-oakd/pkg/frame"
)

// QuitKey stops the loop when pressed in any window.
const QuitKey = 'q'

// Windows keeps one window per stream, created on first use. All methods
// must be called from the goroutine that owns the GUI (the main loop).
type Windows struct {
	mu      sync.Mutex
	windows map[frame.Stream]*gocv.Window
}

// New returns an empty window set.
func New() *Windows {
	return &Windows{windows: make(map[frame.Stream]*gocv.Window)}
}

// Show draws img in the window named after stream.
func (w *Windows) Show(stream frame.Stream, img gocv.Mat) {
	w.mu.Lock()
	win, ok := w.windows[stream]
	if !ok {
		win = gocv.NewWindow(stream.String())
		w.windows[stream] = win
	}
	w.mu.Unlock()

	win.IMShow(img)
}

// Poll pumps GUI events for 1 ms and reports whether the quit key was
// pressed.
func (w *Windows) Poll() bool {
	w.mu.Lock()
	n := len(w.windows)
	w.mu.Unlock()
	if n == 0 {
		return false
	}
	return gocv.WaitKey(1) == QuitKey
}

// Close destroys every window.
func (w *Windows) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for s, win := range w.windows {
		win.Close()
		delete(w.windows, s)
	}
	return nil
}
