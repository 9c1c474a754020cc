// Package camera contains the frame type, the bounded most-recent-wins frame
// buffer and the interface to the capture hardware.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNoFrame is returned by a Capturer when no frame is currently available.
// It is a transient condition, not a device failure.
var ErrNoFrame = errors.New("no frame available")

// DefaultBufferSize is how many frames the buffer retains. The buffer is
// deliberately tiny: this is a live view stream, so freshness is prioritized
// over completeness.
const DefaultBufferSize = 3

// A Frame is an encoded camera image and its capture timestamp. A Frame is
// handed to consumers by value and never mutated by them.
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// A Capturer captures a single frame from the camera and encodes it. A
// capture may block for bounded device driver time.
type Capturer interface {
	// CaptureFrame returns the next encoded frame, or ErrNoFrame if none is
	// available right now.
	CaptureFrame(ctx context.Context) (Frame, error)
}

// A Reinitializer can re-open its underlying device after repeated failures.
type Reinitializer interface {
	Reinitialize(ctx context.Context) error
}

// Buffer is a bounded frame store with drop-oldest eviction.
type Buffer struct {
	mu     sync.Mutex
	frames []Frame
	size   int
}

// NewBuffer returns a Buffer holding at most size frames.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{frames: make([]Frame, 0, size), size: size}
}

// Push appends a frame unconditionally, evicting the oldest frame if the
// buffer is over capacity.
func (b *Buffer) Push(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	for len(b.frames) > b.size {
		b.frames = b.frames[1:]
	}
}

// Latest returns the most recently pushed frame, or false if the buffer is
// empty. It never blocks beyond the buffer critical section.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return Frame{}, false
	}
	return b.frames[len(b.frames)-1], true
}

// DrainAll returns a snapshot copy of the current contents, oldest first,
// without mutating the buffer.
func (b *Buffer) DrainAll() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Len returns the current number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
