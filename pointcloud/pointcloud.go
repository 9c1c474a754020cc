// Package pointcloud provides a bounded, ordered 3D colored point store
// used by the map builder.
package pointcloud

import (
	"image/color"
	"sync"

	"github.com/golang/geo/r3"
)

// DefaultMaxPoints bounds the cloud size; oldest points are evicted first.
const DefaultMaxPoints = 1000

// A Point is a position in world units with a display color.
type Point struct {
	Position r3.Vector   `json:"position"`
	Color    color.NRGBA `json:"color"`
}

// NewPoint is a convenience constructor for a colored point.
func NewPoint(x, y, z float64, c color.NRGBA) Point {
	return Point{Position: r3.Vector{X: x, Y: y, Z: z}, Color: c}
}

// Cloud is a bounded FIFO of points: appending beyond the maximum evicts the
// oldest point, never a random one. The zero value is not usable; construct
// with NewBounded.
type Cloud struct {
	mu     sync.Mutex
	points []Point
	start  int
	count  int
}

// NewBounded returns a Cloud holding at most max points.
func NewBounded(max int) *Cloud {
	if max <= 0 {
		max = DefaultMaxPoints
	}
	return &Cloud{points: make([]Point, max)}
}

// Add appends a point, evicting the oldest if the cloud is full.
func (c *Cloud) Add(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := (c.start + c.count) % len(c.points)
	c.points[end] = p
	if c.count < len(c.points) {
		c.count++
	} else {
		c.start = (c.start + 1) % len(c.points)
	}
}

// Size returns the current number of points.
func (c *Cloud) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// MaxSize returns the point capacity.
func (c *Cloud) MaxSize() int {
	return len(c.points)
}

// Points returns a snapshot copy of the cloud, oldest point first.
func (c *Cloud) Points() []Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Point, c.count)
	for i := 0; i < c.count; i++ {
		out[i] = c.points[(c.start+i)%len(c.points)]
	}
	return out
}
