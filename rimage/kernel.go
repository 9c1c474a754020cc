// Package rimage provides the image helpers the vision pipeline needs:
// grayscale conversion, border padding, convolution and encoding.
package rimage

import (
	"image"

	"github.com/pkg/errors"
)

// Kernel is a 2 dimensional matrix used for convolutions.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// NewKernel creates a new Kernel with the given height and width, all
// coefficients zero.
func NewKernel(height, width int) (*Kernel, error) {
	if height < 0 || width < 0 {
		return nil, errors.Errorf("negative kernel dimensions %d x %d", height, width)
	}
	content := make([][]float64, height)
	for i := range content {
		content[i] = make([]float64, width)
	}
	return &Kernel{content, height, width}, nil
}

// At returns the coefficient at position (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Set sets the coefficient at position (x, y).
func (k *Kernel) Set(x, y int, value float64) {
	k.Content[y][x] = value
}

// Size returns the kernel dimensions as an image.Point.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// Sum returns the sum of all coefficients.
func (k *Kernel) Sum() float64 {
	var sum float64
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			sum += k.Content[y][x]
		}
	}
	return sum
}

// Normalize returns a copy of the kernel scaled so its coefficients sum to 1.
// A zero-sum kernel is returned unchanged.
func (k *Kernel) Normalize() *Kernel {
	sum := k.Sum()
	if sum == 0 {
		sum = 1
	}
	normalized := make([][]float64, k.Height)
	for y := 0; y < k.Height; y++ {
		normalized[y] = make([]float64, k.Width)
		for x := 0; x < k.Width; x++ {
			normalized[y][x] = k.Content[y][x] / sum
		}
	}
	return &Kernel{normalized, k.Height, k.Width}
}
