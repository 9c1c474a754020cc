package utils

// RollingAverage averages the last NumSamples values added to it. The zero
// value is not usable; construct with NewRollingAverage.
type RollingAverage struct {
	data []int
	pos  int
}

// NewRollingAverage returns a RollingAverage over the given window size.
func NewRollingAverage(numSamples int) *RollingAverage {
	return &RollingAverage{data: make([]int, numSamples), pos: 0}
}

// NumSamples returns the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Add inserts a sample, evicting the oldest one in the window.
func (ra *RollingAverage) Add(x int) {
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
	}
}

// Average returns the mean of the current window.
func (ra *RollingAverage) Average() int {
	sum := 0
	for _, d := range ra.data {
		sum += d
	}
	return sum / len(ra.data)
}
