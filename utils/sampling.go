package utils

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SampleNIntegersNormal samples n integers from a normal distribution centered
// around (vMax+vMin) / 2 and in range [vMin, vMax].
func SampleNIntegersNormal(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	mean := (vMax + vMin) / 2
	dist := distuv.Normal{
		Mu:    mean,
		Sigma: (vMax - vMin) * 0.4472,
	}
	for i := range z {
		val := math.Round(dist.Rand())
		for val < vMin || val > vMax {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}
	return z
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax].
func SampleNIntegersUniform(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	dist := distuv.Uniform{
		Min: vMin,
		Max: vMax,
	}
	for i := range z {
		val := math.Round(dist.Rand())
		for val < vMin || val > vMax {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}
	return z
}

// SampleNRegularlySpaced returns n integers evenly spaced in [vMin, vMax].
// A single sample falls in the middle of the range.
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	if n == 1 {
		return []int{int(math.Round((vMin + vMax) / 2))}
	}
	z := make([]int, n)
	step := (vMax - vMin) / float64(n-1)
	for i := range z {
		z[i] = int(math.Round(vMin + float64(i)*step))
	}
	return z
}
