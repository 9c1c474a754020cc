package keypoints

import (
	"math/bits"

	"github.com/pkg/errors"
)

// Descriptor is a binary descriptor packed into 64 bit words.
type Descriptor []uint64

// Descriptors is a slice of Descriptor.
type Descriptors []Descriptor

// DescriptorHammingDistance computes the hamming distance between two binary
// descriptors of the same length.
func DescriptorHammingDistance(desc1, desc2 Descriptor) (int, error) {
	if len(desc1) != len(desc2) {
		return -1, errors.Errorf("descriptors must have same length (%d != %d)", len(desc1), len(desc2))
	}
	distance := 0
	for i := range desc1 {
		distance += bits.OnesCount64(desc1[i] ^ desc2[i])
	}
	return distance, nil
}

// DescriptorsHammingDistance computes the pairwise distances between the two
// descriptor sets.
func DescriptorsHammingDistance(descs1, descs2 Descriptors) ([][]int, error) {
	distances := make([][]int, len(descs1))
	for i := range distances {
		distances[i] = make([]int, len(descs2))
		for j := range distances[i] {
			d, err := DescriptorHammingDistance(descs1[i], descs2[j])
			if err != nil {
				return nil, err
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}

// getArgMinDistancesPerRow returns, for each row of the distance matrix, the
// column index of its minimum.
func getArgMinDistancesPerRow(distances [][]int) []int {
	indices := make([]int, len(distances))
	for i, row := range distances {
		minIdx := 0
		for j, d := range row {
			if d < row[minIdx] {
				minIdx = j
			}
		}
		indices[i] = minIdx
	}
	return indices
}

// transposeInt transposes an integer matrix.
func transposeInt(m [][]int) [][]int {
	if len(m) == 0 {
		return [][]int{}
	}
	t := make([][]int, len(m[0]))
	for i := range t {
		t[i] = make([]int, len(m))
		for j := range t[i] {
			t[i][j] = m[j][i]
		}
	}
	return t
}
