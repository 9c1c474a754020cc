package keypoints

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	MaxDist      int  `json:"max_dist"`
}

// DefaultMatchingConfig returns the matching parameters used by the
// perception pipeline.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DoCrossCheck: true,
		MaxDist:      0,
	}
}

// DescriptorMatch contains the index of a match in the first and second set
// of descriptors and their hamming distance.
type DescriptorMatch struct {
	Idx1     int
	Idx2     int
	Distance int
}

// DescriptorMatches contains the matched indices, ordered by ascending
// distance, and the descriptor sets they refer to.
type DescriptorMatches struct {
	Indices      []DescriptorMatch
	Descriptors1 Descriptors
	Descriptors2 Descriptors
}

// MatchDescriptors takes 2 sets of descriptors and performs nearest neighbor
// matching, optionally with a symmetric cross check. The returned matches are
// sorted by ascending descriptor distance.
func MatchDescriptors(desc1, desc2 Descriptors, cfg *MatchingConfig) (*DescriptorMatches, error) {
	if len(desc1) == 0 || len(desc2) == 0 {
		return nil, errors.New("cannot match empty descriptor sets")
	}
	distances, err := DescriptorsHammingDistance(desc1, desc2)
	if err != nil {
		return nil, err
	}
	indices2 := getArgMinDistancesPerRow(distances)
	// mask for valid indices
	maskIdx := make([]int, len(desc1))
	for i := range maskIdx {
		maskIdx[i] = 1
	}
	if cfg.DoCrossCheck {
		// transpose distances and compute argmin per row on the transposed
		// matrix; a match survives only if it is mutual
		distT := transposeInt(distances)
		matches1 := getArgMinDistancesPerRow(distT)
		for i := range maskIdx {
			if i != matches1[indices2[i]] {
				maskIdx[i] = 0
			}
		}
	}
	if cfg.MaxDist > 0 {
		for i := range maskIdx {
			if distances[i][indices2[i]] >= cfg.MaxDist {
				maskIdx[i] = 0
			}
		}
	}
	// masked indices
	idx1 := make([]int, 0, len(desc1))
	idx2 := make([]int, 0, len(desc1))
	for i := range desc1 {
		if maskIdx[i] == 1 {
			idx1 = append(idx1, i)
			idx2 = append(idx2, indices2[i])
		}
	}
	// sort the retained pairs by ascending distance
	dist := make([]float64, len(idx1))
	for i := range dist {
		dist[i] = float64(distances[idx1[i]][idx2[i]])
	}
	sortedIndices := make([]int, len(idx1))
	floats.Argsort(dist, sortedIndices)
	matches := make([]DescriptorMatch, len(idx1))
	for i, idx := range sortedIndices {
		matches[i] = DescriptorMatch{idx1[idx], idx2[idx], int(dist[i])}
	}

	return &DescriptorMatches{matches, desc1, desc2}, nil
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the
// corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches *DescriptorMatches, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	if len(kps1) < len(matches.Indices) {
		return nil, nil, errors.New("there are more matches than keypoints in first set")
	}
	if len(kps2) < len(matches.Indices) {
		return nil, nil, errors.New("there are more matches than keypoints in second set")
	}
	matchedKps1 := make(KeyPoints, len(matches.Indices))
	matchedKps2 := make(KeyPoints, len(matches.Indices))
	for i, match := range matches.Indices {
		matchedKps1[i] = kps1[match.Idx1]
		matchedKps2[i] = kps2[match.Idx2]
	}
	return matchedKps1, matchedKps2, nil
}
