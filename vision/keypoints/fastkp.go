package keypoints

import (
	"image"
	"sort"

	"github.com/lobo-robotics/rover/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	NMatchesCircle int     `json:"n_matches"`
	NMSWinSize     int     `json:"nms_win_size_px"`
	Threshold      float64 `json:"threshold"`
	Oriented       bool    `json:"oriented"`
	MaxKeypoints   int     `json:"max_keypoints"`
}

// DefaultFASTConfig returns the FAST parameters used by the perception
// pipeline.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		NMatchesCircle: 9,
		NMSWinSize:     7,
		Threshold:      0.15,
		Oriented:       true,
		MaxKeypoints:   100,
	}
}

// CircleIdx contains the 16 pixel offsets of the radius 3 Bresenham circle
// used by FAST, in clockwise order starting from the top.
var CircleIdx = []image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// CrossIdx contains the 4 pixel offsets of the cross neighborhood used for
// the fast rejection test.
var CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}

// FASTKeypoints stores keypoint locations and, if computed, their orientations.
type FASTKeypoints OrientedKeypoints

// IsOriented returns true if keypoints in FASTKeypoints have orientations.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}

// GetPointValuesInNeighborhood returns the intensities of the pixels in the
// neighborhood of p described by the given offsets.
func GetPointValuesInNeighborhood(img *image.Gray, p image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, off := range neighborhood {
		vals[i] = float64(img.GrayAt(p.X+off.X, p.Y+off.Y).Y)
	}
	return vals
}

// getBrighterValues returns a binary slice marking the values of s strictly
// brighter than t.
func getBrighterValues(s []float64, t float64) []float64 {
	brighter := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			brighter[i] = 1
		}
	}
	return brighter
}

// getDarkerValues returns a binary slice marking the values of s strictly
// darker than t.
func getDarkerValues(s []float64, t float64) []float64 {
	darker := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			darker[i] = 1
		}
	}
	return darker
}

// isValidSliceVals returns true if the binary slice s contains a circular run
// of at least n ones.
func isValidSliceVals(s []float64, n int) bool {
	if len(s) == 0 {
		return false
	}
	// doubling the slice handles runs that wrap around
	run := 0
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// computeFASTScore scores a corner candidate by the total absolute intensity
// difference between the center and its circle neighborhood.
func computeFASTScore(img *image.Gray, p image.Point) float64 {
	center := float64(img.GrayAt(p.X, p.Y).Y)
	vals := GetPointValuesInNeighborhood(img, p, CircleIdx)
	var score float64
	for _, v := range vals {
		diff := v - center
		if diff < 0 {
			diff = -diff
		}
		score += diff
	}
	return score
}

type scoredKeypoint struct {
	p     image.Point
	score float64
}

// ComputeFAST computes the location of FAST keypoints in the image.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) KeyPoints {
	bounds := img.Bounds()
	w, h := bounds.Max.X, bounds.Max.Y
	threshold := cfg.Threshold * 255.

	candidates := make([]scoredKeypoint, 0, 64)
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			p := image.Point{x, y}
			center := float64(img.GrayAt(x, y).Y)
			// fast rejection on the cross neighborhood: the summed intensity
			// difference must exceed 3 thresholds on the bright or dark side
			crossVals := GetPointValuesInNeighborhood(img, p, CrossIdx)
			diffs := make([]float64, len(crossVals))
			for i, v := range crossVals {
				diffs[i] = v - center
			}
			if sumOfPositiveValuesSlice(diffs) < 3*threshold && -sumOfNegativeValuesSlice(diffs) < 3*threshold {
				continue
			}
			circleVals := GetPointValuesInNeighborhood(img, p, CircleIdx)
			brighter := getBrighterValues(circleVals, center+threshold)
			darker := getDarkerValues(circleVals, center-threshold)
			if !isValidSliceVals(brighter, cfg.NMatchesCircle) && !isValidSliceVals(darker, cfg.NMatchesCircle) {
				continue
			}
			candidates = append(candidates, scoredKeypoint{p, computeFASTScore(img, p)})
		}
	}
	candidates = nonMaximumSuppression(candidates, cfg.NMSWinSize)
	if cfg.MaxKeypoints > 0 && len(candidates) > cfg.MaxKeypoints {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		candidates = candidates[:cfg.MaxKeypoints]
	}
	// keep raster order for stable downstream indexing
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].p.Y != candidates[j].p.Y {
			return candidates[i].p.Y < candidates[j].p.Y
		}
		return candidates[i].p.X < candidates[j].p.X
	})
	kps := make(KeyPoints, len(candidates))
	for i, c := range candidates {
		kps[i] = c.p
	}
	return kps
}

// nonMaximumSuppression keeps, for every candidate, only the highest scored
// corner within a winSize x winSize window.
func nonMaximumSuppression(candidates []scoredKeypoint, winSize int) []scoredKeypoint {
	kept := make([]scoredKeypoint, 0, len(candidates))
	for i, c := range candidates {
		isMax := true
		for j, other := range candidates {
			if i == j {
				continue
			}
			if utils.AbsInt(c.p.X-other.p.X) <= winSize && utils.AbsInt(c.p.Y-other.p.Y) <= winSize {
				if other.score > c.score {
					isMax = false
					break
				}
				// ties go to the earlier candidate in raster order
				if other.score == c.score && j < i {
					isMax = false
					break
				}
			}
		}
		if isMax {
			kept = append(kept, c)
		}
	}
	return kept
}

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct
// containing keypoints locations and orientations if Oriented is set to true
// in the configuration.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) (*FASTKeypoints, error) {
	kps := ComputeFAST(img, cfg)
	var orientations []float64
	if cfg.Oriented {
		var err error
		orientations, err = computeKeypointsOrientations(img, kps)
		if err != nil {
			return nil, err
		}
	}
	return &FASTKeypoints{
		kps,
		orientations,
	}, nil
}
