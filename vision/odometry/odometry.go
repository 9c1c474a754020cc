// Package odometry estimates incremental 2D motion of the rover by matching
// visual features between consecutive camera frames.
//
// This is a first order, unoptimized estimator: nearest descriptor matching
// with a symmetric cross check, best K matches kept, mean pixel displacement
// scaled by a fixed empirical factor. There is no RANSAC, no scale recovery
// from depth and no loop closure; drift is an accepted property.
package odometry

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/lobo-robotics/rover/camera"
	"github.com/lobo-robotics/rover/rimage"
	"github.com/lobo-robotics/rover/vision/keypoints"
)

// Status describes the outcome of one odometry invocation. FirstFrame and
// InsufficientFeatures are not errors: they are explicit no-update results.
type Status int

const (
	// StatusOK means a displacement was estimated.
	StatusOK Status = iota
	// StatusFirstFrame means no previous frame existed yet, so no motion
	// could be estimated.
	StatusFirstFrame
	// StatusInsufficientFeatures means too few features were detected to
	// attempt matching; the pose is left unchanged.
	StatusInsufficientFeatures
	// StatusNoMatches means matching ran but no pair survived the cross
	// check and distance filters; the pose is left unchanged.
	StatusNoMatches
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFirstFrame:
		return "first_frame"
	case StatusInsufficientFeatures:
		return "insufficient_features"
	case StatusNoMatches:
		return "no_matches"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one frame.
type Result struct {
	Status  Status
	Matches int
	// DU, DV are the mean pixel displacement between the matched features of
	// the previous and current frame.
	DU, DV float64
	// DX, DY are DU, DV converted to world units.
	DX, DY float64
	// FrameTime is the capture timestamp of the processed frame.
	FrameTime time.Time
}

// Config holds the parameters of the odometry engine.
type Config struct {
	ORB      *keypoints.ORBConfig      `json:"orb"`
	Matching *keypoints.MatchingConfig `json:"matching"`
	// MinFeatures is the minimum number of detected features needed to
	// attempt matching.
	MinFeatures int `json:"min_features"`
	// MaxMatches bounds how many of the best matches contribute to the
	// displacement estimate.
	MaxMatches int `json:"max_matches"`
	// WorldPerPixel converts a pixel displacement into world units.
	WorldPerPixel float64 `json:"world_per_pixel"`
}

// DefaultConfig returns the odometry parameters used by the perception
// pipeline.
func DefaultConfig() *Config {
	return &Config{
		ORB:           keypoints.DefaultORBConfig(),
		Matching:      keypoints.DefaultMatchingConfig(),
		MinFeatures:   10,
		MaxMatches:    20,
		WorldPerPixel: 0.01,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.ORB == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "orb")
	}
	if err := cfg.ORB.Validate(path); err != nil {
		return err
	}
	if cfg.Matching == nil {
		return goutils.NewConfigValidationFieldRequiredError(path, "matching")
	}
	if cfg.MinFeatures < 1 {
		return goutils.NewConfigValidationError(path, errors.New("min_features should be >= 1"))
	}
	if cfg.MaxMatches < 1 {
		return goutils.NewConfigValidationError(path, errors.New("max_matches should be >= 1"))
	}
	if cfg.WorldPerPixel <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("world_per_pixel should be > 0"))
	}
	return nil
}

// Engine detects and matches features between consecutive frames. The
// previous frame's feature set is retained exactly until it is replaced by
// the next successfully processed frame; it is never shared externally.
type Engine struct {
	mu       sync.Mutex
	cfg      *Config
	sp       *keypoints.SamplePairs
	prevDesc keypoints.Descriptors
	prevKps  keypoints.KeyPoints
	logger   golog.Logger
}

// NewEngine returns an odometry engine with the given configuration.
func NewEngine(cfg *Config, logger golog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("odometry"); err != nil {
		return nil, err
	}
	// Sample pairs are generated once: descriptors computed over different
	// pairs are not comparable across frames.
	sp := keypoints.GenerateSamplePairs(cfg.ORB.BRIEFConf.Sampling, cfg.ORB.BRIEFConf.N, cfg.ORB.BRIEFConf.PatchSize)
	return &Engine{cfg: cfg, sp: sp, logger: logger}, nil
}

// Reset drops the retained feature set; the next frame is treated as the
// first one again.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prevDesc = nil
	e.prevKps = nil
}

// Process decodes the frame, detects features and matches them against the
// previous frame's features to estimate a displacement.
func (e *Engine) Process(frame camera.Frame) (Result, error) {
	img, err := rimage.DecodeImage(frame.Data)
	if err != nil {
		return Result{}, errors.Wrap(err, "odometry cannot decode frame")
	}
	gray := rimage.MakeGray(img)

	desc, kps, err := keypoints.ComputeORBKeypoints(gray, e.sp, e.cfg.ORB)
	if err != nil {
		return Result{}, errors.Wrap(err, "odometry cannot compute features")
	}
	if len(kps) < e.cfg.MinFeatures {
		// The retained set stays as is: a sparse frame should not poison the
		// next estimate.
		return Result{Status: StatusInsufficientFeatures, FrameTime: frame.CapturedAt}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prevDesc == nil {
		e.prevDesc = desc
		e.prevKps = kps
		return Result{Status: StatusFirstFrame, FrameTime: frame.CapturedAt}, nil
	}

	matches, err := keypoints.MatchDescriptors(e.prevDesc, desc, e.cfg.Matching)
	if err != nil {
		return Result{}, errors.Wrap(err, "odometry cannot match features")
	}
	kept := matches.Indices
	if len(kept) > e.cfg.MaxMatches {
		kept = kept[:e.cfg.MaxMatches]
	}
	if len(kept) == 0 {
		// The frame itself is fine, it just shares nothing with the previous
		// one. Adopt it as the new reference and report no motion.
		e.prevDesc = desc
		e.prevKps = kps
		return Result{Status: StatusNoMatches, FrameTime: frame.CapturedAt}, nil
	}
	dus := make([]float64, len(kept))
	dvs := make([]float64, len(kept))
	for i, m := range kept {
		dus[i] = float64(kps[m.Idx2].X - e.prevKps[m.Idx1].X)
		dvs[i] = float64(kps[m.Idx2].Y - e.prevKps[m.Idx1].Y)
	}
	du, err := stats.Mean(dus)
	if err != nil {
		return Result{}, errors.Wrap(err, "odometry cannot average matches")
	}
	dv, err := stats.Mean(dvs)
	if err != nil {
		return Result{}, errors.Wrap(err, "odometry cannot average matches")
	}

	e.prevDesc = desc
	e.prevKps = kps

	e.logger.Debugf("odometry displacement du=%.2f dv=%.2f from %d matches", du, dv, len(kept))
	return Result{
		Status:    StatusOK,
		Matches:   len(kept),
		DU:        du,
		DV:        dv,
		DX:        du * e.cfg.WorldPerPixel,
		DY:        dv * e.cfg.WorldPerPixel,
		FrameTime: frame.CapturedAt,
	}, nil
}
