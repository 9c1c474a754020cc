package imu

import (
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/lobo-robotics/rover/utils"
)

// DefaultCalibrationWindow is how many consecutive samples a calibration
// collects before freezing the bias.
const DefaultCalibrationWindow = 50

// ErrCalibrationInProgress is returned when a calibration is requested while
// one is already collecting its sample window.
var ErrCalibrationInProgress = errors.New("imu calibration already in progress")

type mode int

const (
	modeUncalibrated mode = iota
	modeCalibrating
	modeCalibrated
)

// Estimator fuses raw samples into roll/pitch/yaw. Roll and pitch come from
// the accelerometer, yaw is the pure integral of the z gyroscope rate; there
// is no magnetometer correction.
//
// Calibration is folded into the same per-sample update path that feeds
// fusion, so the sample window is coherent by construction: bias is zero
// until the first calibration completes, then frozen until recalibration is
// explicitly requested.
type Estimator struct {
	mu         sync.Mutex
	mode       mode
	bias       Bias
	window     []RawReading
	windowSize int

	accel       r3.Vector
	gyro        r3.Vector
	orientation Orientation

	logger golog.Logger
}

// NewEstimator returns an estimator that calibrates over windowSize samples.
func NewEstimator(windowSize int, logger golog.Logger) *Estimator {
	if windowSize <= 0 {
		windowSize = DefaultCalibrationWindow
	}
	return &Estimator{windowSize: windowSize, logger: logger}
}

// RequestCalibration switches the estimator into its calibrating state. The
// next windowSize samples fed to Update form the calibration window. A
// request made while a calibration is collecting is rejected, never
// interleaved.
func (e *Estimator) RequestCalibration() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == modeCalibrating {
		return ErrCalibrationInProgress
	}
	e.mode = modeCalibrating
	e.window = make([]RawReading, 0, e.windowSize)
	e.logger.Infof("imu calibration started, collecting %d samples", e.windowSize)
	return nil
}

// Calibrated reports whether a calibration has completed and its bias is
// active.
func (e *Estimator) Calibrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode == modeCalibrated
}

// Bias returns the active calibration bias (zero before the first
// calibration completes).
func (e *Estimator) Bias() Bias {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bias
}

// Update folds one raw sample into the estimate. dt is the time since the
// previous sample and scales the yaw integration. It returns true when this
// sample completed a calibration window.
func (e *Estimator) Update(raw RawReading, dt time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	completed := false
	if e.mode == modeCalibrating {
		e.window = append(e.window, raw)
		if len(e.window) == e.windowSize {
			e.bias = computeBias(e.window)
			e.window = nil
			e.mode = modeCalibrated
			completed = true
			e.logger.Infof("imu calibration complete: accel bias (%.1f, %.1f, %.1f), gyro bias (%.1f, %.1f, %.1f)",
				e.bias.Accel.X, e.bias.Accel.Y, e.bias.Accel.Z,
				e.bias.Gyro.X, e.bias.Gyro.Y, e.bias.Gyro.Z)
		}
	}

	// Bias is applied in raw counts, then converted to physical units.
	ax := (float64(raw.AccelX) - e.bias.Accel.X) / AccelCountsPerG
	ay := (float64(raw.AccelY) - e.bias.Accel.Y) / AccelCountsPerG
	az := (float64(raw.AccelZ) - e.bias.Accel.Z) / AccelCountsPerG
	gx := (float64(raw.GyroX) - e.bias.Gyro.X) / GyroCountsPerDegS
	gy := (float64(raw.GyroY) - e.bias.Gyro.Y) / GyroCountsPerDegS
	gz := (float64(raw.GyroZ) - e.bias.Gyro.Z) / GyroCountsPerDegS

	e.accel = r3.Vector{X: ax, Y: ay, Z: az}
	e.gyro = r3.Vector{X: gx, Y: gy, Z: gz}

	e.orientation.Roll = utils.RadToDeg(math.Atan2(ay, az))
	e.orientation.Pitch = utils.RadToDeg(math.Atan2(-ax, math.Sqrt(ay*ay+az*az)))
	// Pure integration: yaw drifts without an absolute reference.
	e.orientation.Yaw += gz * dt.Seconds()

	return completed
}

// Snapshot returns a copy of the current estimator state.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Acceleration:    e.accel,
		AngularVelocity: e.gyro,
		Orientation:     e.orientation,
		Calibrated:      e.mode == modeCalibrated,
	}
}

func computeBias(window []RawReading) Bias {
	n := len(window)
	axs := make([]float64, n)
	ays := make([]float64, n)
	azs := make([]float64, n)
	gxs := make([]float64, n)
	gys := make([]float64, n)
	gzs := make([]float64, n)
	for i, s := range window {
		axs[i] = float64(s.AccelX)
		ays[i] = float64(s.AccelY)
		azs[i] = float64(s.AccelZ)
		gxs[i] = float64(s.GyroX)
		gys[i] = float64(s.GyroY)
		gzs[i] = float64(s.GyroZ)
	}
	mean := func(vals []float64) float64 {
		m, err := stats.Mean(vals)
		if err != nil {
			return 0
		}
		return m
	}
	return Bias{
		Accel: r3.Vector{
			X: mean(axs),
			Y: mean(ays),
			// The z axis rests at 1g; remove gravity so only the offset is
			// treated as bias.
			Z: mean(azs) - AccelCountsPerG,
		},
		Gyro: r3.Vector{X: mean(gxs), Y: mean(gys), Z: mean(gzs)},
	}
}
