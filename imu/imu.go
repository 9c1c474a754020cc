// Package imu fuses raw 6-axis inertial samples into an attitude estimate
// with a one-shot bias calibration, modeled on an MPU-6050 in its default
// configuration (±2g accelerometer range, ±250°/s gyroscope range).
package imu

import (
	"context"

	"github.com/golang/geo/r3"
)

// Scale factors for the default sensor configuration.
const (
	// AccelCountsPerG converts raw accelerometer counts to g (±2g range).
	AccelCountsPerG = 16384.0
	// GyroCountsPerDegS converts raw gyroscope counts to °/s (±250°/s range).
	GyroCountsPerDegS = 131.0
)

// A RawReading is one uncalibrated 6-axis sample in raw sensor counts.
type RawReading struct {
	AccelX, AccelY, AccelZ int16
	GyroX, GyroY, GyroZ    int16
}

// A RawReader reads one raw sample from the inertial sensor. A read may block
// for bounded device driver time (one I2C transaction).
type RawReader interface {
	ReadRaw(ctx context.Context) (RawReading, error)
}

// A Reinitializer can re-open its underlying device after repeated failures.
type Reinitializer interface {
	Reinitialize(ctx context.Context) error
}

// Bias is the per-axis offset, in raw counts, subtracted from every sample
// once calibration has completed.
type Bias struct {
	Accel r3.Vector
	Gyro  r3.Vector
}

// Orientation is an attitude in degrees. Yaw is an open integral with no
// absolute reference and drifts over time; that is an accepted property of
// this estimator, not a defect.
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Snapshot is a copy of the estimator state at one instant.
type Snapshot struct {
	// Acceleration is in g.
	Acceleration r3.Vector
	// AngularVelocity is in °/s.
	AngularVelocity r3.Vector
	Orientation     Orientation
	Calibrated      bool
}
