package pipeline

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Default task cadences.
const (
	DefaultCameraPeriod     = 100 * time.Millisecond
	DefaultInertialPeriod   = 100 * time.Millisecond
	DefaultTelemetryPeriod  = time.Second
	DefaultOdometryPeriod   = 500 * time.Millisecond
	DefaultMapPublishPeriod = 2 * time.Second

	// DefaultIdleWait caps the busy-poll rate of every task loop.
	DefaultIdleWait = 20 * time.Millisecond
	// DefaultJoinTimeout bounds how long Close waits for the task goroutines.
	DefaultJoinTimeout = 2 * time.Second

	// DefaultReinitAfter is how many consecutive device failures trigger a
	// reinitialization attempt.
	DefaultReinitAfter = 10
	// DefaultUnavailableAfter is how many consecutive inertial read failures
	// raise the sensor-unavailable notification.
	DefaultUnavailableAfter = 3

	// DefaultFPSWindow is how many telemetry ticks the reported frame rate
	// is averaged over.
	DefaultFPSWindow = 5
)

// Config holds the scheduler cadences and failure thresholds.
type Config struct {
	CameraPeriod     time.Duration `json:"camera_period"`
	InertialPeriod   time.Duration `json:"inertial_period"`
	TelemetryPeriod  time.Duration `json:"telemetry_period"`
	OdometryPeriod   time.Duration `json:"odometry_period"`
	MapPublishPeriod time.Duration `json:"map_publish_period"`

	IdleWait    time.Duration `json:"idle_wait"`
	JoinTimeout time.Duration `json:"join_timeout"`

	ReinitAfter      int `json:"reinit_after"`
	UnavailableAfter int `json:"unavailable_after"`

	FPSWindow int `json:"fps_window"`
}

// DefaultConfig returns the cadences of the perception pipeline.
func DefaultConfig() *Config {
	return &Config{
		CameraPeriod:     DefaultCameraPeriod,
		InertialPeriod:   DefaultInertialPeriod,
		TelemetryPeriod:  DefaultTelemetryPeriod,
		OdometryPeriod:   DefaultOdometryPeriod,
		MapPublishPeriod: DefaultMapPublishPeriod,
		IdleWait:         DefaultIdleWait,
		JoinTimeout:      DefaultJoinTimeout,
		ReinitAfter:      DefaultReinitAfter,
		UnavailableAfter: DefaultUnavailableAfter,
		FPSWindow:        DefaultFPSWindow,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	for name, period := range map[string]time.Duration{
		"camera_period":      cfg.CameraPeriod,
		"inertial_period":    cfg.InertialPeriod,
		"telemetry_period":   cfg.TelemetryPeriod,
		"odometry_period":    cfg.OdometryPeriod,
		"map_publish_period": cfg.MapPublishPeriod,
		"idle_wait":          cfg.IdleWait,
		"join_timeout":       cfg.JoinTimeout,
	} {
		if period <= 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s should be > 0", name))
		}
	}
	if cfg.ReinitAfter < 1 {
		return goutils.NewConfigValidationError(path, errors.New("reinit_after should be >= 1"))
	}
	if cfg.UnavailableAfter < 1 {
		return goutils.NewConfigValidationError(path, errors.New("unavailable_after should be >= 1"))
	}
	if cfg.FPSWindow < 1 {
		return goutils.NewConfigValidationError(path, errors.New("fps_window should be >= 1"))
	}
	return nil
}
