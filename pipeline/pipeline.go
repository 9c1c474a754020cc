// Package pipeline drives the perception components on independent periodic
// cadences and forwards their results to a publish boundary.
//
// The scheduler is the only place that touches wall-clock time; every other
// component is a passive transformer of its inputs. Each shared state
// container has exactly one guard and no task ever holds two of them, which
// rules out lock-ordering deadlock by construction.
package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/lobo-robotics/rover/camera"
	"github.com/lobo-robotics/rover/imu"
	"github.com/lobo-robotics/rover/mapping"
	"github.com/lobo-robotics/rover/telemetry"
	"github.com/lobo-robotics/rover/utils"
	"github.com/lobo-robotics/rover/vision/odometry"
)

// Topics of the published update streams. Updates across streams are
// independently timestamped and eventually consistent; there is no cross
// stream ordering guarantee.
const (
	TopicVideo  = "video"
	TopicSensor = "sensor"
	TopicStatus = "status"
	TopicMap    = "map"
)

// ErrOdometryBusy is returned when a frame is submitted while the previous
// odometry invocation is still active.
var ErrOdometryBusy = errors.New("odometry invocation still in progress")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("pipeline already started")

// A Publisher receives the fused update streams. Implementations must not
// block for long: they are called from the task loops.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Pipeline owns the perception components and their task loops.
type Pipeline struct {
	cfg    *Config
	clock  clock.Clock
	logger golog.Logger

	capturer  camera.Capturer
	imuReader imu.RawReader
	metrics   telemetry.Metrics
	publisher Publisher

	frames    *camera.Buffer
	estimator *imu.Estimator
	engine    *odometry.Engine
	mapper    *mapping.Builder
	status    *telemetry.Aggregator

	odometryBusy atomic.Bool
	frameCount   atomic.Int64
	fpsWindow    *utils.RollingAverage
	started      atomic.Bool

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// New assembles a pipeline from its external collaborators. A nil cfg or clk
// selects the defaults; a nil publisher drops the update streams.
func New(
	cfg *Config,
	capturer camera.Capturer,
	imuReader imu.RawReader,
	metrics telemetry.Metrics,
	publisher Publisher,
	clk clock.Clock,
	logger golog.Logger,
) (*Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	engine, err := odometry.NewEngine(nil, logger.Named("odometry"))
	if err != nil {
		return nil, err
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:        cfg,
		clock:      clk,
		logger:     logger,
		capturer:   capturer,
		imuReader:  imuReader,
		metrics:    metrics,
		publisher:  publisher,
		frames:     camera.NewBuffer(camera.DefaultBufferSize),
		estimator:  imu.NewEstimator(imu.DefaultCalibrationWindow, logger.Named("imu")),
		engine:     engine,
		mapper:     mapping.NewBuilder(nil, logger.Named("mapping")),
		status:     telemetry.NewAggregator(metrics, clk, logger.Named("telemetry")),
		fpsWindow:  utils.NewRollingAverage(cfg.FPSWindow),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// Start launches one goroutine per periodic task.
func (p *Pipeline) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.status.Notify("System started")

	p.startTask("camera", p.cfg.CameraPeriod, newCameraTick(p))
	p.startTask("inertial", p.cfg.InertialPeriod, newInertialTick(p))
	p.startTask("telemetry", p.cfg.TelemetryPeriod, p.telemetryTick)
	p.startTask("odometry", p.cfg.OdometryPeriod, p.odometryTick)
	p.startTask("map-publish", p.cfg.MapPublishPeriod, p.mapPublishTick)
	return nil
}

// Close stops the task loops, joining each with a bounded timeout and
// proceeding regardless of join success, then closes any collaborator that
// can be closed.
func (p *Pipeline) Close(ctx context.Context) error {
	p.cancelFunc()

	joined := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		p.activeBackgroundWorkers.Wait()
		close(joined)
	})
	timer := p.clock.Timer(p.cfg.JoinTimeout)
	defer timer.Stop()
	select {
	case <-joined:
	case <-timer.C:
		p.logger.Warnw("pipeline tasks did not stop before the join timeout", "timeout", p.cfg.JoinTimeout)
	case <-ctx.Done():
		p.logger.Warnw("pipeline close interrupted", "error", ctx.Err())
	}

	var err error
	if closer, ok := p.capturer.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if closer, ok := p.imuReader.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

// publish forwards a payload if a publisher is configured.
func (p *Pipeline) publish(topic string, payload interface{}) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(topic, payload)
}

// LatestFrame returns the most recent encoded camera frame, if any.
func (p *Pipeline) LatestFrame() (camera.Frame, bool) {
	return p.frames.Latest()
}

// SensorSnapshot returns the current inertial estimate.
func (p *Pipeline) SensorSnapshot() imu.Snapshot {
	return p.estimator.Snapshot()
}

// MapSnapshot returns the current map state with a lazily encoded raster.
func (p *Pipeline) MapSnapshot() (mapping.Snapshot, error) {
	return p.mapper.Snapshot()
}

// StatusSnapshot returns the current system telemetry.
func (p *Pipeline) StatusSnapshot() telemetry.Status {
	return p.status.Snapshot()
}

// RequestCalibration switches the attitude estimator into calibration. A
// request during an active calibration fails with
// imu.ErrCalibrationInProgress.
func (p *Pipeline) RequestCalibration() error {
	if err := p.estimator.RequestCalibration(); err != nil {
		return err
	}
	p.status.Notify("IMU calibration started")
	return nil
}

// SubmitFrameForOdometry runs one odometry invocation on the given frame,
// applying the result to the map. It shares the non-reentrancy guard with the
// periodic odometry trigger and fails with ErrOdometryBusy if an invocation
// is active.
func (p *Pipeline) SubmitFrameForOdometry(frame camera.Frame) (odometry.Result, error) {
	if !p.odometryBusy.CompareAndSwap(false, true) {
		return odometry.Result{}, ErrOdometryBusy
	}
	defer p.odometryBusy.Store(false)
	return p.processOdometry(frame)
}
