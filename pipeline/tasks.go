package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/lobo-robotics/rover/camera"
	"github.com/lobo-robotics/rover/vision/odometry"
)

// startTask launches a goroutine that runs body every period. Elapsed time is
// measured against the task's own last-run stamp, so a slow tick delays only
// that task's next tick and the cadence does not drift with sleep jitter. A
// body that outlives its period is logged as an overrun but never aborted,
// and it still runs again on its next natural tick.
func (p *Pipeline) startTask(name string, period time.Duration, body func(ctx context.Context)) {
	p.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer p.activeBackgroundWorkers.Done()
		var lastRun time.Time
		for {
			select {
			case <-p.cancelCtx.Done():
				return
			default:
			}
			now := p.clock.Now()
			if lastRun.IsZero() || now.Sub(lastRun) >= period {
				lastRun = now
				p.runProtected(name, body)
				if elapsed := p.clock.Since(now); elapsed > period {
					p.logger.Warnw("task overran its period",
						"task", name, "elapsed", elapsed, "period", period)
				}
			}
			timer := p.clock.Timer(p.cfg.IdleWait)
			select {
			case <-p.cancelCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	})
}

// runProtected executes one tick, surviving a panicking body: no single-tick
// failure is fatal to the pipeline.
func (p *Pipeline) runProtected(name string, body func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("task tick panicked, continuing on next cycle",
				"task", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	body(p.cancelCtx)
}

// newCameraTick captures and buffers one encoded frame per tick, counting
// consecutive failures so a wedged device gets reinitialized.
func newCameraTick(p *Pipeline) func(ctx context.Context) {
	consecutiveFailures := 0
	return func(ctx context.Context) {
		frame, err := p.capturer.CaptureFrame(ctx)
		if err != nil {
			if errors.Is(err, camera.ErrNoFrame) {
				return
			}
			consecutiveFailures++
			p.logger.Warnw("cannot capture frame", "error", err, "consecutive", consecutiveFailures)
			if consecutiveFailures >= p.cfg.ReinitAfter {
				consecutiveFailures = 0
				p.reinitialize(ctx, "camera", p.capturer)
			}
			return
		}
		consecutiveFailures = 0
		p.frames.Push(frame)
		p.frameCount.Inc()
		p.publish(TopicVideo, frame)
	}
}

// newInertialTick reads one raw sample per tick and folds it into the
// attitude estimate. Read errors are soft: the tick is skipped, three
// consecutive failures raise a distinct sensor-unavailable notification and
// ten trigger a reinitialization attempt.
func newInertialTick(p *Pipeline) func(ctx context.Context) {
	consecutiveFailures := 0
	var lastSample time.Time
	return func(ctx context.Context) {
		raw, err := p.imuReader.ReadRaw(ctx)
		if err != nil {
			consecutiveFailures++
			p.logger.Warnw("cannot read inertial sample", "error", err, "consecutive", consecutiveFailures)
			if consecutiveFailures == p.cfg.UnavailableAfter {
				p.status.Notify("IMU unavailable")
			}
			if consecutiveFailures >= p.cfg.ReinitAfter {
				consecutiveFailures = 0
				p.reinitialize(ctx, "imu", p.imuReader)
			}
			return
		}
		consecutiveFailures = 0

		now := p.clock.Now()
		dt := p.cfg.InertialPeriod
		if !lastSample.IsZero() {
			dt = now.Sub(lastSample)
		}
		lastSample = now

		if completed := p.estimator.Update(raw, dt); completed {
			p.status.Notify("IMU calibration complete")
		}
		snapshot := p.estimator.Snapshot()
		p.mapper.SetOrientation(snapshot.Orientation)
		p.publish(TopicSensor, snapshot)
	}
}

// telemetryTick samples host metrics, folds in the measured frame rate and
// publishes the status stream. The frame rate is a windowed mean over the
// last few ticks so a single slow capture does not spike the reading.
func (p *Pipeline) telemetryTick(ctx context.Context) {
	p.fpsWindow.Add(int(p.frameCount.Swap(0)))
	p.status.SetFPS(float64(p.fpsWindow.Average()) / p.cfg.TelemetryPeriod.Seconds())
	p.status.Sample(ctx)
	p.publish(TopicStatus, p.status.Snapshot())
}

// odometryTick opportunistically runs odometry on the freshest buffered
// frame. The trigger is non-reentrant: if the previous invocation is still
// active the tick is skipped, not queued.
func (p *Pipeline) odometryTick(ctx context.Context) {
	if !p.odometryBusy.CompareAndSwap(false, true) {
		p.logger.Debug("previous odometry invocation still active, skipping tick")
		return
	}
	defer p.odometryBusy.Store(false)

	frame, ok := p.frames.Latest()
	if !ok {
		return
	}
	if _, err := p.processOdometry(frame); err != nil {
		p.logger.Warnw("odometry failed", "error", err)
	}
}

// processOdometry runs the engine on one frame and applies any resulting
// displacement to the map. Callers must hold the odometry busy flag.
func (p *Pipeline) processOdometry(frame camera.Frame) (odometry.Result, error) {
	result, err := p.engine.Process(frame)
	if err != nil {
		return odometry.Result{}, err
	}
	switch result.Status {
	case odometry.StatusOK:
		p.mapper.ApplyDisplacement(result.DX, result.DY)
	case odometry.StatusFirstFrame:
		p.logger.Debug("odometry stored first frame, no motion yet")
	case odometry.StatusInsufficientFeatures:
		p.logger.Debug("insufficient features for odometry, pose unchanged")
	case odometry.StatusNoMatches:
		p.logger.Debug("no surviving feature matches, pose unchanged")
	}
	return result, nil
}

// mapPublishTick publishes the current map snapshot; the raster encode cost
// is paid here, at the publish cadence.
func (p *Pipeline) mapPublishTick(ctx context.Context) {
	snapshot, err := p.mapper.Snapshot()
	if err != nil {
		p.logger.Warnw("cannot snapshot map", "error", err)
		return
	}
	p.publish(TopicMap, snapshot)
}

// reinitialize attempts to re-open a device that keeps failing, if the
// device supports it.
func (p *Pipeline) reinitialize(ctx context.Context, name string, device interface{}) {
	type reinitializer interface {
		Reinitialize(ctx context.Context) error
	}
	r, ok := device.(reinitializer)
	if !ok {
		return
	}
	p.logger.Infow("reinitializing device after repeated failures", "device", name)
	if err := r.Reinitialize(ctx); err != nil {
		p.logger.Warnw("device reinitialization failed", "device", name, "error", err)
		return
	}
	p.status.Notify(name + " reinitialized")
}
