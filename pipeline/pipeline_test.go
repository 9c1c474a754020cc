package pipeline

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"github.com/lobo-robotics/rover/camera"
	"github.com/lobo-robotics/rover/imu"
	"github.com/lobo-robotics/rover/rimage"
	"github.com/lobo-robotics/rover/telemetry"
	"github.com/lobo-robotics/rover/vision/odometry"
)

func testConfig() *Config {
	return &Config{
		CameraPeriod:     5 * time.Millisecond,
		InertialPeriod:   5 * time.Millisecond,
		TelemetryPeriod:  20 * time.Millisecond,
		OdometryPeriod:   10 * time.Millisecond,
		MapPublishPeriod: 20 * time.Millisecond,
		IdleWait:         time.Millisecond,
		JoinTimeout:      time.Second,
		ReinitAfter:      3,
		UnavailableAfter: 2,
		FPSWindow:        2,
	}
}

func flatFrameData(t *testing.T) []byte {
	t.Helper()
	data, err := rimage.EncodePNG(image.NewGray(image.Rect(0, 0, 64, 64)))
	test.That(t, err, test.ShouldBeNil)
	return data
}

type fakeCapturer struct {
	mu            sync.Mutex
	data          []byte
	err           error
	reinitialized int
	closed        bool
}

func (f *fakeCapturer) CaptureFrame(ctx context.Context) (camera.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return camera.Frame{}, f.err
	}
	return camera.Frame{Data: f.data, CapturedAt: time.Now()}, nil
}

func (f *fakeCapturer) Reinitialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinitialized++
	f.err = nil
	return nil
}

func (f *fakeCapturer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapturer) stats() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reinitialized, f.closed
}

type fakeIMU struct {
	mu      sync.Mutex
	reading imu.RawReading
	err     error
}

func (f *fakeIMU) ReadRaw(ctx context.Context) (imu.RawReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reading, f.err
}

type fakeMetrics struct{}

func (fakeMetrics) CPUPercent(ctx context.Context) (float64, error)    { return 12, nil }
func (fakeMetrics) MemoryPercent(ctx context.Context) (float64, error) { return 34, nil }
func (fakeMetrics) DiskPercent(ctx context.Context) (float64, error)   { return 56, nil }
func (fakeMetrics) Temperature(ctx context.Context) (float64, error)   { return 42, nil }

type recordingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{counts: map[string]int{}}
}

func (p *recordingPublisher) Publish(topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[topic]++
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[topic]
}

func notificationMessages(status telemetry.Status) []string {
	msgs := make([]string, 0, len(status.Notifications))
	for _, n := range status.Notifications {
		msgs = append(msgs, n.Message)
	}
	return msgs
}

func TestPipelineLifecycle(t *testing.T) {
	logger := golog.NewTestLogger(t)
	capturer := &fakeCapturer{data: flatFrameData(t)}
	imuDev := &fakeIMU{reading: imu.RawReading{AccelZ: 16384, GyroZ: 131}}
	publisher := newRecordingPublisher()

	p, err := New(testConfig(), capturer, imuDev, fakeMetrics{}, publisher, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, p.Start(), test.ShouldBeNil)
	test.That(t, p.Start(), test.ShouldBeError, ErrAlreadyStarted)

	time.Sleep(200 * time.Millisecond)

	test.That(t, publisher.count(TopicVideo), test.ShouldBeGreaterThan, 0)
	test.That(t, publisher.count(TopicSensor), test.ShouldBeGreaterThan, 0)
	test.That(t, publisher.count(TopicStatus), test.ShouldBeGreaterThan, 0)
	test.That(t, publisher.count(TopicMap), test.ShouldBeGreaterThan, 0)

	frame, ok := p.LatestFrame()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(frame.Data), test.ShouldBeGreaterThan, 0)
	test.That(t, p.frames.Len(), test.ShouldBeLessThanOrEqualTo, camera.DefaultBufferSize)

	sensor := p.SensorSnapshot()
	test.That(t, sensor.Acceleration.Z, test.ShouldAlmostEqual, 1, 1e-6)
	// 1 deg/s of yaw rate accumulates over the run
	test.That(t, sensor.Orientation.Yaw, test.ShouldBeGreaterThan, 0)

	status := p.StatusSnapshot()
	test.That(t, notificationMessages(status), test.ShouldContain, "System started")
	test.That(t, status.CPUPercent, test.ShouldEqual, 12)
	test.That(t, status.FPS, test.ShouldBeGreaterThan, 0)

	mapSnap, err := p.MapSnapshot()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(mapSnap.RasterPNG), test.ShouldBeGreaterThan, 0)

	test.That(t, p.Close(context.Background()), test.ShouldBeNil)
	_, closed := capturer.stats()
	test.That(t, closed, test.ShouldBeTrue)
}

func TestPipelineCameraRecovery(t *testing.T) {
	logger := golog.NewTestLogger(t)
	capturer := &fakeCapturer{data: flatFrameData(t), err: errors.New("device wedged")}
	imuDev := &fakeIMU{reading: imu.RawReading{AccelZ: 16384}}

	p, err := New(testConfig(), capturer, imuDev, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Start(), test.ShouldBeNil)

	time.Sleep(150 * time.Millisecond)
	test.That(t, p.Close(context.Background()), test.ShouldBeNil)

	reinits, _ := capturer.stats()
	test.That(t, reinits, test.ShouldBeGreaterThanOrEqualTo, 1)
	// frames flow again after reinitialization cleared the fault
	_, ok := p.LatestFrame()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, notificationMessages(p.StatusSnapshot()), test.ShouldContain, "camera reinitialized")
}

func TestPipelineIMUUnavailableNotification(t *testing.T) {
	logger := golog.NewTestLogger(t)
	capturer := &fakeCapturer{data: flatFrameData(t)}
	imuDev := &fakeIMU{err: errors.New("i2c timeout")}
	cfg := testConfig()
	cfg.ReinitAfter = 1000

	p, err := New(cfg, capturer, imuDev, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Start(), test.ShouldBeNil)

	time.Sleep(100 * time.Millisecond)
	test.That(t, p.Close(context.Background()), test.ShouldBeNil)

	// the notification is raised once at the threshold, not on every failure
	msgs := notificationMessages(p.StatusSnapshot())
	seen := 0
	for _, m := range msgs {
		if m == "IMU unavailable" {
			seen++
		}
	}
	test.That(t, seen, test.ShouldEqual, 1)
}

func TestPipelineCalibrationRequests(t *testing.T) {
	logger := golog.NewTestLogger(t)
	p, err := New(testConfig(), &fakeCapturer{data: flatFrameData(t)},
		&fakeIMU{reading: imu.RawReading{AccelZ: 16384}}, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, p.RequestCalibration(), test.ShouldBeNil)
	test.That(t, p.RequestCalibration(), test.ShouldBeError, imu.ErrCalibrationInProgress)
	test.That(t, notificationMessages(p.StatusSnapshot()), test.ShouldContain, "IMU calibration started")
}

func TestPipelineOdometrySubmission(t *testing.T) {
	logger := golog.NewTestLogger(t)
	p, err := New(testConfig(), &fakeCapturer{data: flatFrameData(t)},
		&fakeIMU{}, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	frame := camera.Frame{Data: flatFrameData(t), CapturedAt: time.Now()}

	p.odometryBusy.Store(true)
	_, err = p.SubmitFrameForOdometry(frame)
	test.That(t, err, test.ShouldBeError, ErrOdometryBusy)
	p.odometryBusy.Store(false)

	result, err := p.SubmitFrameForOdometry(frame)
	test.That(t, err, test.ShouldBeNil)
	// a featureless frame is an explicit no-update
	test.That(t, result.Status, test.ShouldEqual, odometry.StatusInsufficientFeatures)
	// the guard is released for the next submission
	test.That(t, p.odometryBusy.Load(), test.ShouldBeFalse)
}

func TestTaskOverrunIsLoggedNotAborted(t *testing.T) {
	logger, observed := golog.NewObservedTestLogger(t)
	cfg := testConfig()

	p, err := New(cfg, &fakeCapturer{data: flatFrameData(t)}, &fakeIMU{}, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	var calls atomic.Int32
	p.startTask("slow", 5*time.Millisecond, func(ctx context.Context) {
		calls.Inc()
		time.Sleep(20 * time.Millisecond)
	})

	time.Sleep(150 * time.Millisecond)
	test.That(t, p.Close(context.Background()), test.ShouldBeNil)

	// the slow body keeps getting re-invoked and every overrun is logged
	test.That(t, calls.Load(), test.ShouldBeGreaterThanOrEqualTo, 2)
	test.That(t, observed.FilterMessageSnippet("overran").Len(), test.ShouldBeGreaterThan, 0)
}

func TestFPSIsWindowed(t *testing.T) {
	cfg := testConfig()
	cfg.TelemetryPeriod = time.Second
	cfg.FPSWindow = 4
	p, err := New(cfg, &fakeCapturer{data: flatFrameData(t)}, &fakeIMU{}, fakeMetrics{}, nil, nil, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// one burst of 8 frames is averaged over the whole window, not
	// reported as the instantaneous rate
	p.frameCount.Store(8)
	p.telemetryTick(context.Background())
	test.That(t, p.StatusSnapshot().FPS, test.ShouldEqual, 2)

	// the burst stays in the window through three quiet ticks
	for i := 0; i < 3; i++ {
		p.telemetryTick(context.Background())
	}
	test.That(t, p.StatusSnapshot().FPS, test.ShouldEqual, 2)

	// then it ages out
	p.telemetryTick(context.Background())
	test.That(t, p.StatusSnapshot().FPS, test.ShouldEqual, 0)
}

func TestTaskPanicIsContained(t *testing.T) {
	logger, observed := golog.NewObservedTestLogger(t)
	p, err := New(testConfig(), &fakeCapturer{data: flatFrameData(t)}, &fakeIMU{}, fakeMetrics{}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	var calls atomic.Int32
	p.startTask("panicky", 5*time.Millisecond, func(ctx context.Context) {
		calls.Inc()
		panic("tick blew up")
	})

	time.Sleep(100 * time.Millisecond)
	test.That(t, p.Close(context.Background()), test.ShouldBeNil)

	test.That(t, calls.Load(), test.ShouldBeGreaterThanOrEqualTo, 2)
	test.That(t, observed.FilterMessageSnippet("panicked").Len(), test.ShouldBeGreaterThan, 0)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate("pipeline"), test.ShouldBeNil)

	bad := DefaultConfig()
	bad.CameraPeriod = 0
	test.That(t, bad.Validate("pipeline"), test.ShouldNotBeNil)

	bad = DefaultConfig()
	bad.ReinitAfter = 0
	test.That(t, bad.Validate("pipeline"), test.ShouldNotBeNil)

	bad = DefaultConfig()
	bad.UnavailableAfter = 0
	test.That(t, bad.Validate("pipeline"), test.ShouldNotBeNil)

	bad = DefaultConfig()
	bad.FPSWindow = 0
	test.That(t, bad.Validate("pipeline"), test.ShouldNotBeNil)
}
