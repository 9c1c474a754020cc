package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

type fakeMetrics struct {
	cpu, mem, disk, temp float64
	err                  error
}

func (f *fakeMetrics) CPUPercent(ctx context.Context) (float64, error)    { return f.cpu, f.err }
func (f *fakeMetrics) MemoryPercent(ctx context.Context) (float64, error) { return f.mem, f.err }
func (f *fakeMetrics) DiskPercent(ctx context.Context) (float64, error)   { return f.disk, f.err }
func (f *fakeMetrics) Temperature(ctx context.Context) (float64, error)   { return f.temp, f.err }

func TestNotificationEviction(t *testing.T) {
	mc := clock.NewMock()
	a := NewAggregator(&fakeMetrics{}, mc, golog.NewTestLogger(t))
	for i := 1; i <= 15; i++ {
		a.Notify(fmt.Sprintf("event %d", i))
		mc.Add(time.Second)
	}
	status := a.Snapshot()
	test.That(t, len(status.Notifications), test.ShouldEqual, DefaultMaxNotifications)
	test.That(t, status.Notifications[0].Message, test.ShouldEqual, "event 6")
	test.That(t, status.Notifications[9].Message, test.ShouldEqual, "event 15")
	for i := 1; i < len(status.Notifications); i++ {
		test.That(t, status.Notifications[i].Timestamp.After(status.Notifications[i-1].Timestamp), test.ShouldBeTrue)
	}
}

func TestThresholdsAreLevelTriggered(t *testing.T) {
	metrics := &fakeMetrics{cpu: 95, mem: 30, disk: 50, temp: 85}
	a := NewAggregator(metrics, clock.NewMock(), golog.NewTestLogger(t))
	ctx := context.Background()

	// a breach re-notifies on every sample, not only on the transition
	a.Sample(ctx)
	a.Sample(ctx)
	status := a.Snapshot()
	msgs := make([]string, 0, len(status.Notifications))
	for _, n := range status.Notifications {
		msgs = append(msgs, n.Message)
	}
	test.That(t, msgs, test.ShouldResemble,
		[]string{"CPU overload", "High temperature", "CPU overload", "High temperature"})
	test.That(t, status.CPUPercent, test.ShouldEqual, 95)
	test.That(t, status.MemoryPercent, test.ShouldEqual, 30)
	test.That(t, status.DiskPercent, test.ShouldEqual, 50)
	test.That(t, status.Temperature, test.ShouldEqual, 85)

	// once clear, sampling stays quiet
	metrics.cpu, metrics.temp = 10, 40
	a.Sample(ctx)
	test.That(t, len(a.Snapshot().Notifications), test.ShouldEqual, 4)
}

func TestMemoryThreshold(t *testing.T) {
	a := NewAggregator(&fakeMetrics{mem: 95}, clock.NewMock(), golog.NewTestLogger(t))
	a.Sample(context.Background())
	status := a.Snapshot()
	test.That(t, len(status.Notifications), test.ShouldEqual, 1)
	test.That(t, status.Notifications[0].Message, test.ShouldEqual, "Memory low")
}

func TestUptimeAndFPS(t *testing.T) {
	mc := clock.NewMock()
	a := NewAggregator(&fakeMetrics{}, mc, golog.NewTestLogger(t))
	mc.Add(90 * time.Second)
	a.SetFPS(9.5)
	status := a.Snapshot()
	test.That(t, status.Uptime, test.ShouldEqual, 90*time.Second)
	test.That(t, status.FPS, test.ShouldEqual, 9.5)
}

func TestMetricsErrorsAreSoft(t *testing.T) {
	a := NewAggregator(&fakeMetrics{err: errors.New("no sensor")}, clock.NewMock(), golog.NewTestLogger(t))
	a.Sample(context.Background())
	status := a.Snapshot()
	test.That(t, status.CPUPercent, test.ShouldEqual, 0)
	test.That(t, len(status.Notifications), test.ShouldEqual, 0)
}
