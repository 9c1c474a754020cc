// Package telemetry samples host metrics and keeps a bounded notification
// history for the dashboard.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
)

// DefaultMaxNotifications caps the notification FIFO.
const DefaultMaxNotifications = 10

// Threshold values above which a notification is raised on every sample.
const (
	cpuThreshold  = 90.0
	memThreshold  = 90.0
	tempThreshold = 80.0
)

// A Notification is one entry of the bounded history.
type Notification struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a copy of the aggregator state at one instant.
type Status struct {
	CPUPercent    float64        `json:"cpu_percent"`
	MemoryPercent float64        `json:"memory_percent"`
	DiskPercent   float64        `json:"disk_percent"`
	Temperature   float64        `json:"temperature"`
	Uptime        time.Duration  `json:"uptime"`
	FPS           float64        `json:"fps"`
	Notifications []Notification `json:"notifications"`
}

// Metrics supplies the host measurements. Implementations must treat every
// reading as best effort: a diagnostic must never take the pipeline down.
type Metrics interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context) (float64, error)
	// Temperature returns 0 when no sensor source is available.
	Temperature(ctx context.Context) (float64, error)
}

// Aggregator samples metrics and tracks notifications.
type Aggregator struct {
	mu               sync.Mutex
	metrics          Metrics
	clock            clock.Clock
	startedAt        time.Time
	cpu, mem         float64
	disk, temp       float64
	fps              float64
	notifications    []Notification
	maxNotifications int
	logger           golog.Logger
}

// NewAggregator returns an aggregator over the given metrics source.
func NewAggregator(metrics Metrics, clk clock.Clock, logger golog.Logger) *Aggregator {
	if clk == nil {
		clk = clock.New()
	}
	return &Aggregator{
		metrics:          metrics,
		clock:            clk,
		startedAt:        clk.Now(),
		maxNotifications: DefaultMaxNotifications,
		logger:           logger,
	}
}

// Notify appends a notification, evicting the oldest beyond capacity.
func (a *Aggregator) Notify(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifications = append(a.notifications, Notification{
		Message:   message,
		Timestamp: a.clock.Now(),
	})
	for len(a.notifications) > a.maxNotifications {
		a.notifications = a.notifications[1:]
	}
	a.logger.Infof("notification: %s", message)
}

// SetFPS stores the camera frame rate measured by the pipeline.
func (a *Aggregator) SetFPS(fps float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fps = fps
}

// Sample queries the metrics source and evaluates the threshold rules. The
// rules are level triggered: a breach re-notifies on every sample for which
// it still holds, not only on the transition.
func (a *Aggregator) Sample(ctx context.Context) {
	cpu, err := a.metrics.CPUPercent(ctx)
	if err != nil {
		a.logger.Debugw("cannot read cpu percent", "error", err)
	}
	mem, err := a.metrics.MemoryPercent(ctx)
	if err != nil {
		a.logger.Debugw("cannot read memory percent", "error", err)
	}
	disk, err := a.metrics.DiskPercent(ctx)
	if err != nil {
		a.logger.Debugw("cannot read disk percent", "error", err)
	}
	temp, err := a.metrics.Temperature(ctx)
	if err != nil {
		a.logger.Debugw("cannot read temperature", "error", err)
	}

	a.mu.Lock()
	a.cpu, a.mem, a.disk, a.temp = cpu, mem, disk, temp
	a.mu.Unlock()

	if cpu > cpuThreshold {
		a.Notify("CPU overload")
	}
	if mem > memThreshold {
		a.Notify("Memory low")
	}
	if temp > tempThreshold {
		a.Notify("High temperature")
	}
}

// Snapshot returns a copy of the current status.
func (a *Aggregator) Snapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	notifications := make([]Notification, len(a.notifications))
	copy(notifications, a.notifications)
	return Status{
		CPUPercent:    a.cpu,
		MemoryPercent: a.mem,
		DiskPercent:   a.disk,
		Temperature:   a.temp,
		Uptime:        a.clock.Since(a.startedAt),
		FPS:           a.fps,
		Notifications: notifications,
	}
}
