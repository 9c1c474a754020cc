package telemetry

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// thermalZonePath is the sysfs fallback for boards whose temperature sensor
// is not reported through the platform sensor API.
const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// HostMetrics reads host measurements through gopsutil.
type HostMetrics struct {
	// DiskPath is the mount point measured for disk usage.
	DiskPath string
}

// NewHostMetrics returns a Metrics source over the root filesystem.
func NewHostMetrics() *HostMetrics {
	return &HostMetrics{DiskPath: "/"}
}

// CPUPercent returns the host-wide CPU utilization since the previous call.
func (hm *HostMetrics) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu utilization reported")
	}
	return percents[0], nil
}

// MemoryPercent returns the used physical memory percentage.
func (hm *HostMetrics) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// DiskPercent returns the used percentage of the configured mount point.
func (hm *HostMetrics) DiskPercent(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, hm.DiskPath)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Temperature returns the hottest temperature sensor reading. It tries the
// platform sensor API, then the thermal sysfs zone, then vcgencmd; if every
// source fails it reports 0. A missing temperature is a diagnostic gap, not
// an error worth propagating.
func (hm *HostMetrics) Temperature(ctx context.Context) (float64, error) {
	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil && len(temps) > 0 {
		max := 0.0
		for _, t := range temps {
			if t.Temperature > max {
				max = t.Temperature
			}
		}
		if max > 0 {
			return max, nil
		}
	}
	if temp, ok := readThermalZone(); ok {
		return temp, nil
	}
	if temp, ok := readVcgencmd(ctx); ok {
		return temp, nil
	}
	return 0, nil
}

func readThermalZone() (float64, bool) {
	data, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0, false
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, false
	}
	return milli / 1000., true
}

// readVcgencmd shells out to the Raspberry Pi firmware tool, whose output
// looks like "temp=48.3'C".
func readVcgencmd(ctx context.Context) (float64, bool) {
	out, err := exec.CommandContext(ctx, "vcgencmd", "measure_temp").Output()
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(out))
	s = strings.TrimPrefix(s, "temp=")
	s = strings.TrimSuffix(s, "'C")
	temp, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return temp, true
}
