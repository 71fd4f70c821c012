package mockserver

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Probe reports the backend's system_status string.
type Probe interface {
	Status() string
}

const (
	SystemOperational = "operational"
	SystemDegraded    = "degraded"
	SystemUnknown     = "unknown"
)

// SystemProbe derives system_status from host CPU and memory load.
type SystemProbe struct {
	threshold float64
	logger    *zap.Logger
}

// NewSystemProbe reports degraded once CPU or memory use reaches
// thresholdPercent.
func NewSystemProbe(thresholdPercent float64, logger *zap.Logger) *SystemProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	if thresholdPercent <= 0 {
		thresholdPercent = 85
	}
	return &SystemProbe{threshold: thresholdPercent, logger: logger.Named("probe")}
}

func (p *SystemProbe) Status() string {
	load, err := cpu.Percent(0, false)
	if err != nil || len(load) == 0 {
		p.logger.Debug("cpu sample unavailable", zap.Error(err))
		return SystemUnknown
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		p.logger.Debug("memory sample unavailable", zap.Error(err))
		return SystemUnknown
	}
	if load[0] >= p.threshold || vm.UsedPercent >= p.threshold {
		return SystemDegraded
	}
	return SystemOperational
}

// StaticProbe always reports the same status.
type StaticProbe string

func (s StaticProbe) Status() string { return string(s) }
