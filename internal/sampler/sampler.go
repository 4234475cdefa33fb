// Package sampler reports the controller process's own CPU and memory
// utilization, published into the MetricsSnapshot's cpu_percent and
// memory_percent fields.
package sampler

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Sampler reads the current process's resource usage.
type Sampler struct {
	proc   *process.Process
	logger *zap.Logger
}

// New builds a Sampler bound to the running process. An error here means
// gopsutil could not resolve /proc for this PID. There is no zero-reading
// fallback Sampler; cmd/scaler aborts startup on this error.
func New(logger *zap.Logger) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{proc: proc, logger: logger}, nil
}

// Usage is one CPU/memory reading.
type Usage struct {
	CPUPercent    float64
	MemoryPercent float64
}

// Sample reads current CPU and memory percentages. Errors are logged and
// reported as zero, matching the broker probe's tolerate-and-continue
// posture: a sampling failure must never stall the control loop.
func (s *Sampler) Sample() Usage {
	cpuPct, err := s.proc.CPUPercent()
	if err != nil {
		s.logger.Warn("failed to sample cpu usage", zap.Error(err))
		cpuPct = 0
	}

	memPct, err := s.proc.MemoryPercent()
	if err != nil {
		s.logger.Warn("failed to sample memory usage", zap.Error(err))
		memPct = 0
	}

	return Usage{CPUPercent: cpuPct, MemoryPercent: float64(memPct)}
}
