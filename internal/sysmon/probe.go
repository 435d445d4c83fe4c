// Package sysmon samples the load generator's own host so that a run
// starved of CPU can be told apart from a slow target.
package sysmon

import (
	"context"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Series recorded by the probe.
const (
	CPUPercent = "loadgen_cpu_percent"
	MemPercent = "loadgen_mem_percent"
	RSSMB      = "loadgen_rss_mb"
	Goroutines = "loadgen_goroutines"
)

// DefaultCPUWarnPercent is the host CPU level above which results are
// flagged as unreliable.
const DefaultCPUWarnPercent = 90.0

// Sample is one reading of the load generator's host.
type Sample struct {
	Timestamp  time.Time
	CPUPercent float64
	MemPercent float64
	RSSBytes   uint64
	Goroutines int
}

// Sampler takes one reading.
type Sampler func(ctx context.Context) (Sample, error)

// Recorder receives probe readings as trend samples.
type Recorder interface {
	ObserveTrend(name string, value float64) bool
}

// HostSampler reads host CPU and memory and this process's RSS.
func HostSampler() Sampler {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return func(ctx context.Context) (Sample, error) {
		sample := Sample{Timestamp: time.Now(), Goroutines: runtime.NumGoroutine()}

		cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return sample, err
		}
		if len(cpuPercent) > 0 {
			sample.CPUPercent = cpuPercent[0]
		}

		if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil && memInfo != nil {
			sample.MemPercent = memInfo.UsedPercent
		}

		if proc != nil {
			if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
				sample.RSSBytes = memInfo.RSS
			}
		}
		return sample, nil
	}
}

// Options configures a Probe.
type Options struct {
	// Interval between readings (default 1s)
	Interval time.Duration

	// CPUWarnPercent triggers a warning when exceeded (default 90)
	CPUWarnPercent float64

	// Sampler takes readings (default HostSampler)
	Sampler Sampler
}

// Probe periodically samples the host and records the readings.
type Probe struct {
	opts     Options
	recorder Recorder
	logger   *zap.Logger

	overloaded atomic.Bool
	warnings   atomic.Int64
	last       atomic.Pointer[Sample]
}

// NewProbe creates a probe that records into recorder.
func NewProbe(opts Options, recorder Recorder, logger *zap.Logger) *Probe {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.CPUWarnPercent <= 0 {
		opts.CPUWarnPercent = DefaultCPUWarnPercent
	}
	if opts.Sampler == nil {
		opts.Sampler = HostSampler()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{opts: opts, recorder: recorder, logger: logger}
}

// Run samples every Interval until ctx is done.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sampleOnce(ctx)
		}
	}
}

func (p *Probe) sampleOnce(ctx context.Context) {
	sample, err := p.opts.Sampler(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug("load generator sample failed", zap.Error(err))
		}
		return
	}
	p.last.Store(&sample)

	p.recorder.ObserveTrend(CPUPercent, sample.CPUPercent)
	p.recorder.ObserveTrend(MemPercent, sample.MemPercent)
	p.recorder.ObserveTrend(Goroutines, float64(sample.Goroutines))
	if sample.RSSBytes > 0 {
		p.recorder.ObserveTrend(RSSMB, float64(sample.RSSBytes)/(1<<20))
	}

	switch {
	case sample.CPUPercent > p.opts.CPUWarnPercent:
		if p.overloaded.CompareAndSwap(false, true) {
			p.warnings.Add(1)
			p.logger.Warn("load generator CPU is saturated, latency results may be unreliable",
				zap.Float64("cpuPercent", sample.CPUPercent),
				zap.Float64("threshold", p.opts.CPUWarnPercent))
		}
	case p.overloaded.CompareAndSwap(true, false):
		p.logger.Info("load generator CPU recovered", zap.Float64("cpuPercent", sample.CPUPercent))
	}
}

// Last returns the most recent reading, or nil before the first one.
func (p *Probe) Last() *Sample {
	return p.last.Load()
}

// Warnings returns how many times CPU crossed above the warning level.
func (p *Probe) Warnings() int64 {
	return p.warnings.Load()
}
