// Package summary assembles the host-wide SystemSummary.
package summary

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/sampler"
	"github.com/Dicklesworthstone/hostprobe/internal/sanitize"
)

// Field names reported in SystemSummary.Unavailable.
const (
	FieldCPU     = "cpu"
	FieldCPUInfo = "cpu_info"
	FieldMemory  = "memory"
	FieldUptime  = "uptime"
	FieldHost    = "host"
)

// Counts are the process-table totals of the same pass.
type Counts struct {
	Processes int
	Threads   int
}

type Builder struct {
	src native.Source
	log *slog.Logger
	now func() time.Time
}

func NewBuilder(src native.Source, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{src: src, log: log, now: time.Now}
}

// FormatUptime renders d as "{h}h {m}m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

// Build combines the delta reading of rates with memory, uptime and host facts.
func (b *Builder) Build(rates sampler.RateMetrics, counts Counts) model.SystemSummary {
	s := model.SystemSummary{
		CPUVendor:          model.Unknown,
		CPUBrand:           model.Unknown,
		Hostname:           model.Unknown,
		OSName:             model.Unknown,
		OSVersion:          model.Unknown,
		OSBuild:            model.Unknown,
		ProcessCount:       counts.Processes,
		ThreadCount:        counts.Threads,
		SampleWindowMillis: rates.Elapsed.Milliseconds(),
	}
	miss := func(field string, err error) {
		s.Unavailable = append(s.Unavailable, field)
		b.log.Debug("summary field unavailable", "field", field, "error", err)
	}

	if rates.CPUKnown {
		s.CPUTotal = rates.Total
		s.CPUPerCore = rates.PerCore
	} else {
		miss(FieldCPU, fmt.Errorf("no cpu sample"))
	}

	if info, err := b.src.CPU(); err == nil {
		s.PhysicalCores = info.PhysicalCores
		s.LogicalProcessors = info.LogicalCores
		s.BaseSpeedMHz = info.MHz
		s.CPUVendor = text(info.Vendor)
		s.CPUBrand = text(info.Brand)
	} else {
		miss(FieldCPUInfo, err)
	}
	if s.LogicalProcessors == 0 {
		s.LogicalProcessors = rates.LogicalCores
	}

	if mem, err := b.src.Memory(); err == nil {
		s.MemoryTotalBytes = mem.Total
		s.MemoryFreeBytes = mem.Free
		if s.MemoryFreeBytes > s.MemoryTotalBytes {
			s.MemoryFreeBytes = s.MemoryTotalBytes
		}
		s.MemoryUsedBytes = s.MemoryTotalBytes - s.MemoryFreeBytes
		if s.MemoryTotalBytes > 0 {
			s.MemoryPercent = 100 * float64(s.MemoryUsedBytes) / float64(s.MemoryTotalBytes)
		}
	} else {
		miss(FieldMemory, err)
	}

	if up, err := b.src.Uptime(); err == nil {
		s.UptimeSeconds = uint64(up / time.Second)
		s.Uptime = FormatUptime(up)
		s.BootTime = b.now().Add(-up).UTC()
	} else {
		s.Uptime = model.Unknown
		miss(FieldUptime, err)
	}

	if host, err := b.src.Host(); err == nil {
		s.Hostname = text(host.Hostname)
		s.OSName = text(host.OSName)
		s.OSVersion = text(host.OSVersion)
		s.OSBuild = text(host.OSBuild)
	} else {
		miss(FieldHost, err)
	}
	return s
}

func text(v string) string {
	v = sanitize.Decode(v)
	if v == "" {
		return model.Unknown
	}
	return v
}
