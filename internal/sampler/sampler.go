// Package sampler derives CPU rates from two readings of cumulative counters.
package sampler

import (
	"context"
	"time"

	"github.com/Dicklesworthstone/hostprobe/internal/native"
)

// DefaultWait separates the baseline and delta readings.
const DefaultWait = time.Second

// RawCounters is one reading of cumulative CPU counters. A nil Processes map or a
// non-nil CPUErr means that part of the reading could not be taken.
type RawCounters struct {
	At        time.Time
	Total     native.CPUTimes
	PerCore   []native.CPUTimes
	CPUErr    error
	Processes map[uint32]time.Duration
	ProcErr   error
}

// RateMetrics are percentages computed over one sampling window.
type RateMetrics struct {
	Elapsed      time.Duration
	Total        float64
	PerCore      []float64
	CPUKnown     bool
	LogicalCores int
	// Process is nil when either reading lacked per-process counters.
	Process map[uint32]float64
}

// ProcessCPU returns the percentage for pid and whether it was measured.
func (m RateMetrics) ProcessCPU(pid uint32) (float64, bool) {
	if m.Process == nil {
		return 0, false
	}
	v, ok := m.Process[pid]
	return v, ok
}

// Sampler takes the two readings of one request. It holds no counters between calls.
type Sampler struct {
	src  native.Source
	Wait time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(src native.Source, wait time.Duration) *Sampler {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Sampler{src: src, Wait: wait, now: time.Now, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SampleOnce reads the machine and per-process counters.
func (s *Sampler) SampleOnce() RawCounters {
	rc := RawCounters{At: s.now()}
	rc.Total, rc.PerCore, rc.CPUErr = s.src.CPUTimes()
	rc.Processes, rc.ProcErr = s.src.ProcessCPUTimes()
	if rc.ProcErr != nil {
		rc.Processes = nil
	}
	return rc
}

// Pair takes the baseline reading, waits, takes the delta reading and returns the rates.
// Only the wait observes ctx.
func (s *Sampler) Pair(ctx context.Context) (RateMetrics, error) {
	a := s.SampleOnce()
	if err := s.sleep(ctx, s.Wait); err != nil {
		return RateMetrics{}, err
	}
	b := s.SampleOnce()
	return ComputeDeltas(a, b, b.At.Sub(a.At)), nil
}

// percent is busy/total as a percentage clamped to [0, limit].
func percent(busy, total, limit float64) float64 {
	if total <= 0 || busy <= 0 {
		return 0
	}
	v := 100 * busy / total
	if v > limit {
		return limit
	}
	return v
}

// ComputeDeltas turns two readings into rates. Counters that went backwards yield 0.
// Machine and per-core rates are busy/total within [0, 100]. Process rates are busy
// time over wall time, so one fully busy logical core reads as 100 and the ceiling is
// 100 per logical core.
func ComputeDeltas(a, b RawCounters, elapsed time.Duration) RateMetrics {
	m := RateMetrics{Elapsed: elapsed, LogicalCores: len(b.PerCore)}
	if a.CPUErr == nil && b.CPUErr == nil {
		m.CPUKnown = true
		m.Total = percent(float64(b.Total.Busy-a.Total.Busy), float64(b.Total.Total-a.Total.Total), 100)
		m.PerCore = make([]float64, len(b.PerCore))
		for i, c := range b.PerCore {
			if i >= len(a.PerCore) {
				continue
			}
			prev := a.PerCore[i]
			m.PerCore[i] = percent(float64(c.Busy-prev.Busy), float64(c.Total-prev.Total), 100)
		}
	}

	if a.Processes == nil || b.Processes == nil {
		return m
	}
	cores := m.LogicalCores
	if cores < 1 {
		cores = 1
	}
	ceiling := 100 * float64(cores)
	m.Process = make(map[uint32]float64, len(b.Processes))
	for pid, cur := range b.Processes {
		// A process absent from the baseline started inside the window.
		prev := a.Processes[pid]
		m.Process[pid] = percent(float64(cur-prev), float64(elapsed), ceiling)
	}
	return m
}
