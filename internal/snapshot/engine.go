// Package snapshot runs the telemetry operations: process list, system summary, disk
// list, per-process handles and the combined snapshot. Every operation passes the
// privilege gate first and then holds one worker slot while it queries the OS.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/disk"
	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/handles"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/privilege"
	"github.com/Dicklesworthstone/hostprobe/internal/process"
	"github.com/Dicklesworthstone/hostprobe/internal/sampler"
	"github.com/Dicklesworthstone/hostprobe/internal/summary"
)

// Operation names used in logs and metrics.
const (
	OpProcesses = "processes"
	OpSystem    = "system"
	OpDisks     = "disks"
	OpHandles   = "handles"
	OpSnapshot  = "snapshot"
)

// Options tunes the engine.
type Options struct {
	SampleWait     time.Duration
	Workers        int // concurrent operations
	ProcessWorkers int // concurrent per-process reads within one operation
	IncludeThreads bool
	IncludeHandles bool
	HandlePolicy   growbuf.Policy
}

// DefaultOptions returns the options used when no configuration is supplied.
func DefaultOptions() Options {
	return Options{
		SampleWait:     sampler.DefaultWait,
		Workers:        4,
		ProcessWorkers: 8,
		IncludeThreads: true,
		IncludeHandles: true,
		HandlePolicy:   handles.DefaultPolicy,
	}
}

// Engine serves the telemetry operations. It keeps no state between operations.
type Engine struct {
	src  native.Source
	gate privilege.Gate
	log  *slog.Logger
	opts Options

	sem     *semaphore.Weighted
	procs   *process.Enumerator
	handles *handles.Enumerator
	disks   *disk.Aggregator
	summary *summary.Builder

	newSampler func() *sampler.Sampler
	now        func() time.Time
}

func New(src native.Source, gate privilege.Gate, log *slog.Logger, opts Options) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if gate == nil {
		gate = privilege.AllowAll()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Engine{
		src:        src,
		gate:       gate,
		log:        log,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		procs:      process.NewEnumerator(src, log, opts.ProcessWorkers),
		handles:    handles.NewEnumerator(src, log, opts.HandlePolicy),
		disks:      disk.NewAggregator(src, log, nil),
		summary:    summary.NewBuilder(src, log),
		newSampler: func() *sampler.Sampler { return sampler.New(src, opts.SampleWait) },
		now:        time.Now,
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsCode(err, apperrors.ErrCodeUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// run gates the operation, waits for a worker slot and executes fn.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	start := time.Now()
	defer func() {
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		operationTotal.WithLabelValues(op, status(err)).Inc()
		if err != nil {
			e.log.Warn("operation failed", "operation", op, "error", err)
		}
	}()

	if err := e.gate.Check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	workersBusy.Inc()
	defer workersBusy.Dec()

	return fn(ctx)
}

func observe(collector string) func() {
	start := time.Now()
	return func() {
		collectorDuration.WithLabelValues(collector).Observe(time.Since(start).Seconds())
	}
}

// gathered is everything one operation reads before building records.
type gathered struct {
	rates    sampler.RateMetrics
	pids     []uint32
	memTotal uint64
	threads  *process.ThreadTable
	handles  *handles.Table
	disks    []model.DiskRecord
}

type want struct {
	threads bool
	handles bool
	disks   bool
}

// gather takes the sampling pair and, while the sampler waits, reads the tables the
// operation needs. Table failures are absorbed; they surface as unavailable fields.
func (e *Engine) gather(ctx context.Context, w want) (*gathered, error) {
	out := &gathered{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer observe("sampler")()
		rates, err := e.newSampler().Pair(gctx)
		out.rates = rates
		return err
	})
	g.Go(func() error {
		defer observe("pids")()
		pids, err := e.procs.PIDs()
		if err != nil {
			return err
		}
		out.pids = pids
		if mem, err := e.src.Memory(); err == nil {
			out.memTotal = mem.Total
		}
		return nil
	})
	if w.threads {
		g.Go(func() error {
			defer observe("threads")()
			t, err := process.LoadThreads(e.src, e.log)
			if err != nil {
				e.log.Debug("thread table unavailable", "error", err)
				return nil
			}
			out.threads = t
			return nil
		})
	}
	if w.handles {
		g.Go(func() error {
			defer observe("handles")()
			t, err := e.handles.Load()
			if err != nil {
				e.log.Debug("handle table unavailable", "error", err)
				return nil
			}
			out.handles = t
			return nil
		})
	}
	if w.disks {
		g.Go(func() error {
			defer observe("disks")()
			out.disks = e.disks.Enumerate()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) buildProcesses(ctx context.Context, g *gathered) ([]model.ProcessRecord, error) {
	defer observe("processes")()
	pass := process.Pass{
		Rates:       g.rates,
		MemoryTotal: g.memTotal,
		SkipThreads: !e.opts.IncludeThreads,
		SkipHandles: !e.opts.IncludeHandles,
	}
	if g.threads != nil && e.opts.IncludeThreads {
		pass.Threads = g.threads
	}
	if g.handles != nil && e.opts.IncludeHandles {
		pass.Handles = g.handles
	}
	recs, err := e.procs.Collect(ctx, g.pids, pass)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		for _, f := range r.Unavailable {
			degradedFields.WithLabelValues("process", f).Inc()
		}
	}
	return recs, nil
}

// buildSummary counts processes as the PIDs enumerated for the window, like the thread
// count taken from the same kernel table. Records dropped because their process exited
// or refused to open still count.
func (e *Engine) buildSummary(g *gathered) model.SystemSummary {
	defer observe("summary")()
	s := e.summary.Build(g.rates, summary.Counts{Processes: len(g.pids), Threads: g.threads.Count()})
	for _, f := range s.Unavailable {
		degradedFields.WithLabelValues("system", f).Inc()
	}
	return s
}

func countDiskDegradation(disks []model.DiskRecord) {
	for _, d := range disks {
		for _, f := range d.Unavailable {
			degradedFields.WithLabelValues("disk", f).Inc()
		}
	}
}

// Processes lists every live process with CPU rates from one sampling window.
func (e *Engine) Processes(ctx context.Context) ([]model.ProcessRecord, error) {
	var out []model.ProcessRecord
	err := e.run(ctx, OpProcesses, func(ctx context.Context) error {
		g, err := e.gather(ctx, want{threads: e.opts.IncludeThreads, handles: e.opts.IncludeHandles})
		if err != nil {
			return err
		}
		out, err = e.buildProcesses(ctx, g)
		return err
	})
	return out, err
}

// SystemSummary returns host-wide CPU, memory and OS facts.
func (e *Engine) SystemSummary(ctx context.Context) (model.SystemSummary, error) {
	var out model.SystemSummary
	err := e.run(ctx, OpSystem, func(ctx context.Context) error {
		g, err := e.gather(ctx, want{threads: true})
		if err != nil {
			return err
		}
		out = e.buildSummary(g)
		return nil
	})
	return out, err
}

// Disks lists logical volumes. It takes no sampling pair.
func (e *Engine) Disks(ctx context.Context) ([]model.DiskRecord, error) {
	var out []model.DiskRecord
	err := e.run(ctx, OpDisks, func(ctx context.Context) error {
		defer observe("disks")()
		out = e.disks.Enumerate()
		countDiskDegradation(out)
		return nil
	})
	return out, err
}

// ProcessHandles reads the handle table once and returns the entries owned by pid.
// An unreadable table fails the operation, since the table is the whole result.
func (e *Engine) ProcessHandles(ctx context.Context, pid uint32) ([]model.HandleRecord, error) {
	var out []model.HandleRecord
	err := e.run(ctx, OpHandles, func(ctx context.Context) error {
		defer observe("handles")()
		t, err := e.handles.Load()
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrCodeQueryOverflow) {
				return err
			}
			return apperrors.WrapWithContext(apperrors.ErrCodePartialUnavailable,
				"handle table unavailable", err, map[string]any{"pid": pid})
		}
		out = t.ForProcess(pid)
		return nil
	})
	return out, err
}

// Snapshot builds all three parts from one sampling window.
func (e *Engine) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	var out *model.Snapshot
	err := e.run(ctx, OpSnapshot, func(ctx context.Context) error {
		g, err := e.gather(ctx, want{threads: true, handles: e.opts.IncludeHandles, disks: true})
		if err != nil {
			return err
		}
		procs, err := e.buildProcesses(ctx, g)
		if err != nil {
			return err
		}
		countDiskDegradation(g.disks)
		out = &model.Snapshot{
			ID:        uuid.NewString(),
			Timestamp: e.now().UTC(),
			Interval:  g.rates.Elapsed,
			System:    e.buildSummary(g),
			Processes: procs,
			Disks:     g.disks,
		}
		return nil
	})
	return out, err
}

// Result is one element of a snapshot stream.
type Result struct {
	Snapshot *model.Snapshot
	Err      error
}

// Stream emits a snapshot every interval until ctx is done.
func (e *Engine) Stream(ctx context.Context, interval time.Duration) <-chan Result {
	ch := make(chan Result)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			snap, err := e.Snapshot(ctx)
			select {
			case ch <- Result{Snapshot: snap, Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
