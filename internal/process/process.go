// Package process enumerates live processes and their threads.
package process

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/sampler"
	"github.com/Dicklesworthstone/hostprobe/internal/sanitize"
)

// DefaultPIDPolicy sizes the process-id buffer.
var DefaultPIDPolicy = growbuf.Policy{Initial: 1024, Max: 1 << 20, MaxRetries: 10}

// Field names reported in ProcessRecord.Unavailable.
const (
	FieldName        = "name"
	FieldExePath     = "exe_path"
	FieldStatus      = "status"
	FieldUsername    = "username"
	FieldCPU         = "cpu"
	FieldMemory      = "memory"
	FieldIO          = "io"
	FieldHandleCount = "handle_count"
	FieldThreadCount = "thread_count"
	FieldPriority    = "priority"
	FieldStartTime   = "creation_time"
	FieldSessionID   = "session_id"
	FieldParentPID   = "parent_pid"
	FieldCommandLine = "command_line"
	FieldEnvironment = "environment"
	FieldThreads     = "threads"
	FieldHandles     = "open_resources"
)

// arch is the pointer width of the collector.
var arch = map[int]string{32: "x86", 64: "x64"}[strconv.IntSize]

// HandleLookup returns the open resources of one process.
type HandleLookup interface {
	ForProcess(pid uint32) []model.HandleRecord
}

// Pass carries what one enumeration pass shares across processes. Nil Threads or
// Handles mark those children as unavailable unless the matching Skip flag is set.
type Pass struct {
	Rates       sampler.RateMetrics
	MemoryTotal uint64
	Threads     *ThreadTable
	Handles     HandleLookup
	SkipThreads bool
	SkipHandles bool
}

// Enumerator lists and describes processes.
type Enumerator struct {
	src     native.Source
	log     *slog.Logger
	policy  growbuf.Policy
	workers int
}

func NewEnumerator(src native.Source, log *slog.Logger, workers int) *Enumerator {
	if log == nil {
		log = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Enumerator{src: src, log: log, policy: DefaultPIDPolicy, workers: workers}
}

// PIDs lists process ids. A failing query yields an empty list; only a missing
// enumeration primitive is an error.
func (e *Enumerator) PIDs() ([]uint32, error) {
	pids, err := growbuf.Read(e.policy, func(buf []uint32) (int, error) {
		n, err := e.src.EnumProcesses(buf)
		if err != nil {
			return 0, err
		}
		if n >= len(buf) {
			return 0, &growbuf.TooSmallError{Needed: 2 * len(buf)}
		}
		return n, nil
	})
	if err != nil {
		if errors.Is(err, native.ErrUnsupported) {
			return nil, apperrors.Wrap(apperrors.ErrCodeFatal, "process enumeration unavailable", err)
		}
		e.log.Warn("process enumeration failed", "error", err)
		return []uint32{}, nil
	}
	return pids, nil
}

// Collect describes every pid, skipping processes that are gone. Order follows pids.
func (e *Enumerator) Collect(ctx context.Context, pids []uint32, pass Pass) ([]model.ProcessRecord, error) {
	slots := make([]*model.ProcessRecord, len(pids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, pid := range pids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, ok := e.Record(pid, pass)
			if ok {
				slots[i] = &rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]model.ProcessRecord, 0, len(pids))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Record opens pid and reads every field independently. It reports false when the
// process could not be opened.
func (e *Enumerator) Record(pid uint32, pass Pass) (model.ProcessRecord, bool) {
	p, err := e.src.OpenProcess(pid)
	if err != nil {
		e.log.Debug("process skipped", "pid", pid, "error", err)
		return model.ProcessRecord{}, false
	}
	defer p.Close()

	rec := model.ProcessRecord{PID: pid, Arch: arch}
	miss := func(field string, err error) {
		rec.Unavailable = append(rec.Unavailable, field)
		e.log.Debug("process field unavailable", "pid", pid, "field", field, "error", err)
	}
	text := func(field string, get func() (string, error)) string {
		v, err := get()
		if err != nil {
			miss(field, err)
			return model.Unknown
		}
		return sanitize.Decode(v)
	}

	rec.Name = text(FieldName, p.Name)
	rec.ExePath = text(FieldExePath, p.Exe)
	rec.Status = text(FieldStatus, p.Status)
	rec.Username = text(FieldUsername, p.Username)

	if cpu, ok := pass.Rates.ProcessCPU(pid); ok {
		rec.CPU = cpu
	} else {
		miss(FieldCPU, errors.New("no cpu sample"))
	}

	if mc, err := p.Memory(); err == nil {
		rec.Memory = &model.MemoryCounters{
			WorkingSetBytes:     mc.WorkingSetBytes,
			PeakWorkingSetBytes: mc.PeakWorkingSetBytes,
			PageFaultCount:      mc.PageFaultCount,
			PagedPoolBytes:      mc.PagedPoolBytes,
			NonPagedPoolBytes:   mc.NonPagedPoolBytes,
			PageFileBytes:       mc.PageFileBytes,
		}
		rec.MemoryKB = mc.WorkingSetBytes / 1024
		if pass.MemoryTotal > 0 {
			rec.MemoryPercent = 100 * float64(mc.WorkingSetBytes) / float64(pass.MemoryTotal)
		}
	} else {
		miss(FieldMemory, err)
	}

	if io, err := p.IO(); err == nil {
		rec.IO = model.IOCounters{
			ReadBytes:  ptr(io.ReadBytes),
			WriteBytes: ptr(io.WriteBytes),
			ReadOps:    ptr(io.ReadOps),
			WriteOps:   ptr(io.WriteOps),
		}
	} else {
		miss(FieldIO, err)
	}

	rec.HandleCount = optional(FieldHandleCount, p.HandleCount, miss)
	rec.ThreadCount = optional(FieldThreadCount, p.ThreadCount, miss)
	rec.Priority = optional(FieldPriority, p.Priority, miss)
	rec.StartTime = optional(FieldStartTime, p.CreateTime, miss)
	rec.SessionID = optional(FieldSessionID, p.SessionID, miss)
	rec.ParentPID = optional(FieldParentPID, p.ParentPID, miss)

	if cmd, err := p.CommandLine(); err == nil {
		rec.CommandLine = sanitize.Decode(cmd)
	} else {
		miss(FieldCommandLine, err)
	}
	if env, err := p.Environment(); err == nil {
		rec.Environment = make([]string, len(env))
		for i, kv := range env {
			rec.Environment[i] = sanitize.Decode(kv)
		}
	} else {
		miss(FieldEnvironment, err)
	}

	switch {
	case pass.Threads != nil:
		rec.Threads = pass.Threads.ForProcess(pid)
	case !pass.SkipThreads:
		miss(FieldThreads, errors.New("thread table unavailable"))
	}
	switch {
	case pass.Handles != nil:
		rec.OpenResources = pass.Handles.ForProcess(pid)
	case !pass.SkipHandles:
		miss(FieldHandles, errors.New("handle table unavailable"))
	}
	return rec, true
}

func ptr[T any](v T) *T { return &v }

func optional[T any](field string, get func() (T, error), miss func(string, error)) *T {
	v, err := get()
	if err != nil {
		miss(field, err)
		return nil
	}
	return &v
}
