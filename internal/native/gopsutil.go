package native

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Shared gopsutil-backed queries; the platform sources delegate to these wherever the
// library already issues the right native call.

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func toCPUTimes(t cpu.TimesStat) CPUTimes {
	total := t.Total()
	busy := total - t.Idle - t.Iowait
	if busy < 0 {
		busy = 0
	}
	return CPUTimes{Busy: seconds(busy), Total: seconds(total)}
}

func libCPUTimes() (CPUTimes, []CPUTimes, error) {
	all, err := cpu.Times(false)
	if err != nil {
		return CPUTimes{}, nil, fmt.Errorf("cpu times: %w", err)
	}
	if len(all) == 0 {
		return CPUTimes{}, nil, fmt.Errorf("cpu times: empty result")
	}
	cores, err := cpu.Times(true)
	if err != nil {
		return CPUTimes{}, nil, fmt.Errorf("per-cpu times: %w", err)
	}
	perCore := make([]CPUTimes, len(cores))
	for i, c := range cores {
		perCore[i] = toCPUTimes(c)
	}
	return toCPUTimes(all[0]), perCore, nil
}

func libMemory() (MemoryStatus, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("memory status: %w", err)
	}
	return MemoryStatus{Total: v.Total, Free: v.Available}, nil
}

func libHost() (HostInfo, error) {
	h, err := host.Info()
	if err != nil {
		return HostInfo{}, fmt.Errorf("host info: %w", err)
	}
	name := h.Platform
	if name == "" {
		name = h.OS
	}
	return HostInfo{
		Hostname:  h.Hostname,
		OSName:    name,
		OSVersion: h.PlatformVersion,
		OSBuild:   h.KernelVersion,
	}, nil
}

func libCPU() (CPUInfo, error) {
	var info CPUInfo
	stats, err := cpu.Info()
	if err != nil {
		return info, fmt.Errorf("cpu info: %w", err)
	}
	if len(stats) > 0 {
		info.Vendor = stats[0].VendorID
		info.Brand = strings.TrimSpace(stats[0].ModelName)
		info.MHz = uint64(stats[0].Mhz)
	}
	if n, err := cpu.Counts(true); err == nil {
		info.LogicalCores = n
	}
	if n, err := cpu.Counts(false); err == nil {
		info.PhysicalCores = n
	}
	if info.PhysicalCores == 0 {
		info.PhysicalCores = info.LogicalCores
	}
	return info, nil
}

// libAggregateIO looks up the library's per-device counters under key.
func libAggregateIO(key string) (DiskIO, error) {
	counters, err := disk.IOCounters(key)
	if err != nil {
		return DiskIO{}, fmt.Errorf("disk io counters: %w", err)
	}
	st, ok := counters[key]
	if !ok {
		return DiskIO{}, fmt.Errorf("disk io counters: no entry for %q", key)
	}
	return DiskIO{ReadBytes: st.ReadBytes, WriteBytes: st.WriteBytes}, nil
}

func libPids(ids []uint32) (int, error) {
	pids, err := process.Pids()
	if err != nil {
		return 0, fmt.Errorf("list pids: %w", err)
	}
	n := 0
	for _, pid := range pids {
		if n == len(ids) {
			break
		}
		if pid < 0 {
			continue
		}
		ids[n] = uint32(pid)
		n++
	}
	return n, nil
}

func libProcessCPUTimes() (map[uint32]time.Duration, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make(map[uint32]time.Duration, len(procs))
	for _, p := range procs {
		t, err := p.Times()
		if err != nil || t == nil {
			continue
		}
		out[uint32(p.Pid)] = seconds(t.User + t.System)
	}
	return out, nil
}

// libProcess is the library path for per-process fields.
type libProcess struct {
	pid uint32
	p   *process.Process
}

func openLibProcess(pid uint32) (*libProcess, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("open pid %d: %w: %v", pid, ErrProcessGone, err)
	}
	return &libProcess{pid: pid, p: p}, nil
}

func (l *libProcess) PID() uint32 { return l.pid }

func (l *libProcess) Name() (string, error) { return l.p.Name() }

func (l *libProcess) Exe() (string, error) { return l.p.Exe() }

func (l *libProcess) Status() (string, error) {
	st, err := l.p.Status()
	if err != nil {
		return "", err
	}
	if len(st) == 0 {
		return "", fmt.Errorf("empty status")
	}
	return st[0], nil
}

func (l *libProcess) Username() (string, error) { return l.p.Username() }

func (l *libProcess) Memory() (MemoryCounters, error) {
	mi, err := l.p.MemoryInfo()
	if err != nil {
		return MemoryCounters{}, err
	}
	mc := MemoryCounters{
		WorkingSetBytes:     mi.RSS,
		PeakWorkingSetBytes: mi.HWM,
		PageFileBytes:       mi.Swap,
	}
	if mc.PeakWorkingSetBytes < mc.WorkingSetBytes {
		mc.PeakWorkingSetBytes = mc.WorkingSetBytes
	}
	if pf, err := l.p.PageFaults(); err == nil && pf != nil {
		mc.PageFaultCount = pf.MinorFaults + pf.MajorFaults
	}
	return mc, nil
}

func (l *libProcess) IO() (IOCounters, error) {
	io, err := l.p.IOCounters()
	if err != nil {
		return IOCounters{}, err
	}
	return IOCounters{
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
		ReadOps:    io.ReadCount,
		WriteOps:   io.WriteCount,
	}, nil
}

func (l *libProcess) HandleCount() (uint32, error) {
	n, err := l.p.NumFDs()
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (l *libProcess) ThreadCount() (uint32, error) {
	n, err := l.p.NumThreads()
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (l *libProcess) Priority() (int32, error) { return l.p.Nice() }

func (l *libProcess) CreateTime() (time.Time, error) {
	ms, err := l.p.CreateTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (l *libProcess) SessionID() (uint32, error) { return 0, ErrUnsupported }

func (l *libProcess) ParentPID() (uint32, error) {
	ppid, err := l.p.Ppid()
	if err != nil {
		return 0, err
	}
	return uint32(ppid), nil
}

func (l *libProcess) CommandLine() (string, error) { return l.p.Cmdline() }

func (l *libProcess) Environment() ([]string, error) { return l.p.Environ() }

func (l *libProcess) Close() error { return nil }
