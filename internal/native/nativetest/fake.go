// Package nativetest provides an in-memory native.Source for collector tests.
package nativetest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
)

// CPUSample is one reading of the machine CPU counters.
type CPUSample struct {
	Total   native.CPUTimes
	PerCore []native.CPUTimes
}

// Volume describes one fake logical volume.
type Volume struct {
	Root      string
	Type      uint32
	TypeErr   error
	Space     native.DiskSpace
	SpaceErr  error
	FS        string
	FSErr     error
	PageFile  bool
	Device    native.DiskIO
	DeviceErr error
	Aggregate native.DiskIO
	AggErr    error
}

// Fake is a scripted native.Source. Every query increments Calls. Successive
// CPUTimes/ProcessCPUTimes calls walk the sample slices and repeat the last entry.
type Fake struct {
	PIDs      []uint32
	PIDErr    error
	Processes map[uint32]*Process

	ProcessCPU    []map[uint32]time.Duration
	ProcessCPUErr error
	CPUSamples    []CPUSample
	CPUErr        error

	Threads      []native.ThreadEntry
	ThreadErr    error
	Details      map[uint32]native.ThreadDetail
	DetailErr    error
	Handles      []native.HandleEntry
	HandleErr    error
	HandleGrowth bool // report the table as growing on every read

	Vols      []Volume
	VolumeErr error
	Root      string

	Mem      native.MemoryStatus
	MemErr   error
	Up       time.Duration
	UpErr    error
	HostInfo native.HostInfo
	HostErr  error
	CPUInfo  native.CPUInfo
	CPUIErr  error

	calls  atomic.Int64
	mu     sync.Mutex
	cpuIdx int
	pcpu   int
	opened map[uint32]int
}

// Calls reports how many queries reached the fake.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// OpenHandles reports processes opened and not yet closed.
func (f *Fake) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.opened {
		n += c
	}
	return n
}

func (f *Fake) hit() { f.calls.Add(1) }

func (f *Fake) EnumProcesses(ids []uint32) (int, error) {
	f.hit()
	if f.PIDErr != nil {
		return 0, f.PIDErr
	}
	return copy(ids, f.PIDs), nil
}

func (f *Fake) OpenProcess(pid uint32) (native.Process, error) {
	f.hit()
	p, ok := f.Processes[pid]
	if !ok || p.Gone {
		return nil, fmt.Errorf("pid %d: %w", pid, native.ErrProcessGone)
	}
	f.mu.Lock()
	if f.opened == nil {
		f.opened = make(map[uint32]int)
	}
	f.opened[pid]++
	f.mu.Unlock()
	return &openProcess{Process: p, fake: f}, nil
}

func (f *Fake) release(pid uint32) {
	f.mu.Lock()
	f.opened[pid]--
	f.mu.Unlock()
}

func (f *Fake) ProcessCPUTimes() (map[uint32]time.Duration, error) {
	f.hit()
	if f.ProcessCPUErr != nil {
		return nil, f.ProcessCPUErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ProcessCPU) == 0 {
		return map[uint32]time.Duration{}, nil
	}
	i := f.pcpu
	if i >= len(f.ProcessCPU) {
		i = len(f.ProcessCPU) - 1
	}
	f.pcpu++
	return f.ProcessCPU[i], nil
}

func (f *Fake) CPUTimes() (native.CPUTimes, []native.CPUTimes, error) {
	f.hit()
	if f.CPUErr != nil {
		return native.CPUTimes{}, nil, f.CPUErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.CPUSamples) == 0 {
		return native.CPUTimes{}, nil, nil
	}
	i := f.cpuIdx
	if i >= len(f.CPUSamples) {
		i = len(f.CPUSamples) - 1
	}
	f.cpuIdx++
	s := f.CPUSamples[i]
	return s.Total, s.PerCore, nil
}

func (f *Fake) ThreadSnapshot() ([]native.ThreadEntry, error) {
	f.hit()
	return f.Threads, f.ThreadErr
}

func (f *Fake) ThreadDetails() (map[uint32]native.ThreadDetail, error) {
	f.hit()
	return f.Details, f.DetailErr
}

func (f *Fake) ReadHandleTable(buf []native.HandleEntry) (int, error) {
	f.hit()
	if f.HandleErr != nil {
		return 0, f.HandleErr
	}
	if f.HandleGrowth {
		return 0, &growbuf.TooSmallError{Needed: len(buf) * 2}
	}
	if len(f.Handles) > len(buf) {
		return 0, &growbuf.TooSmallError{Needed: len(f.Handles)}
	}
	return copy(buf, f.Handles), nil
}

func (f *Fake) volume(root string) (Volume, bool) {
	for _, v := range f.Vols {
		if v.Root == root {
			return v, true
		}
	}
	return Volume{}, false
}

func (f *Fake) Volumes() ([]string, error) {
	f.hit()
	if f.VolumeErr != nil {
		return nil, f.VolumeErr
	}
	roots := make([]string, len(f.Vols))
	for i, v := range f.Vols {
		roots[i] = v.Root
	}
	return roots, nil
}

func (f *Fake) DriveType(root string) (uint32, error) {
	f.hit()
	v, _ := f.volume(root)
	return v.Type, v.TypeErr
}

func (f *Fake) DiskSpace(root string) (native.DiskSpace, error) {
	f.hit()
	v, _ := f.volume(root)
	return v.Space, v.SpaceErr
}

func (f *Fake) FileSystem(root string) (string, error) {
	f.hit()
	v, _ := f.volume(root)
	return v.FS, v.FSErr
}

func (f *Fake) HasPageFile(root string) bool {
	f.hit()
	v, _ := f.volume(root)
	return v.PageFile
}

func (f *Fake) SystemRoot() string {
	f.hit()
	return f.Root
}

func (f *Fake) DeviceIO(root string) (native.DiskIO, error) {
	f.hit()
	v, _ := f.volume(root)
	return v.Device, v.DeviceErr
}

func (f *Fake) AggregateIO(root string) (native.DiskIO, error) {
	f.hit()
	v, _ := f.volume(root)
	return v.Aggregate, v.AggErr
}

func (f *Fake) Memory() (native.MemoryStatus, error) {
	f.hit()
	return f.Mem, f.MemErr
}

func (f *Fake) Uptime() (time.Duration, error) {
	f.hit()
	return f.Up, f.UpErr
}

func (f *Fake) Host() (native.HostInfo, error) {
	f.hit()
	return f.HostInfo, f.HostErr
}

func (f *Fake) CPU() (native.CPUInfo, error) {
	f.hit()
	return f.CPUInfo, f.CPUIErr
}

// Process is a scripted process. A non-nil entry in Errs fails the accessor with that
// name ("Name", "Memory", ...).
type Process struct {
	Pid      uint32
	Gone     bool
	ProcName string
	ExePath  string
	State    string
	User     string
	Mem      native.MemoryCounters
	IOStats  native.IOCounters
	Handles  uint32
	Threads  uint32
	Prio     int32
	Created  time.Time
	Session  uint32
	Parent   uint32
	Cmdline  string
	Env      []string
	Errs     map[string]error
}

func (p *Process) err(name string) error {
	if p.Errs == nil {
		return nil
	}
	return p.Errs[name]
}

type openProcess struct {
	*Process
	fake   *Fake
	closed bool
}

func (o *openProcess) PID() uint32 { return o.Pid }

func (o *openProcess) Name() (string, error) { return o.ProcName, o.err("Name") }

func (o *openProcess) Exe() (string, error) { return o.ExePath, o.err("Exe") }

func (o *openProcess) Status() (string, error) { return o.State, o.err("Status") }

func (o *openProcess) Username() (string, error) { return o.User, o.err("Username") }

func (o *openProcess) Memory() (native.MemoryCounters, error) { return o.Mem, o.err("Memory") }

func (o *openProcess) IO() (native.IOCounters, error) { return o.IOStats, o.err("IO") }

func (o *openProcess) HandleCount() (uint32, error) { return o.Handles, o.err("HandleCount") }

func (o *openProcess) ThreadCount() (uint32, error) { return o.Threads, o.err("ThreadCount") }

func (o *openProcess) Priority() (int32, error) { return o.Prio, o.err("Priority") }

func (o *openProcess) CreateTime() (time.Time, error) { return o.Created, o.err("CreateTime") }

func (o *openProcess) SessionID() (uint32, error) { return o.Session, o.err("SessionID") }

func (o *openProcess) ParentPID() (uint32, error) { return o.Parent, o.err("ParentPID") }

func (o *openProcess) CommandLine() (string, error) { return o.Cmdline, o.err("CommandLine") }

func (o *openProcess) Environment() ([]string, error) { return o.Env, o.err("Environment") }

func (o *openProcess) Close() error {
	if !o.closed {
		o.closed = true
		o.fake.release(o.Pid)
	}
	return nil
}
