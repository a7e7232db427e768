// Package native is the boundary between the collectors and the operating system.
// Every privileged or blocking query the collectors issue goes through a Source, which
// lets the collectors run unchanged against the Windows natives, procfs, or a test fake.
package native

import (
	"errors"
	"time"
)

var (
	// ErrUnsupported means the query primitive does not exist for this Source.
	ErrUnsupported = errors.New("query not supported on this platform")
	// ErrProcessGone means the process exited or could not be opened.
	ErrProcessGone = errors.New("process not available")
)

// CPUTimes is a cumulative busy/total pair for one logical core or the whole machine.
type CPUTimes struct {
	Busy  time.Duration
	Total time.Duration
}

// CPUInfo describes the processor package.
type CPUInfo struct {
	Vendor        string
	Brand         string
	MHz           uint64
	PhysicalCores int
	LogicalCores  int
}

// HostInfo carries descriptive OS facts.
type HostInfo struct {
	Hostname  string
	OSName    string
	OSVersion string
	OSBuild   string
}

// MemoryStatus is the physical memory picture.
type MemoryStatus struct {
	Total uint64
	Free  uint64
}

// MemoryCounters is the per-process memory accounting as reported by the OS.
type MemoryCounters struct {
	PageFaultCount      uint64
	PeakWorkingSetBytes uint64
	WorkingSetBytes     uint64
	PagedPoolBytes      *uint64
	NonPagedPoolBytes   *uint64
	PageFileBytes       uint64
}

// IOCounters is the per-process I/O accounting.
type IOCounters struct {
	ReadBytes  uint64
	WriteBytes uint64
	ReadOps    uint64
	WriteOps   uint64
}

// Process is an opened process. Every accessor may fail independently; Close releases
// whatever OS resources the open acquired and must be called on every path.
type Process interface {
	PID() uint32
	Name() (string, error)
	Exe() (string, error)
	Status() (string, error)
	Username() (string, error)
	Memory() (MemoryCounters, error)
	IO() (IOCounters, error)
	HandleCount() (uint32, error)
	ThreadCount() (uint32, error)
	Priority() (int32, error)
	CreateTime() (time.Time, error)
	SessionID() (uint32, error)
	ParentPID() (uint32, error)
	CommandLine() (string, error)
	Environment() ([]string, error)
	Close() error
}

// ThreadEntry is one row of the system-wide thread snapshot.
type ThreadEntry struct {
	TID           uint32
	OwnerPID      uint32
	BasePriority  int32
	DeltaPriority int32
}

// ThreadDetail is the augmentation obtained through the detailed thread query. Zero
// StateKnown/WaitKnown mean the query did not report them.
type ThreadDetail struct {
	StartAddress    uint64
	State           uint32
	StateKnown      bool
	WaitReason      uint32
	WaitKnown       bool
	ContextSwitches *uint64
	UserTime        *time.Duration
	KernelTime      *time.Duration
}

// HandleEntry is one row of the system-wide handle table. TypeName is set by sources
// that can name the object type directly; others leave it empty and report TypeIndex.
type HandleEntry struct {
	PID       uint32
	Handle    uint64
	TypeIndex uint16
	TypeName  string
	Access    uint32
	Name      string
}

// DiskSpace is the capacity picture of one volume.
type DiskSpace struct {
	Total uint64
	Free  uint64
}

// DiskIO is a cumulative read/write byte pair for a volume.
type DiskIO struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// Empty reports whether the counters show no activity.
func (d DiskIO) Empty() bool { return d.ReadBytes == 0 && d.WriteBytes == 0 }

// Source is every OS query the collectors issue.
type Source interface {
	// EnumProcesses fills ids and returns the count written. A count equal to len(ids)
	// means the table may have been truncated.
	EnumProcesses(ids []uint32) (int, error)
	// OpenProcess opens pid with query and read rights; ErrProcessGone when it cannot.
	OpenProcess(pid uint32) (Process, error)
	// ProcessCPUTimes returns cumulative kernel+user time for every visible process.
	ProcessCPUTimes() (map[uint32]time.Duration, error)
	// CPUTimes returns the machine total and one entry per logical core.
	CPUTimes() (CPUTimes, []CPUTimes, error)

	// ThreadSnapshot returns the system-wide thread table.
	ThreadSnapshot() ([]ThreadEntry, error)
	// ThreadDetails returns the detailed thread query keyed by thread id.
	ThreadDetails() (map[uint32]ThreadDetail, error)

	// ReadHandleTable fills buf with the system-wide handle table. When the table does
	// not fit it returns a growbuf.ErrTooSmall error.
	ReadHandleTable(buf []HandleEntry) (int, error)

	// Volumes lists logical volume root paths.
	Volumes() ([]string, error)
	DriveType(root string) (uint32, error)
	DiskSpace(root string) (DiskSpace, error)
	FileSystem(root string) (string, error)
	HasPageFile(root string) bool
	// SystemRoot is the root path of the volume the OS boots from.
	SystemRoot() string
	// DeviceIO is the privileged per-device counter query.
	DeviceIO(root string) (DiskIO, error)
	// AggregateIO is the secondary metrics provider, keyed by volume root.
	AggregateIO(root string) (DiskIO, error)

	Memory() (MemoryStatus, error)
	// Uptime reads a monotonic tick counter.
	Uptime() (time.Duration, error)
	Host() (HostInfo, error)
	CPU() (CPUInfo, error)
}
