//go:build windows && (amd64 || arm64)

package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native/layout"
)

var (
	modntdll    = windows.NewLazySystemDLL("ntdll.dll")
	modpsapi    = windows.NewLazySystemDLL("psapi.dll")
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procNtQuerySystemInformation = modntdll.NewProc("NtQuerySystemInformation")
	procNtQueryInformationThread = modntdll.NewProc("NtQueryInformationThread")
	procGetProcessMemoryInfo     = modpsapi.NewProc("GetProcessMemoryInfo")
	procGetProcessIoCounters     = modkernel32.NewProc("GetProcessIoCounters")
	procGetProcessHandleCount    = modkernel32.NewProc("GetProcessHandleCount")
	procGetPriorityClass         = modkernel32.NewProc("GetPriorityClass")
)

const (
	statusInfoLengthMismatch = 0xC0000004
	statusBufferTooSmall     = 0xC0000023
	statusBufferOverflow     = 0x80000005

	threadQuerySetWin32StartAddress = 9
	threadQueryInformation          = 0x0040
	stillActive                     = 259
)

// systemProcessPolicy bounds the SystemProcessInformation buffer, in bytes.
var systemProcessPolicy = growbuf.Policy{Initial: 512 << 10, Max: 256 << 20, MaxRetries: 8}

type processMemoryCounters struct {
	CB                         uint32
	PageFaultCount             uint32
	PeakWorkingSetSize         uintptr
	WorkingSetSize             uintptr
	QuotaPeakPagedPoolUsage    uintptr
	QuotaPagedPoolUsage        uintptr
	QuotaPeakNonPagedPoolUsage uintptr
	QuotaNonPagedPoolUsage     uintptr
	PagefileUsage              uintptr
	PeakPagefileUsage          uintptr
}

type ioCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

func tooSmall(status uint32) bool {
	return status == statusInfoLengthMismatch || status == statusBufferTooSmall || status == statusBufferOverflow
}

// querySystem issues NtQuerySystemInformation into buf and returns the NTSTATUS and
// the length the kernel reported.
func querySystem(class int, buf []byte) (uint32, uint32) {
	var ret uint32
	r, _, _ := procNtQuerySystemInformation.Call(
		uintptr(class),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&ret)),
	)
	return uint32(r), ret
}

// windowsSource decodes 64-bit kernel layouts; 32-bit builds use libSource.
type windowsSource struct{}

var _ Source = windowsSource{}

// New returns the Source for the running platform.
func New() (Source, error) { return windowsSource{}, nil }

func (windowsSource) EnumProcesses(ids []uint32) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var ret uint32
	if err := windows.EnumProcesses(ids, &ret); err != nil {
		return 0, fmt.Errorf("EnumProcesses: %w", err)
	}
	return int(ret) / 4, nil
}

func systemProcesses() ([]layout.ProcessInfo, error) {
	buf, err := growbuf.Read(systemProcessPolicy, func(buf []byte) (int, error) {
		status, ret := querySystem(layout.SystemProcessInformation, buf)
		if tooSmall(status) {
			return 0, &growbuf.TooSmallError{Needed: int(ret) + 64<<10}
		}
		if status != 0 {
			return 0, fmt.Errorf("NtQuerySystemInformation(%d): status 0x%08X", layout.SystemProcessInformation, status)
		}
		return int(ret), nil
	})
	if err != nil {
		return nil, err
	}
	return layout.DecodeProcessList(buf)
}

func filetime(units int64) time.Duration {
	if units < 0 {
		return 0
	}
	return time.Duration(units * layout.FiletimeUnit)
}

func (windowsSource) ProcessCPUTimes() (map[uint32]time.Duration, error) {
	procs, err := systemProcesses()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]time.Duration, len(procs))
	for _, p := range procs {
		out[uint32(p.PID)] = filetime(p.UserTime + p.KernelTime)
	}
	return out, nil
}

func (windowsSource) CPUTimes() (CPUTimes, []CPUTimes, error) { return libCPUTimes() }

func (windowsSource) ThreadSnapshot() ([]ThreadEntry, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, fmt.Errorf("thread snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var e windows.ThreadEntry32
	e.Size = uint32(unsafe.Sizeof(e))
	var out []ThreadEntry
	for err = windows.Thread32First(snap, &e); err == nil; err = windows.Thread32Next(snap, &e) {
		out = append(out, ThreadEntry{
			TID:           e.ThreadID,
			OwnerPID:      e.OwnerProcessID,
			BasePriority:  e.BasePri,
			DeltaPriority: e.DeltaPri,
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return out, fmt.Errorf("walk thread snapshot: %w", err)
	}
	return out, nil
}

// win32StartAddress reads the user-mode start address; the thread handle is closed
// before returning.
func win32StartAddress(tid uint32) (uint64, bool) {
	h, err := windows.OpenThread(threadQueryInformation, false, tid)
	if err != nil {
		return 0, false
	}
	defer windows.CloseHandle(h)
	var addr uintptr
	r, _, _ := procNtQueryInformationThread.Call(
		uintptr(h),
		threadQuerySetWin32StartAddress,
		uintptr(unsafe.Pointer(&addr)),
		unsafe.Sizeof(addr),
		0,
	)
	if r != 0 {
		return 0, false
	}
	return uint64(addr), true
}

func (windowsSource) ThreadDetails() (map[uint32]ThreadDetail, error) {
	procs, err := systemProcesses()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]ThreadDetail)
	for _, p := range procs {
		for _, t := range p.Threads {
			tid := uint32(t.TID)
			cs := uint64(t.ContextSwitches)
			user, kernel := filetime(t.UserTime), filetime(t.KernelTime)
			d := ThreadDetail{
				StartAddress:    t.StartAddress,
				State:           t.State,
				StateKnown:      true,
				WaitReason:      t.WaitReason,
				WaitKnown:       t.State == uint32(model.ThreadWaiting),
				ContextSwitches: &cs,
				UserTime:        &user,
				KernelTime:      &kernel,
			}
			if addr, ok := win32StartAddress(tid); ok {
				d.StartAddress = addr
			}
			out[tid] = d
		}
	}
	return out, nil
}

func (windowsSource) ReadHandleTable(buf []HandleEntry) (int, error) {
	raw := make([]byte, layout.HandleTableBytes(len(buf)))
	status, ret := querySystem(layout.SystemExtendedHandleInformation, raw)
	if tooSmall(status) {
		needed := layout.HandleTableCapacity(int(ret))
		return 0, &growbuf.TooSmallError{Needed: needed + needed/8}
	}
	if status != 0 {
		return 0, fmt.Errorf("NtQuerySystemInformation(%d): status 0x%08X", layout.SystemExtendedHandleInformation, status)
	}
	entries, err := layout.DecodeHandleTable(raw)
	if err != nil {
		return 0, err
	}
	if len(entries) > len(buf) {
		return 0, &growbuf.TooSmallError{Needed: len(entries)}
	}
	for i, e := range entries {
		buf[i] = HandleEntry{
			PID:       uint32(e.PID),
			Handle:    e.Handle,
			TypeIndex: e.TypeIndex,
			Access:    e.Access,
		}
	}
	return len(entries), nil
}

func (windowsSource) Volumes() ([]string, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDrives: %w", err)
	}
	return DecodeDriveMask(mask), nil
}

func (windowsSource) DriveType(root string) (uint32, error) {
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return 0, err
	}
	return windows.GetDriveType(p), nil
}

func (windowsSource) DiskSpace(root string) (DiskSpace, error) {
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return DiskSpace{}, err
	}
	var avail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &avail, &total, &free); err != nil {
		return DiskSpace{}, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", root, err)
	}
	return DiskSpace{Total: total, Free: free}, nil
}

func (windowsSource) FileSystem(root string) (string, error) {
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", err
	}
	fs := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumeInformation(p, nil, 0, nil, nil, nil, &fs[0], uint32(len(fs))); err != nil {
		return "", fmt.Errorf("GetVolumeInformation %s: %w", root, err)
	}
	return windows.UTF16ToString(fs), nil
}

func (windowsSource) HasPageFile(root string) bool {
	_, err := os.Stat(filepath.Join(root, "pagefile.sys"))
	return err == nil
}

func (windowsSource) SystemRoot() string {
	if d := os.Getenv("SystemDrive"); d != "" {
		return strings.TrimSuffix(d, `\`) + `\`
	}
	return `C:\`
}

func (windowsSource) DeviceIO(root string) (DiskIO, error) {
	name, err := windows.UTF16PtrFromString(`\\.\` + strings.TrimSuffix(root, `\`))
	if err != nil {
		return DiskIO{}, err
	}
	h, err := windows.CreateFile(name, 0, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return DiskIO{}, fmt.Errorf("open device %s: %w", root, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]byte, layout.DiskPerformanceSize)
	var ret uint32
	if err := windows.DeviceIoControl(h, layout.IOCTLDiskPerformance, nil, 0,
		&buf[0], uint32(len(buf)), &ret, nil); err != nil {
		return DiskIO{}, fmt.Errorf("IOCTL_DISK_PERFORMANCE %s: %w", root, err)
	}
	perf, err := layout.DecodeDiskPerformance(buf[:ret])
	if err != nil {
		return DiskIO{}, err
	}
	return DiskIO{ReadBytes: perf.BytesRead, WriteBytes: perf.BytesWritten}, nil
}

func (windowsSource) AggregateIO(root string) (DiskIO, error) {
	return libAggregateIO(strings.TrimSuffix(root, `\`))
}

func (windowsSource) Memory() (MemoryStatus, error) { return libMemory() }

func (windowsSource) Uptime() (time.Duration, error) {
	return windows.DurationSinceBoot(), nil
}

func (windowsSource) Host() (HostInfo, error) { return libHost() }

func (windowsSource) CPU() (CPUInfo, error) { return libCPU() }

// winProcess holds an open process handle; the library handle covers the fields
// without a direct native call.
type winProcess struct {
	pid uint32
	h   windows.Handle
	lib *libProcess
}

func (windowsSource) OpenProcess(pid uint32) (Process, error) {
	if pid == 0 {
		return nil, fmt.Errorf("open pid 0: %w", ErrProcessGone)
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		h, err = windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	}
	if err != nil {
		return nil, fmt.Errorf("open pid %d: %w: %v", pid, ErrProcessGone, err)
	}
	lib, _ := openLibProcess(pid)
	return &winProcess{pid: pid, h: h, lib: lib}, nil
}

func (p *winProcess) PID() uint32 { return p.pid }

func (p *winProcess) Exe() (string, error) {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(p.h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func (p *winProcess) Name() (string, error) {
	if exe, err := p.Exe(); err == nil && exe != "" {
		return filepath.Base(exe), nil
	}
	if p.lib == nil {
		return "", ErrUnsupported
	}
	return p.lib.Name()
}

func (p *winProcess) Status() (string, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(p.h, &code); err != nil {
		return "", err
	}
	if code == stillActive {
		return "Running", nil
	}
	return "Exited", nil
}

func (p *winProcess) Username() (string, error) {
	var tok windows.Token
	if err := windows.OpenProcessToken(p.h, windows.TOKEN_QUERY, &tok); err != nil {
		return "", err
	}
	defer tok.Close()
	u, err := tok.GetTokenUser()
	if err != nil {
		return "", err
	}
	account, domain, _, err := u.User.Sid.LookupAccount("")
	if err != nil {
		return "", err
	}
	return domain + `\` + account, nil
}

func (p *winProcess) Memory() (MemoryCounters, error) {
	var pmc processMemoryCounters
	pmc.CB = uint32(unsafe.Sizeof(pmc))
	r, _, err := procGetProcessMemoryInfo.Call(uintptr(p.h), uintptr(unsafe.Pointer(&pmc)), uintptr(pmc.CB))
	if r == 0 {
		return MemoryCounters{}, fmt.Errorf("GetProcessMemoryInfo: %w", err)
	}
	paged, nonPaged := uint64(pmc.QuotaPagedPoolUsage), uint64(pmc.QuotaNonPagedPoolUsage)
	return MemoryCounters{
		PageFaultCount:      uint64(pmc.PageFaultCount),
		PeakWorkingSetBytes: uint64(pmc.PeakWorkingSetSize),
		WorkingSetBytes:     uint64(pmc.WorkingSetSize),
		PagedPoolBytes:      &paged,
		NonPagedPoolBytes:   &nonPaged,
		PageFileBytes:       uint64(pmc.PagefileUsage),
	}, nil
}

func (p *winProcess) IO() (IOCounters, error) {
	var c ioCounters
	r, _, err := procGetProcessIoCounters.Call(uintptr(p.h), uintptr(unsafe.Pointer(&c)))
	if r == 0 {
		return IOCounters{}, fmt.Errorf("GetProcessIoCounters: %w", err)
	}
	return IOCounters{
		ReadBytes:  c.ReadTransferCount,
		WriteBytes: c.WriteTransferCount,
		ReadOps:    c.ReadOperationCount,
		WriteOps:   c.WriteOperationCount,
	}, nil
}

func (p *winProcess) HandleCount() (uint32, error) {
	var n uint32
	r, _, err := procGetProcessHandleCount.Call(uintptr(p.h), uintptr(unsafe.Pointer(&n)))
	if r == 0 {
		return 0, fmt.Errorf("GetProcessHandleCount: %w", err)
	}
	return n, nil
}

func (p *winProcess) ThreadCount() (uint32, error) {
	if p.lib == nil {
		return 0, ErrUnsupported
	}
	return p.lib.ThreadCount()
}

// priorityClassBase maps a priority class to its base scheduling priority.
var priorityClassBase = map[uintptr]int32{
	0x00000040: 4,  // IDLE
	0x00004000: 6,  // BELOW_NORMAL
	0x00000020: 8,  // NORMAL
	0x00008000: 10, // ABOVE_NORMAL
	0x00000080: 13, // HIGH
	0x00000100: 24, // REALTIME
}

func (p *winProcess) Priority() (int32, error) {
	r, _, err := procGetPriorityClass.Call(uintptr(p.h))
	if r == 0 {
		return 0, fmt.Errorf("GetPriorityClass: %w", err)
	}
	if base, ok := priorityClassBase[r]; ok {
		return base, nil
	}
	return int32(r), nil
}

func (p *winProcess) CreateTime() (time.Time, error) {
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(p.h, &creation, &exit, &kernel, &user); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, creation.Nanoseconds()), nil
}

func (p *winProcess) SessionID() (uint32, error) {
	var sid uint32
	if err := windows.ProcessIdToSessionId(p.pid, &sid); err != nil {
		return 0, err
	}
	return sid, nil
}

func (p *winProcess) ParentPID() (uint32, error) {
	if p.lib == nil {
		return 0, ErrUnsupported
	}
	return p.lib.ParentPID()
}

func (p *winProcess) CommandLine() (string, error) {
	if p.lib == nil {
		return "", ErrUnsupported
	}
	return p.lib.CommandLine()
}

func (p *winProcess) Environment() ([]string, error) {
	if p.lib == nil {
		return nil, ErrUnsupported
	}
	return p.lib.Environment()
}

func (p *winProcess) Close() error { return windows.CloseHandle(p.h) }
