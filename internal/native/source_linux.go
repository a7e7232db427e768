//go:build linux

package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
)

// userHZ is the clock tick rate /proc reports times in.
const userHZ = 100

type linuxSource struct {
	fs       procfs.FS
	procRoot string
	sysRoot  string
}

var _ Source = (*linuxSource)(nil)

// New returns the Source for the running platform.
func New() (Source, error) {
	return NewProcFS(procfs.DefaultMountPoint, "/sys")
}

// NewProcFS returns a Linux Source reading the given proc and sys mounts.
func NewProcFS(procRoot, sysRoot string) (Source, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", procRoot, err)
	}
	return &linuxSource{fs: fs, procRoot: procRoot, sysRoot: sysRoot}, nil
}

func ticks(t uint) time.Duration {
	return time.Duration(t) * time.Second / userHZ
}

func (s *linuxSource) EnumProcesses(ids []uint32) (int, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return 0, fmt.Errorf("list /proc: %w", err)
	}
	n := 0
	for _, p := range procs {
		if n == len(ids) {
			break
		}
		ids[n] = uint32(p.PID)
		n++
	}
	return n, nil
}

type linuxProcess struct {
	*libProcess
	proc procfs.Proc
}

func (s *linuxSource) OpenProcess(pid uint32) (Process, error) {
	proc, err := s.fs.Proc(int(pid))
	if err != nil {
		return nil, fmt.Errorf("open pid %d: %w: %v", pid, ErrProcessGone, err)
	}
	lib, err := openLibProcess(pid)
	if err != nil {
		return nil, err
	}
	return &linuxProcess{libProcess: lib, proc: proc}, nil
}

func (p *linuxProcess) SessionID() (uint32, error) {
	st, err := p.proc.Stat()
	if err != nil {
		return 0, err
	}
	return uint32(st.Session), nil
}

func (p *linuxProcess) Memory() (MemoryCounters, error) {
	mc, err := p.libProcess.Memory()
	if err != nil {
		return mc, err
	}
	if st, err := p.proc.NewStatus(); err == nil && st.VmHWM > mc.PeakWorkingSetBytes {
		mc.PeakWorkingSetBytes = st.VmHWM
	}
	return mc, nil
}

func (s *linuxSource) ProcessCPUTimes() (map[uint32]time.Duration, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list /proc: %w", err)
	}
	out := make(map[uint32]time.Duration, len(procs))
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil {
			continue
		}
		out[uint32(p.PID)] = seconds(st.CPUTime())
	}
	return out, nil
}

func (s *linuxSource) CPUTimes() (CPUTimes, []CPUTimes, error) { return libCPUTimes() }

// eachThread calls fn for every thread of every visible process.
func (s *linuxSource) eachThread(fn func(owner int, st procfs.ProcStat, t procfs.Proc)) error {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return fmt.Errorf("list /proc: %w", err)
	}
	for _, p := range procs {
		threads, err := s.fs.AllThreads(p.PID)
		if err != nil {
			continue
		}
		for _, t := range threads {
			st, err := t.Stat()
			if err != nil {
				continue
			}
			fn(p.PID, st, t)
		}
	}
	return nil
}

func (s *linuxSource) ThreadSnapshot() ([]ThreadEntry, error) {
	var out []ThreadEntry
	err := s.eachThread(func(owner int, st procfs.ProcStat, _ procfs.Proc) {
		out = append(out, ThreadEntry{
			TID:           uint32(st.PID),
			OwnerPID:      uint32(owner),
			BasePriority:  int32(st.Priority),
			DeltaPriority: int32(st.Nice),
		})
	})
	return out, err
}

// linuxThreadState maps the /proc state letter onto the kernel-dispatcher state and
// wait-reason numbering the records use.
func linuxThreadState(state string) (model.ThreadState, model.WaitReason, bool) {
	switch state {
	case "R":
		return model.ThreadRunning, model.WaitUnknown, false
	case "S":
		return model.ThreadWaiting, model.WaitUserRequest, true
	case "D":
		return model.ThreadWaiting, model.WaitExecutive, true
	case "T", "t":
		return model.ThreadWaiting, model.WaitSuspended, true
	case "I":
		return model.ThreadWaiting, model.WaitWrQueue, true
	case "Z", "X", "x":
		return model.ThreadTerminated, model.WaitUnknown, false
	case "W":
		return model.ThreadTransition, model.WaitUnknown, false
	}
	return model.ThreadUnknown, model.WaitUnknown, false
}

func (s *linuxSource) ThreadDetails() (map[uint32]ThreadDetail, error) {
	out := make(map[uint32]ThreadDetail)
	err := s.eachThread(func(_ int, st procfs.ProcStat, t procfs.Proc) {
		state, wait, waitKnown := linuxThreadState(st.State)
		user, kernel := ticks(st.UTime), ticks(st.STime)
		d := ThreadDetail{
			State:      uint32(state),
			StateKnown: state != model.ThreadUnknown,
			WaitReason: uint32(wait),
			WaitKnown:  waitKnown,
			UserTime:   &user,
			KernelTime: &kernel,
		}
		if status, err := t.NewStatus(); err == nil {
			cs := status.VoluntaryCtxtSwitches + status.NonVoluntaryCtxtSwitches
			d.ContextSwitches = &cs
		}
		out[uint32(st.PID)] = d
	})
	return out, err
}

// fdTypeName names the object behind a /proc/<pid>/fd link target.
func fdTypeName(target string) string {
	switch {
	case strings.HasPrefix(target, "socket:"):
		return "socket"
	case strings.HasPrefix(target, "pipe:"):
		return "pipe"
	case strings.HasPrefix(target, "anon_inode:"):
		return "anon_inode"
	case strings.HasPrefix(target, "/"):
		return "file"
	}
	return ""
}

func (s *linuxSource) ReadHandleTable(buf []HandleEntry) (int, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return 0, fmt.Errorf("list /proc: %w", err)
	}
	total := 0
	for _, p := range procs {
		infos, err := p.FileDescriptorsInfo()
		if err != nil {
			continue
		}
		for _, info := range infos {
			fd, err := strconv.ParseUint(info.FD, 10, 64)
			if err != nil {
				continue
			}
			if total < len(buf) {
				target, _ := os.Readlink(filepath.Join(s.procRoot, strconv.Itoa(p.PID), "fd", info.FD))
				flags, _ := strconv.ParseUint(info.Flags, 8, 32)
				buf[total] = HandleEntry{
					PID:      uint32(p.PID),
					Handle:   fd,
					TypeName: fdTypeName(target),
					Access:   uint32(flags),
					Name:     target,
				}
			}
			total++
		}
	}
	if total > len(buf) {
		return 0, &growbuf.TooSmallError{Needed: total + total/8}
	}
	return total, nil
}

func (s *linuxSource) partition(root string) (disk.PartitionStat, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return disk.PartitionStat{}, fmt.Errorf("list mounts: %w", err)
	}
	for _, p := range parts {
		if p.Mountpoint == root {
			return p, nil
		}
	}
	return disk.PartitionStat{}, fmt.Errorf("no mount at %s", root)
}

func (s *linuxSource) Volumes() ([]string, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	seen := make(map[string]bool, len(parts))
	var roots []string
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		roots = append(roots, p.Mountpoint)
	}
	return roots, nil
}

var (
	networkFS = map[string]bool{
		"nfs": true, "nfs4": true, "cifs": true, "smb3": true, "smbfs": true,
		"9p": true, "ceph": true, "glusterfs": true, "fuse.sshfs": true,
	}
	ramFS     = map[string]bool{"tmpfs": true, "ramfs": true}
	opticalFS = map[string]bool{"iso9660": true, "udf": true}
)

// blockDevice strips the partition suffix from a device name: sda1 -> sda,
// nvme0n1p2 -> nvme0n1.
func blockDevice(dev string) string {
	name := filepath.Base(dev)
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		if i := strings.LastIndex(name, "p"); i > 0 && i < len(name)-1 {
			if _, err := strconv.Atoi(name[i+1:]); err == nil {
				return name[:i]
			}
		}
		return name
	}
	return strings.TrimRight(name, "0123456789")
}

func (s *linuxSource) DriveType(root string) (uint32, error) {
	p, err := s.partition(root)
	if err != nil {
		return uint32(model.DriveUnknown), err
	}
	switch {
	case networkFS[p.Fstype]:
		return uint32(model.DriveNetwork), nil
	case ramFS[p.Fstype]:
		return uint32(model.DriveRAM), nil
	case opticalFS[p.Fstype]:
		return uint32(model.DriveOptical), nil
	case !strings.HasPrefix(p.Device, "/dev/"):
		return uint32(model.DriveNoRootDir), nil
	}
	flag, err := os.ReadFile(filepath.Join(s.sysRoot, "block", blockDevice(p.Device), "removable"))
	if err == nil && strings.TrimSpace(string(flag)) == "1" {
		return uint32(model.DriveRemovable), nil
	}
	return uint32(model.DriveFixed), nil
}

func (s *linuxSource) DiskSpace(root string) (DiskSpace, error) {
	u, err := disk.Usage(root)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("usage %s: %w", root, err)
	}
	return DiskSpace{Total: u.Total, Free: u.Free}, nil
}

func (s *linuxSource) FileSystem(root string) (string, error) {
	p, err := s.partition(root)
	if err != nil {
		return "", err
	}
	return p.Fstype, nil
}

func (s *linuxSource) HasPageFile(root string) bool {
	swaps, err := s.fs.Swaps()
	if err != nil {
		return false
	}
	for _, sw := range swaps {
		if sw.Type == "file" && filepath.Dir(sw.Filename) == filepath.Clean(root) {
			return true
		}
	}
	return false
}

func (s *linuxSource) SystemRoot() string { return "/" }

func (s *linuxSource) DeviceIO(string) (DiskIO, error) { return DiskIO{}, ErrUnsupported }

func (s *linuxSource) AggregateIO(root string) (DiskIO, error) {
	p, err := s.partition(root)
	if err != nil {
		return DiskIO{}, err
	}
	if !strings.HasPrefix(p.Device, "/dev/") {
		return DiskIO{}, errors.New("not a block device")
	}
	return libAggregateIO(filepath.Base(p.Device))
}

func (s *linuxSource) Memory() (MemoryStatus, error) { return libMemory() }

func (s *linuxSource) Uptime() (time.Duration, error) {
	secs, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("uptime: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (s *linuxSource) Host() (HostInfo, error) { return libHost() }

func (s *linuxSource) CPU() (CPUInfo, error) { return libCPU() }
