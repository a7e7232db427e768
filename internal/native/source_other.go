//go:build !linux && !(windows && (amd64 || arm64))

package native

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/Dicklesworthstone/hostprobe/internal/model"
)

// libSource serves every query through gopsutil. It also backs 32-bit Windows builds,
// where the 64-bit kernel layouts do not apply. Threads and handle tables have no
// portable primitive and report ErrUnsupported.
type libSource struct{}

var _ Source = libSource{}

// New returns the Source for the running platform.
func New() (Source, error) { return libSource{}, nil }

func (libSource) EnumProcesses(ids []uint32) (int, error) { return libPids(ids) }

func (libSource) OpenProcess(pid uint32) (Process, error) {
	p, err := openLibProcess(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (libSource) ProcessCPUTimes() (map[uint32]time.Duration, error) {
	return libProcessCPUTimes()
}

func (libSource) CPUTimes() (CPUTimes, []CPUTimes, error) { return libCPUTimes() }

func (libSource) ThreadSnapshot() ([]ThreadEntry, error) { return nil, ErrUnsupported }

func (libSource) ThreadDetails() (map[uint32]ThreadDetail, error) { return nil, ErrUnsupported }

func (libSource) ReadHandleTable([]HandleEntry) (int, error) { return 0, ErrUnsupported }

func (libSource) partition(root string) (disk.PartitionStat, error) {
	parts, err := disk.Partitions(false)
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

func (libSource) Volumes() ([]string, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	roots := make([]string, 0, len(parts))
	for _, p := range parts {
		roots = append(roots, p.Mountpoint)
	}
	return roots, nil
}

// DriveType reports every physical mount as fixed.
func (s libSource) DriveType(root string) (uint32, error) {
	if _, err := s.partition(root); err != nil {
		return uint32(model.DriveUnknown), err
	}
	return uint32(model.DriveFixed), nil
}

func (libSource) DiskSpace(root string) (DiskSpace, error) {
	u, err := disk.Usage(root)
	if err != nil {
		return DiskSpace{}, fmt.Errorf("usage %s: %w", root, err)
	}
	return DiskSpace{Total: u.Total, Free: u.Free}, nil
}

func (s libSource) FileSystem(root string) (string, error) {
	p, err := s.partition(root)
	if err != nil {
		return "", err
	}
	return p.Fstype, nil
}

func (libSource) HasPageFile(string) bool { return false }

func (libSource) SystemRoot() string { return "/" }

func (libSource) DeviceIO(string) (DiskIO, error) { return DiskIO{}, ErrUnsupported }

func (s libSource) AggregateIO(root string) (DiskIO, error) {
	p, err := s.partition(root)
	if err != nil {
		return DiskIO{}, err
	}
	return libAggregateIO(filepath.Base(p.Device))
}

func (libSource) Memory() (MemoryStatus, error) { return libMemory() }

func (libSource) Uptime() (time.Duration, error) {
	secs, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("uptime: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (libSource) Host() (HostInfo, error) { return libHost() }

func (libSource) CPU() (CPUInfo, error) { return libCPU() }
