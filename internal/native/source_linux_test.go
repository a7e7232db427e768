//go:build linux

package native

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
)

// writeFixture creates root/rel with content, making parent directories.
func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// statLine renders a /proc/<pid>/stat record with every field the kernel writes.
func statLine(pid int, state string, session, utime, stime, priority, nice int) string {
	return fmt.Sprintf("%d (worker) %s 1 %d %d 0 -1 4194560 100 0 0 0 %d %d 0 0 %d %d 2 0 500 10485760 300 18446744073709551615%s\n",
		pid, state, pid, session, utime, stime, priority, nice, strings.Repeat(" 0", 27))
}

func newFixtureSource(t *testing.T, procRoot, sysRoot string) *linuxSource {
	t.Helper()
	src, err := NewProcFS(procRoot, sysRoot)
	require.NoError(t, err)
	return src.(*linuxSource)
}

func TestLinuxThreadState(t *testing.T) {
	tests := []struct {
		letter    string
		state     model.ThreadState
		wait      model.WaitReason
		waitKnown bool
	}{
		{"R", model.ThreadRunning, model.WaitUnknown, false},
		{"S", model.ThreadWaiting, model.WaitUserRequest, true},
		{"D", model.ThreadWaiting, model.WaitExecutive, true},
		{"T", model.ThreadWaiting, model.WaitSuspended, true},
		{"t", model.ThreadWaiting, model.WaitSuspended, true},
		{"I", model.ThreadWaiting, model.WaitWrQueue, true},
		{"Z", model.ThreadTerminated, model.WaitUnknown, false},
		{"X", model.ThreadTerminated, model.WaitUnknown, false},
		{"x", model.ThreadTerminated, model.WaitUnknown, false},
		{"W", model.ThreadTransition, model.WaitUnknown, false},
		{"?", model.ThreadUnknown, model.WaitUnknown, false},
		{"", model.ThreadUnknown, model.WaitUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.letter, func(t *testing.T) {
			state, wait, known := linuxThreadState(tt.letter)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.wait, wait)
			assert.Equal(t, tt.waitKnown, known)
		})
	}
}

func TestFDTypeName(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"socket:[12345]", "socket"},
		{"pipe:[99]", "pipe"},
		{"anon_inode:[eventfd]", "anon_inode"},
		{"/var/log/app.log", "file"},
		{"/dev/null", "file"},
		{"", ""},
		{"net:[4026531840]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, fdTypeName(tt.target))
		})
	}
}

func TestBlockDevice(t *testing.T) {
	tests := []struct {
		dev  string
		want string
	}{
		{"/dev/nvme0n1p2", "nvme0n1"},
		{"/dev/nvme0n1", "nvme0n1"},
		{"/dev/mmcblk0p1", "mmcblk0"},
		{"/dev/mmcblk0", "mmcblk0"},
		{"/dev/sda1", "sda"},
		{"/dev/sdb", "sdb"},
		{"/dev/vda15", "vda"},
	}
	for _, tt := range tests {
		t.Run(tt.dev, func(t *testing.T) {
			assert.Equal(t, tt.want, blockDevice(tt.dev))
		})
	}
}

func TestNewProcFS_MissingRoot(t *testing.T) {
	_, err := NewProcFS(filepath.Join(t.TempDir(), "absent"), "/sys")
	assert.Error(t, err)
}

func TestLinuxSource_ProcessesAndThreads(t *testing.T) {
	proc := t.TempDir()
	writeFixture(t, proc, "10/stat", statLine(10, "S", 10, 150, 50, 20, 0))
	writeFixture(t, proc, "10/task/10/stat", statLine(10, "R", 10, 100, 20, 20, 0))
	writeFixture(t, proc, "10/task/10/status", "Name:\tworker\nvoluntary_ctxt_switches:\t5\nnonvoluntary_ctxt_switches:\t2\n")
	writeFixture(t, proc, "10/task/11/stat", statLine(11, "D", 10, 50, 30, 25, 5))
	writeFixture(t, proc, "20/stat", statLine(20, "Z", 20, 0, 0, 20, 0))
	writeFixture(t, proc, "20/task/20/stat", statLine(20, "Z", 20, 0, 0, 20, 0))
	writeFixture(t, proc, "self/stat", "not a process")
	src := newFixtureSource(t, proc, t.TempDir())

	ids := make([]uint32, 8)
	n, err := src.EnumProcesses(ids)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{10, 20}, ids[:n])

	times, err := src.ProcessCPUTimes()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, times[10])
	assert.Zero(t, times[20])

	entries, err := src.ThreadSnapshot()
	require.NoError(t, err)
	assert.ElementsMatch(t, []ThreadEntry{
		{TID: 10, OwnerPID: 10, BasePriority: 20, DeltaPriority: 0},
		{TID: 11, OwnerPID: 10, BasePriority: 25, DeltaPriority: 5},
		{TID: 20, OwnerPID: 20, BasePriority: 20, DeltaPriority: 0},
	}, entries)

	details, err := src.ThreadDetails()
	require.NoError(t, err)
	require.Len(t, details, 3)

	leader := details[10]
	assert.Equal(t, uint32(model.ThreadRunning), leader.State)
	assert.True(t, leader.StateKnown)
	assert.False(t, leader.WaitKnown)
	require.NotNil(t, leader.UserTime)
	assert.Equal(t, time.Second, *leader.UserTime)
	assert.Equal(t, 200*time.Millisecond, *leader.KernelTime)
	require.NotNil(t, leader.ContextSwitches)
	assert.EqualValues(t, 7, *leader.ContextSwitches)

	blocked := details[11]
	assert.Equal(t, uint32(model.ThreadWaiting), blocked.State)
	assert.True(t, blocked.WaitKnown)
	assert.Equal(t, uint32(model.WaitExecutive), blocked.WaitReason)
	assert.Nil(t, blocked.ContextSwitches, "no status file")

	assert.Equal(t, uint32(model.ThreadTerminated), details[20].State)
}

func TestLinuxSource_ReadHandleTable(t *testing.T) {
	proc := t.TempDir()
	fds := map[string]string{
		"0": "/dev/null",
		"3": "socket:[12345]",
		"4": "pipe:[99]",
		"7": "anon_inode:[eventfd]",
	}
	require.NoError(t, os.MkdirAll(filepath.Join(proc, "42", "fd"), 0o755))
	for fd, target := range fds {
		require.NoError(t, os.Symlink(target, filepath.Join(proc, "42", "fd", fd)))
		writeFixture(t, proc, filepath.Join("42", "fdinfo", fd), "pos:\t0\nflags:\t02\nmnt_id:\t9\nino:\t1\n")
	}
	src := newFixtureSource(t, proc, t.TempDir())

	_, err := src.ReadHandleTable(make([]HandleEntry, 2))
	var small *growbuf.TooSmallError
	require.True(t, errors.As(err, &small))
	assert.ErrorIs(t, err, growbuf.ErrTooSmall)
	assert.GreaterOrEqual(t, small.Needed, len(fds))

	entries, err := growbuf.Read(growbuf.Policy{Initial: 1, Max: 64, MaxRetries: 4}, src.ReadHandleTable)
	require.NoError(t, err)
	require.Len(t, entries, len(fds))

	byHandle := make(map[uint64]HandleEntry, len(entries))
	for _, e := range entries {
		assert.EqualValues(t, 42, e.PID)
		assert.EqualValues(t, 2, e.Access)
		byHandle[e.Handle] = e
	}
	assert.Equal(t, "file", byHandle[0].TypeName)
	assert.Equal(t, "/dev/null", byHandle[0].Name)
	assert.Equal(t, "socket", byHandle[3].TypeName)
	assert.Equal(t, "pipe", byHandle[4].TypeName)
	assert.Equal(t, "anon_inode", byHandle[7].TypeName)
}

func TestLinuxSource_HasPageFile(t *testing.T) {
	proc := t.TempDir()
	writeFixture(t, proc, "swaps", "Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n"+
		"/swapfile                               file\t\t2097148\t\t0\t\t-2\n"+
		"/dev/dm-1                               partition\t8388604\t\t0\t\t-3\n")
	src := newFixtureSource(t, proc, t.TempDir())

	assert.True(t, src.HasPageFile("/"))
	assert.False(t, src.HasPageFile("/home"))
	assert.False(t, src.HasPageFile("/dev"), "swap partitions are not page files")

	empty := newFixtureSource(t, t.TempDir(), t.TempDir())
	assert.False(t, empty.HasPageFile("/"))
}

// TestLinuxSource_Volumes drives the mount-table path; gopsutil reads it under HOST_PROC.
func TestLinuxSource_Volumes(t *testing.T) {
	proc, sys := t.TempDir(), t.TempDir()
	mountinfo := strings.Join([]string{
		"22 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw",
		"23 22 8:17 / /media/usb rw,nosuid - vfat /dev/sdb1 rw",
		"24 22 0:25 / /run rw,nosuid - tmpfs tmpfs rw",
		"25 22 0:50 / /mnt/share rw - nfs4 server:/export rw",
		"26 22 11:0 / /cdrom ro - iso9660 /dev/sr0 ro",
		"27 22 0:5 / /proc rw - proc proc rw",
		"28 22 0:25 / /run rw,nosuid - tmpfs tmpfs rw",
	}, "\n") + "\n"
	for _, rel := range []string{"1/mountinfo", "self/mountinfo"} {
		writeFixture(t, proc, rel, mountinfo)
	}
	writeFixture(t, proc, "filesystems", "\text4\n\tvfat\n\tiso9660\nnodev\ttmpfs\nnodev\tnfs4\nnodev\tproc\n")
	writeFixture(t, sys, "block/sda/removable", "0\n")
	writeFixture(t, sys, "block/sdb/removable", "1\n")
	t.Setenv("HOST_PROC", proc)
	src := newFixtureSource(t, proc, sys)

	roots, err := src.Volumes()
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/media/usb", "/run", "/mnt/share", "/cdrom", "/proc"}, roots)

	tests := []struct {
		root string
		want model.DriveType
	}{
		{"/", model.DriveFixed},
		{"/media/usb", model.DriveRemovable},
		{"/run", model.DriveRAM},
		{"/mnt/share", model.DriveNetwork},
		{"/cdrom", model.DriveOptical},
		{"/proc", model.DriveNoRootDir},
	}
	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			got, err := src.DriveType(tt.root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, model.DriveType(got))
		})
	}

	_, err = src.DriveType("/absent")
	assert.Error(t, err)

	fs, err := src.FileSystem("/media/usb")
	require.NoError(t, err)
	assert.Equal(t, "vfat", fs)

	_, err = src.AggregateIO("/run")
	assert.Error(t, err, "tmpfs has no block device")

	assert.Equal(t, "/", src.SystemRoot())
	_, err = src.DeviceIO("/")
	assert.ErrorIs(t, err, ErrUnsupported)
}
