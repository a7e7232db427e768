package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/native/nativetest"
	"github.com/Dicklesworthstone/hostprobe/internal/privilege"
)

const gb = uint64(1_000_000_000)

func testOptions() Options {
	opts := DefaultOptions()
	opts.SampleWait = time.Millisecond
	opts.HandlePolicy = growbuf.Policy{Initial: 16, Max: 1024, MaxRetries: 4}
	return opts
}

func denied() privilege.Gate {
	return privilege.GateFunc(func() error {
		return apperrors.New(apperrors.ErrCodeUnauthorized, "elevated privileges required")
	})
}

func host() *nativetest.Fake {
	return &nativetest.Fake{
		PIDs: []uint32{4, 100, 200},
		Processes: map[uint32]*nativetest.Process{
			4:   {Pid: 4, ProcName: "System", Threads: 2},
			100: {Pid: 100, ProcName: "svchost.exe", Threads: 1, Mem: native.MemoryCounters{WorkingSetBytes: 1 << 20}},
			200: {Pid: 200, ProcName: "worker.exe", Gone: true},
		},
		CPUSamples: []nativetest.CPUSample{
			{Total: native.CPUTimes{}, PerCore: []native.CPUTimes{{}, {}}},
			{
				Total:   native.CPUTimes{Busy: time.Second, Total: 4 * time.Second},
				PerCore: []native.CPUTimes{{Busy: time.Second, Total: 2 * time.Second}, {Total: 2 * time.Second}},
			},
		},
		ProcessCPU: []map[uint32]time.Duration{{100: 0}, {100: time.Millisecond}},
		Threads: []native.ThreadEntry{
			{TID: 8, OwnerPID: 4},
			{TID: 12, OwnerPID: 4},
			{TID: 104, OwnerPID: 100},
		},
		Handles: []native.HandleEntry{
			{PID: 100, Handle: 0x1C, TypeIndex: 0x1C},
			{PID: 100, Handle: 0x20, TypeIndex: 0x1E},
			{PID: 4, Handle: 0x4, TypeIndex: 0x07},
		},
		Root: `C:\`,
		Vols: []nativetest.Volume{
			{Root: `C:\`, Type: uint32(model.DriveFixed), Space: native.DiskSpace{Total: 1000 * gb, Free: 500 * gb}, FS: "NTFS"},
			{Root: `D:\`, Type: uint32(model.DriveFixed), Space: native.DiskSpace{Total: 2000 * gb, Free: 2000 * gb}, FS: "NTFS"},
		},
		Mem:      native.MemoryStatus{Total: 8 << 30, Free: 2 << 30},
		Up:       3 * time.Hour,
		HostInfo: native.HostInfo{Hostname: "probe-host", OSName: "Windows"},
		CPUInfo:  native.CPUInfo{LogicalCores: 2, PhysicalCores: 1},
	}
}

func TestUnauthorized_NoQueries(t *testing.T) {
	fake := host()
	e := New(fake, denied(), nil, testOptions())
	ctx := context.Background()

	_, err := e.Processes(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	_, err = e.SystemSummary(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	_, err = e.Disks(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	_, err = e.ProcessHandles(ctx, 100)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	_, err = e.Snapshot(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))

	assert.Zero(t, fake.Calls())
}

func TestProcesses_EmptyTable(t *testing.T) {
	fake := host()
	fake.PIDs = nil
	e := New(fake, nil, nil, testOptions())

	procs, err := e.Processes(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, procs)
	assert.Empty(t, procs)
}

func TestProcesses_SkipsGoneAndAttachesChildren(t *testing.T) {
	fake := host()
	e := New(fake, nil, nil, testOptions())

	procs, err := e.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	sys, svc := procs[0], procs[1]
	assert.EqualValues(t, 4, sys.PID)
	assert.Len(t, sys.Threads, 2)
	require.Len(t, sys.OpenResources, 1)
	assert.Equal(t, model.HandleOther, sys.OpenResources[0].Type)

	assert.EqualValues(t, 100, svc.PID)
	require.Len(t, svc.OpenResources, 2)
	assert.Equal(t, "File: Handle=0x1C", svc.OpenResources[0].Description)
	assert.Equal(t, model.HandleMutex, svc.OpenResources[1].Type)
	assert.GreaterOrEqual(t, svc.CPU, 0.0)
	assert.LessOrEqual(t, svc.CPU, 200.0) // two logical cores
	assert.Zero(t, fake.OpenHandles())
}

func TestProcesses_HandleOverflowAbsorbed(t *testing.T) {
	fake := host()
	fake.HandleGrowth = true
	e := New(fake, nil, nil, testOptions())

	procs, err := e.Processes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, procs)
	for _, p := range procs {
		assert.Contains(t, p.Unavailable, "open_resources")
		assert.Nil(t, p.OpenResources)
	}
}

func TestProcesses_EnumerationUnsupportedIsFatal(t *testing.T) {
	fake := host()
	fake.PIDErr = native.ErrUnsupported
	e := New(fake, nil, nil, testOptions())

	_, err := e.Processes(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFatal))
}

func TestProcesses_ThreadsAndHandlesDisabled(t *testing.T) {
	fake := host()
	opts := testOptions()
	opts.IncludeThreads = false
	opts.IncludeHandles = false
	e := New(fake, nil, nil, opts)

	procs, err := e.Processes(context.Background())
	require.NoError(t, err)
	for _, p := range procs {
		assert.Nil(t, p.Threads)
		assert.Nil(t, p.OpenResources)
		assert.NotContains(t, p.Unavailable, "threads")
		assert.NotContains(t, p.Unavailable, "open_resources")
	}
}

func TestSystemSummary(t *testing.T) {
	fake := host()
	e := New(fake, nil, nil, testOptions())

	s, err := e.SystemSummary(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0, s.CPUTotal, 1e-9)
	require.Len(t, s.CPUPerCore, 2)
	assert.InDelta(t, 50.0, s.CPUPerCore[0], 1e-9)
	assert.Equal(t, s.MemoryTotalBytes, s.MemoryUsedBytes+s.MemoryFreeBytes)
	assert.Equal(t, 3, s.ProcessCount)
	assert.Equal(t, 3, s.ThreadCount)
	assert.Equal(t, "3h 0m", s.Uptime)
	assert.Equal(t, "probe-host", s.Hostname)
}

func TestDisks(t *testing.T) {
	fake := host()
	e := New(fake, nil, nil, testOptions())

	disks, err := e.Disks(context.Background())
	require.NoError(t, err)
	require.Len(t, disks, 2)
	assert.Equal(t, 50.0, disks[0].PercentUsed)
	assert.True(t, disks[0].IsSystem)
	assert.Equal(t, 0.0, disks[1].PercentUsed)
	assert.False(t, disks[1].IsSystem)
}

func TestProcessHandles(t *testing.T) {
	e := New(host(), nil, nil, testOptions())
	recs, err := e.ProcessHandles(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = e.ProcessHandles(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestProcessHandles_Failures(t *testing.T) {
	fake := host()
	fake.HandleGrowth = true
	_, err := New(fake, nil, nil, testOptions()).ProcessHandles(context.Background(), 100)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQueryOverflow))

	fake = host()
	fake.HandleErr = native.ErrUnsupported
	_, err = New(fake, nil, nil, testOptions()).ProcessHandles(context.Background(), 100)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePartialUnavailable))
	assert.ErrorIs(t, err, native.ErrUnsupported)
}

func TestSnapshot(t *testing.T) {
	fake := host()
	e := New(fake, nil, nil, testOptions())
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, now, snap.Timestamp)
	assert.Positive(t, snap.Interval)
	assert.Len(t, snap.Processes, 2)
	assert.Len(t, snap.Disks, 2)
	assert.Equal(t, 3, snap.System.ProcessCount, "exited pid 200 is still enumerated")
	assert.Equal(t, 3, snap.System.ThreadCount)
	assert.Zero(t, fake.OpenHandles())
}

func TestProcessCount_SameAcrossOperations(t *testing.T) {
	e := New(host(), nil, nil, testOptions())

	s, err := e.SystemSummary(context.Background())
	require.NoError(t, err)
	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, s.ProcessCount, snap.System.ProcessCount)
	assert.Greater(t, snap.System.ProcessCount, len(snap.Processes))
}

func TestSnapshot_Canceled(t *testing.T) {
	fake := host()
	e := New(fake, nil, nil, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := e.Snapshot(ctx)
	assert.Nil(t, snap)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, fake.Calls())
}

func TestStream(t *testing.T) {
	e := New(host(), nil, nil, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Stream(ctx, 5*time.Millisecond)
	for i := 0; i < 2; i++ {
		select {
		case res := <-ch:
			require.NoError(t, res.Err)
			require.NotNil(t, res.Snapshot)
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot received")
		}
	}
	cancel()
	for range ch {
	}
}
