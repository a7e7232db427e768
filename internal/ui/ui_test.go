package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/snapshot"
)

func sampleSnapshot() *model.Snapshot {
	return &model.Snapshot{
		ID:        "s1",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		System: model.SystemSummary{
			Hostname:         "probe-host",
			CPUTotal:         42,
			MemoryPercent:    50,
			MemoryUsedBytes:  8 << 30,
			MemoryTotalBytes: 16 << 30,
			Uptime:           "3h 25m",
			ProcessCount:     3,
		},
		Processes: []model.ProcessRecord{
			{PID: 10, Name: "idle", CPU: 0.5},
			{PID: 20, Name: "busy", CPU: 80},
			{PID: 30, Name: "mid", CPU: 10},
		},
		Disks: []model.DiskRecord{{Name: "C:", FileSystem: "NTFS", IsSystem: true, PercentUsed: 40}},
	}
}

func TestTopByCPU(t *testing.T) {
	procs := []model.ProcessRecord{
		{PID: 3, CPU: 5, MemoryKB: 10},
		{PID: 2, CPU: 5, MemoryKB: 10},
		{PID: 1, CPU: 5, MemoryKB: 20},
		{PID: 4, CPU: 90},
	}
	top := topByCPU(procs, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []uint32{4, 1, 2}, []uint32{top[0].PID, top[1].PID, top[2].PID})
	assert.Equal(t, uint32(3), procs[0].PID, "input must not be reordered")
}

func TestGaugeBarClamps(t *testing.T) {
	assert.Contains(t, gaugeBar(150, 10), "100.0%")
	assert.Contains(t, gaugeBar(-5, 10), "  0.0%")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestUpdateAppliesStream(t *testing.T) {
	ch := make(chan snapshot.Result, 2)
	m := newModel(ch, func() {}, 2)
	assert.Contains(t, m.View(), "sampling")

	ch <- snapshot.Result{Snapshot: sampleSnapshot()}
	_, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "probe-host")
	assert.Contains(t, view, "busy")
	assert.Contains(t, view, "mid")
	assert.NotContains(t, view, "idle")
	assert.Contains(t, view, "NTFS")

	ch <- snapshot.Result{Err: errors.New("refresh failed")}
	m.Update(tickMsg{})
	view = m.View()
	assert.Contains(t, view, "refresh failed")
	assert.Contains(t, view, "probe-host", "last good snapshot stays visible")
}

func TestQuitCancelsStream(t *testing.T) {
	canceled := false
	m := newModel(make(chan snapshot.Result), func() { canceled = true }, 5)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, canceled)
	require.NotNil(t, cmd)
}
