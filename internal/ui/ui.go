// Package ui renders a live terminal view of host snapshots.
package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/snapshot"
)

// Streamer produces snapshots at a fixed interval until ctx is done.
type Streamer interface {
	Stream(ctx context.Context, interval time.Duration) <-chan snapshot.Result
}

// Model renders the latest snapshot from the stream.
type Model struct {
	latest    *model.Snapshot
	lastErr   error
	stream    <-chan snapshot.Result
	ctxCancel context.CancelFunc
	top       int
	width     int
	height    int
}

func New(src Streamer, interval time.Duration, top int) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	return newModel(src.Stream(ctx, interval), cancel, top)
}

func newModel(stream <-chan snapshot.Result, cancel context.CancelFunc, top int) *Model {
	if top < 1 {
		top = 10
	}
	return &Model{
		stream:    stream,
		ctxCancel: cancel,
		top:       top,
		width:     120,
		height:    40,
	}
}

// Messages
type tickMsg struct{}

func tickCmd() tea.Cmd { return tea.Tick(time.Second/5, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.ctxCancel()
			return m, tea.Quit
		}
	case tickMsg:
		select {
		case res, ok := <-m.stream:
			if ok {
				m.apply(res)
			}
		default:
		}
		return m, tickCmd()
	}
	return m, nil
}

// apply keeps the last good snapshot on screen when a refresh fails.
func (m *Model) apply(res snapshot.Result) {
	m.lastErr = res.Err
	if res.Err == nil && res.Snapshot != nil {
		m.latest = res.Snapshot
	}
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	header := titleStyle.Render("hostprobe")
	if m.lastErr != nil {
		header += "  " + errorStyle.Render(truncate(m.lastErr.Error(), 80))
	}
	s := m.latest
	if s == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, subtleStyle.Render("sampling..."))
	}
	sys := s.System
	header += "  " + subtleStyle.Render(fmt.Sprintf("%s  %s %s  up %s  %s",
		sys.Hostname, sys.OSName, sys.OSVersion, sys.Uptime,
		s.Timestamp.Local().Format("Mon Jan 2 15:04:05 MST 2006")))

	cpuCard := card("CPU",
		fmt.Sprintf("%s\n%d cores / %d threads  %s",
			gaugeBar(sys.CPUTotal, 28),
			sys.PhysicalCores, sys.LogicalProcessors,
			truncate(sys.CPUBrand, 28)))

	memCard := card("Memory",
		fmt.Sprintf("%s\n%.1f/%.1f GiB",
			gaugeBar(sys.MemoryPercent, 28),
			bytesToGiB(sys.MemoryUsedBytes),
			bytesToGiB(sys.MemoryTotalBytes)))

	countCard := card("Load",
		fmt.Sprintf("processes %d\nthreads   %d", sys.ProcessCount, sys.ThreadCount))

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard, memCard, countCard)
	topTable := card("Top CPU", renderTable(topByCPU(s.Processes, m.top)))
	diskCard := card("Disks", renderDisks(s.Disks))
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, topTable, diskCard)

	return lipgloss.JoinVertical(lipgloss.Left, header, line1, line2)
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

// topByCPU returns up to limit processes ordered by CPU, then memory, then PID.
func topByCPU(procs []model.ProcessRecord, limit int) []model.ProcessRecord {
	out := make([]model.ProcessRecord, len(procs))
	copy(out, procs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CPU != out[j].CPU {
			return out[i].CPU > out[j].CPU
		}
		if out[i].MemoryKB != out[j].MemoryKB {
			return out[i].MemoryKB > out[j].MemoryKB
		}
		return out[i].PID < out[j].PID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func renderTable(rows []model.ProcessRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-7s %-10s %6s %6s\n", "name", "pid", "user", "cpu", "mem")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-18s %-7d %-10s %6.1f %6.1f\n",
			truncate(r.Name, 18), r.PID, truncate(r.Username, 10), r.CPU, r.MemoryPercent)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDisks(disks []model.DiskRecord) string {
	if len(disks) == 0 {
		return subtleStyle.Render("no volumes")
	}
	lines := make([]string, 0, len(disks))
	for _, d := range disks {
		mark := " "
		if d.IsSystem {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%s%-10s %-6s %s",
			mark, truncate(d.Name, 10), truncate(d.FileSystem, 6), gaugeBar(d.PercentUsed, 14)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func bytesToGiB(b uint64) float64 { return float64(b) / (1024 * 1024 * 1024) }

// RunTUI starts the Bubble Tea program.
func RunTUI(src Streamer, interval time.Duration, top int) error {
	prog := tea.NewProgram(New(src, interval, top), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
