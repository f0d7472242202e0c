// Package tui implements the interactive -o ui mode: a Bubble Tea program
// with three tabs (Dashboard, Charts, Status Codes) polling the aggregator's
// Snapshot at roughly 10Hz.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bpowers/loadgen/internal/config"
	"github.com/bpowers/loadgen/internal/driver"
	"github.com/bpowers/loadgen/internal/logging"
	"github.com/bpowers/loadgen/internal/metrics"
)

var log = logging.For("tui")

const pollInterval = 100 * time.Millisecond

type tab int

const (
	tabDashboard tab = iota
	tabCharts
	tabStatusCodes
	tabCount
)

func (t tab) String() string {
	switch t {
	case tabDashboard:
		return "Dashboard"
	case tabCharts:
		return "Charts"
	case tabStatusCodes:
		return "Status Codes"
	default:
		return ""
	}
}

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	inactiveTabStyle = lipgloss.NewStyle().Faint(true)
	helpStyle        = lipgloss.NewStyle().Faint(true)
)

// Run builds and executes the Bubble Tea program, starting d in the
// background and polling agg for live updates until the user quits.
func Run(ctx context.Context, cfg *config.TestConfig, agg *metrics.Aggregator, d *driver.Driver) error {
	m := newModel(ctx, cfg, agg, d)
	go m.runDriver(d)

	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

type tickMsg time.Time

type model struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg *config.TestConfig
	agg *metrics.Aggregator
	drv *driver.Driver

	activeTab tab
	showHelp  bool
	snap      metrics.Snapshot
	quitting  bool
}

func newModel(ctx context.Context, cfg *config.TestConfig, agg *metrics.Aggregator, d *driver.Driver) *model {
	ctx, cancel := context.WithCancel(ctx)
	return &model{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		agg:    agg,
		drv:    d,
		snap:   agg.Snapshot(),
	}
}

func (m *model) runDriver(d *driver.Driver) {
	d.Run(m.ctx)
}

func (m *model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.cancel()
			m.agg.Stop()
			return m, tea.Quit
		case "h", "?":
			m.showHelp = !m.showHelp
		case "1":
			m.activeTab = tabDashboard
		case "2":
			m.activeTab = tabCharts
		case "3":
			m.activeTab = tabStatusCodes
		case "r":
			if m.snap.IsComplete {
				m.restart()
			}
		}
	case tickMsg:
		m.snap = m.agg.Snapshot()
		return m, tick()
	}
	return m, nil
}

// restart implements the "r" key: an idempotent aggregator reset followed by
// a fresh driver run against the same TestConfig.
func (m *model) restart() {
	m.agg.Reset(m.cfg)

	d, err := driver.New(m.cfg, m.agg)
	if err != nil {
		log.WithError(err).Warn("restart failed to build driver")
		return
	}
	m.drv = d
	go m.runDriver(d)
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	switch m.activeTab {
	case tabDashboard:
		b.WriteString(renderDashboard(m.snap))
	case tabCharts:
		b.WriteString(renderCharts(m.snap))
	case tabStatusCodes:
		b.WriteString(renderStatusCodes(m.snap))
	}

	if m.showHelp {
		b.WriteString("\n\n")
		b.WriteString(renderHelp())
	} else {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("h: help  1/2/3: tabs  r: restart  q: quit"))
	}

	return b.String()
}

func (m *model) renderTabBar() string {
	parts := make([]string, 0, int(tabCount))
	for t := tab(0); t < tabCount; t++ {
		label := fmt.Sprintf("[%d] %s", t+1, t)
		if t == m.activeTab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return strings.Join(parts, "   ")
}

func renderDashboard(s metrics.Snapshot) string {
	status := "running"
	if s.IsComplete {
		status = "complete"
	}

	return fmt.Sprintf(
		"%s %s\nstatus:     %s\nelapsed:    %s\ncompleted:  %d / %s\nerrors:     %d\nthroughput: %.1f req/s (now) %.1f req/s (avg)\nbytes in:   %d\nbytes out:  %d\n\nlatency  min %.2fms  p50 %.2fms  p90 %.2fms  p95 %.2fms  p99 %.2fms  max %.2fms",
		s.Method, s.URL,
		status,
		s.Elapsed().Round(100*time.Millisecond),
		s.CompletedRequests, targetLabel(s.TargetRequests),
		s.ErrorCount,
		s.CurrentThroughput, s.Throughput(),
		s.TotalBytesReceived, s.TotalBytesSent,
		s.MinMS, s.P50MS, s.P90MS, s.P95MS, s.P99MS, s.MaxMS,
	)
}

func targetLabel(n int) string {
	if n == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

func renderCharts(s metrics.Snapshot) string {
	var b strings.Builder
	b.WriteString("throughput (req/s, last 60 samples)\n")
	b.WriteString(sparkline(throughputValues(s.ThroughputSeries)))
	b.WriteString("\n\nlatency avg (ms, last 60 samples)\n")
	b.WriteString(sparkline(latencyValues(s.LatencySeries)))
	return b.String()
}

func throughputValues(points []metrics.ThroughputPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.ReqPerSec
	}
	return out
}

func latencyValues(points []metrics.LatencyPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.AvgMS
	}
	return out
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

func sparkline(values []float64) string {
	if len(values) == 0 {
		return "(no data yet)"
	}
	max := values[0]
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int((v / max) * float64(len(sparkChars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

func renderStatusCodes(s metrics.Snapshot) string {
	if len(s.StatusCounts) == 0 {
		return "(no responses yet)"
	}

	codes := make([]int, 0, len(s.StatusCounts))
	for code := range s.StatusCounts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	var b strings.Builder
	for _, code := range codes {
		fmt.Fprintf(&b, "[%d]\t%d responses\n", code, s.StatusCounts[code])
	}
	return b.String()
}

func renderHelp() string {
	return "keys:\n  q / esc / ctrl+c  quit\n  h / ?             toggle this help\n  1 / 2 / 3         switch tabs\n  r                 restart (once complete)"
}
