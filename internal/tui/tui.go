// Package tui provides a Bubble Tea TUI for viewing analysis results.
package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/eyetrial/internal/report"
	"github.com/fakeyudi/eyetrial/internal/runner"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	columnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")).
			Bold(true)

	outcomeHitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	outcomeMissStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	outcomeOtherStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	// Non-finite measures
	nonFiniteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabRows
	tabFailures
	tabSubjects
	tabCount
)

var tabNames = [tabCount]string{
	"Summary", "Rows", "Failures", "Subjects",
}

// rowOrder is the Rows tab ordering, cycled with "s".
type rowOrder int

const (
	orderFile rowOrder = iota
	orderLatencyAsc
	orderLatencyDesc
	orderCount
)

func (o rowOrder) String() string {
	switch o {
	case orderLatencyAsc:
		return "latency ↑"
	case orderLatencyDesc:
		return "latency ↓"
	default:
		return "file order"
	}
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	result    *runner.Result
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool

	order     rowOrder
	rows      []runner.Row // in display order
	rowCursor int

	failCursor       int
	expandedFailures map[int]bool
}

// New creates a new TUI model for the given result and source filename.
func New(res *runner.Result, filename string) Model {
	m := Model{
		result:           res,
		filename:         filepath.Base(filename),
		expandedFailures: make(map[int]bool),
	}
	m.rows = sortRows(res.Rows, m.order)
	return m
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabRows {
				m.order = (m.order + 1) % orderCount
				m.rows = sortRows(m.result.Rows, m.order)
				m.rowCursor = 0
				m.rebuild(tabRows)
				if m.ready {
					m.viewports[tabRows].GotoTop()
				}
			}
		case "up", "k":
			switch {
			case m.activeTab == tabRows && m.rowCursor > 0:
				m.rowCursor--
				m.rebuild(tabRows)
				return m, nil
			case m.activeTab == tabFailures && m.failCursor > 0:
				m.failCursor--
				m.rebuild(tabFailures)
				return m, nil
			}
		case "down", "j":
			switch {
			case m.activeTab == tabRows && m.rowCursor < len(m.rows)-1:
				m.rowCursor++
				m.rebuild(tabRows)
				return m, nil
			case m.activeTab == tabFailures && m.failCursor < len(m.result.Failures)-1:
				m.failCursor++
				m.rebuild(tabFailures)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabFailures && len(m.result.Failures) > 0 {
				if m.expandedFailures[m.failCursor] {
					delete(m.expandedFailures, m.failCursor)
				} else {
					m.expandedFailures[m.failCursor] = true
				}
				m.rebuild(tabFailures)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  eyetrial  " + m.result.Task + "  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabRows:
		hint += "  s sort (" + m.order.String() + ")"
	case tabFailures:
		hint += "  enter expand/collapse"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(
		hint + strings.Repeat(" ", pad) + pct,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title, tab row and status bar
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuild(t tabID) {
	if !m.ready {
		return
	}
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabRows:
		return m.renderRows()
	case tabFailures:
		return m.renderFailures()
	case tabSubjects:
		return m.renderSubjects()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	res := m.result
	var sb strings.Builder
	sb.WriteString(heading("Run Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Task:", res.Task)
	if res.Files > 0 {
		row("Files:", fmt.Sprintf("%d", res.Files))
	}
	row("Rows:", fmt.Sprintf("%d", len(res.Rows)))
	row("Failures:", fmt.Sprintf("%d", len(res.Failures)))
	row("Subjects:", fmt.Sprintf("%d", len(report.Subjects(res))))

	counts, labels := report.Outcomes(res.Rows)
	sb.WriteString("\n")
	sb.WriteString(heading("Outcomes"))
	if len(labels) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
	}
	for _, l := range labels {
		row(l+":", fmt.Sprintf("%d", counts[l]))
	}

	if n := nonFiniteCount(res.Rows); n > 0 {
		sb.WriteString("\n")
		sb.WriteString(nonFiniteStyle.Render(fmt.Sprintf("  %d row(s) with non-finite velocity or accuracy", n)) + "\n")
	}
	return sb.String()
}

func (m *Model) renderRows() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Rows (%d, %s)", len(m.rows), m.order)))
	if len(m.rows) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}

	header := fmt.Sprintf("  %-10s %-10s %-8s %9s %12s %10s %8s",
		"group", "subject", "outcome", "latency", "velocity", "accuracy", "delay")
	sb.WriteString(columnStyle.Render(header) + "\n")

	for i, r := range m.rows {
		line := fmt.Sprintf("  %-10s %-10s %s %9d %s %s %8d",
			r.Group, r.Subject, outcomeBadge(r.Outcome), r.Latency,
			measure(r.Velocity, 12, 1), measure(r.Accuracy, 10, 3), r.Delay)
		if i == m.rowCursor {
			line = selectedRowStyle.Width(m.width - 2).Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m *Model) renderFailures() string {
	failures := m.result.Failures
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Failed Trials (%d)", len(failures))))
	if len(failures) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, f := range failures {
		expanded := m.expandedFailures[i]
		toggle := dimStyle.Render("  ▶ ")
		if expanded {
			toggle = dimStyle.Render("  ▼ ")
		}

		row := fmt.Sprintf("%s%s/%s  %s", toggle, f.Group, f.Subject, errorStyle.Render(firstLine(f.Error)))
		if i == m.failCursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")

		if expanded {
			first := f.FirstLine
			if first == "" {
				first = "(no event lines)"
			}
			sb.WriteString(dimStyle.Render("      first line: ") + fmt.Sprintf("%q", first) + "\n")
			sb.WriteString(dimStyle.Render("      error:      ") + f.Error + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderSubjects() string {
	subjects := report.Subjects(m.result)
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Subjects (%d)", len(subjects))))
	if len(subjects) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}

	group := ""
	for _, s := range subjects {
		if s.Group != group {
			group = s.Group
			sb.WriteString(labelStyle.Render("  "+group) + "\n")
		}
		labels := make([]string, 0, len(s.Outcomes))
		for l := range s.Outcomes {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		parts := make([]string, 0, len(labels))
		for _, l := range labels {
			parts = append(parts, fmt.Sprintf("%s=%d", l, s.Outcomes[l]))
		}
		detail := strings.Join(parts, " ")
		if s.Failures > 0 {
			detail += "  " + errorStyle.Render(fmt.Sprintf("failed=%d", s.Failures))
		}
		sb.WriteString(fmt.Sprintf("    %-12s %s\n", s.Subject, detail))
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func sortRows(rows []runner.Row, order rowOrder) []runner.Row {
	out := make([]runner.Row, len(rows))
	copy(out, rows)
	switch order {
	case orderLatencyAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Latency < out[j].Latency })
	case orderLatencyDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Latency > out[j].Latency })
	}
	return out
}

func outcomeBadge(outcome string) string {
	label := fmt.Sprintf("%-8s", outcome)
	switch outcome {
	case "Hit":
		return outcomeHitStyle.Render(label)
	case "Miss", "Abort":
		return outcomeMissStyle.Render(label)
	default:
		return outcomeOtherStyle.Render(label)
	}
}

// measure right-aligns v in width columns; padding is applied before styling.
func measure(v float64, width, prec int) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nonFiniteStyle.Render(fmt.Sprintf("%*v", width, v))
	}
	return fmt.Sprintf("%*.*f", width, prec, v)
}

func nonFiniteCount(rows []runner.Row) int {
	n := 0
	for _, r := range rows {
		if math.IsInf(r.Velocity, 0) || math.IsNaN(r.Velocity) ||
			math.IsInf(r.Accuracy, 0) || math.IsNaN(r.Accuracy) {
			n++
		}
	}
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Run starts the TUI for the given result.
func Run(res *runner.Result, filename string) error {
	p := tea.NewProgram(New(res, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
