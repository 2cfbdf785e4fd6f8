// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/metrics"
	"github.com/Thermoquad/foclink/pkg/session"
	"github.com/Thermoquad/foclink/pkg/telemetry"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	mgr      *monitorManager
	connInfo string

	traces  []telemetry.Trace
	metrics metrics.Snapshot
	buffer  telemetry.BufferStats

	eventLog      []eventLogEntry
	maxLogEntries int

	prompt textinput.Model

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type renderedMsg struct {
	points int
}

type tracesChangedMsg struct {
	traces []telemetry.Trace
}

type statsMsg struct {
	metrics metrics.Snapshot
	buffer  telemetry.BufferStats
}

type eventMsg struct {
	text    string
	isError bool
}

type commandResultMsg struct {
	line   string
	result session.Result
	err    error
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(mgr *monitorManager) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "get VELOCITY | set TARGET 1.5 | telemetry 0 VELOCITY 200hz"
	ti.CharLimit = 200
	ti.Width = 60
	ti.Prompt = "> "
	ti.Focus()

	m := monitorModel{
		mgr:           mgr,
		connInfo:      mgr.connInfo,
		traces:        mgr.series.Traces(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		prompt:        ti,
		width:         80,
		height:        24,
	}
	m.addLogEntry(fmt.Sprintf("Streaming %d registers at %g Hz", len(m.traces), mgr.cfg.Monitor.FrequencyHz), false)
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "ctrl+r":
			m.mgr.session.ResetStats()
			m.addLogEntry("Link statistics reset", false)
			return m, nil

		case "enter":
			line := strings.TrimSpace(m.prompt.Value())
			m.prompt.Reset()
			if line == "" {
				return m, nil
			}
			if m.connectionLost {
				m.addLogEntry("Cannot send command: connection lost", true)
				return m, nil
			}
			return m, m.mgr.execute(line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.Width = max(10, msg.Width-8)

	case renderedMsg:
		// The series already holds the new points; returning redraws

	case tracesChangedMsg:
		m.traces = msg.traces
		m.addLogEntry(fmt.Sprintf("Now plotting %d traces", len(msg.traces)), false)

	case statsMsg:
		m.metrics = msg.metrics
		m.buffer = msg.buffer

	case eventMsg:
		m.addLogEntry(msg.text, msg.isError)

	case commandResultMsg:
		m.handleCommandResult(msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected - telemetry reconfigured", false)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *monitorModel) handleCommandResult(msg commandResultMsg) {
	switch {
	case errors.Is(msg.err, session.ErrNoAction):
		m.addLogEntry(fmt.Sprintf("Ignored: %s", msg.line), true)
	case msg.err != nil:
		m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
	case msg.result.Answered:
		m.addLogEntry(m.mgr.session.Catalog().FormatResponse(msg.result.Response), false)
	case msg.result.Action.Kind == foclink.ActionRead:
		m.addLogEntry(fmt.Sprintf("%s: no answer", m.mgr.session.Catalog().Name(msg.result.Action.RegisterID)), true)
	default:
		m.addLogEntry(fmt.Sprintf("Sent %s", msg.result.Action.Kind), false)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("FOCLINK MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Esc=quit Ctrl+R=reset stats", connStatus)))
	s.WriteString("\n\n")

	s.WriteString(m.renderTraces(statsLabelStyle, statsValueStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderMetricsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.prompt.View())
	s.WriteString("\n")

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderTraces(statsLabelStyle, statsValueStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("TELEMETRY"))
	content.WriteString("\n")

	series := m.mgr.series
	last, ts, ok := series.Last()
	if !ok {
		content.WriteString(headerStyle.Render("  (waiting for telemetry)"))
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	nameWidth := 0
	for _, t := range m.traces {
		nameWidth = max(nameWidth, len(t.Name))
	}
	sparkWidth := max(10, m.width-nameWidth-24)

	for i, t := range m.traces {
		if i >= len(last) {
			break
		}
		content.WriteString(fmt.Sprintf("%-*s %s %s\n",
			nameWidth, t.Name,
			statsValueStyle.Render(fmt.Sprintf("%12s", strconv.FormatFloat(last[i], 'g', 6, 64))),
			sparkline(series.Values(i), sparkWidth)))
	}
	content.WriteString(headerStyle.Render(fmt.Sprintf("%d points, last %s", series.Len(), ts.Format("15:04:05.000"))))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m monitorModel) renderMetricsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	counter := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return statsValueStyle.Render("0")
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Ingest:"), statsValueStyle.Render(fmt.Sprintf("%.0f/s", m.metrics.IngestSamplesPerSec)),
		statsLabelStyle.Render("Render:"), statsValueStyle.Render(fmt.Sprintf("%.1f fps", m.metrics.RenderFPS)),
		statsLabelStyle.Render("Buffer:"), statsValueStyle.Render(fmt.Sprintf("%.0f%% of %d", m.buffer.Utilization*100, m.buffer.Capacity)),
		statsLabelStyle.Render("Dropped:"), counter(m.metrics.DroppedSamples),
		statsLabelStyle.Render("CRC:"), counter(m.metrics.CRCErrors),
		statsLabelStyle.Render("Framing:"), counter(m.metrics.FramingErrors),
		statsLabelStyle.Render("Unknown schema:"), counter(m.metrics.SchemaMisses),
		statsLabelStyle.Render("Bad commands:"), counter(m.metrics.ParseErrors),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(6, len(m.eventLog))
	for _, entry := range m.eventLog[len(m.eventLog)-logHeight:] {
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(m.width - 4).Render(strings.TrimRight(s.String(), "\n"))
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the last width values scaled to their own range
func sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		level := 0
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[level]
	}
	return string(out)
}
