package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/sluice/internal/logtail"
)

// logTailLines is how many log lines the logs view keeps.
const logTailLines = 400

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

func readLogsCmd(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, logTailLines)
		return logsMsg{entries: entries, err: err}
	}
}

// handleLogs stores a fresh tail, staying pinned to the bottom when the view
// was already there.
func (m *Model) handleLogs(msg logsMsg) {
	follow := m.logViewport.AtBottom() || len(m.logEntries) == 0
	m.logErr = msg.err
	if msg.err == nil {
		m.logEntries = msg.entries
	}
	m.logViewport.SetContent(m.renderLogsContent())
	if follow {
		m.logViewport.GotoBottom()
	}
}

// renderLogsContent renders the logs viewport body.
func (m Model) renderLogsContent() string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	var b strings.Builder
	if m.logErr != nil {
		b.WriteString(styles.DangerText.Render("Cannot read log: " + m.logErr.Error()))
		b.WriteString("\n")
	}
	if len(m.logEntries) == 0 {
		b.WriteString(styles.MutedText.Render("No log entries yet"))
		return b.String()
	}
	for _, e := range m.logEntries {
		if !e.Time.IsZero() {
			b.WriteString(styles.FaintText.Render(e.Time.Local().Format("15:04:05")))
			b.WriteString(" ")
		}
		if e.Level != "" {
			b.WriteString(levelStyle(styles, e.Level).Render(fmt.Sprintf("%-5s", e.Level)))
			b.WriteString(" ")
		}
		b.WriteString(styles.Text.Render(e.Msg))
		for _, a := range e.Attrs {
			b.WriteString(" ")
			b.WriteString(styles.AccentText.Render(a.Key + "="))
			b.WriteString(styles.MutedText.Render(a.Value))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func levelStyle(styles Styles, level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return styles.DangerText
	case "WARN":
		return styles.WarningText
	case "DEBUG":
		return styles.FaintText
	default:
		return styles.InfoText
	}
}

// renderLogs renders the logs view.
func (m Model) renderLogs() string {
	title := "Logs"
	if m.logPath != "" {
		title = "Logs: " + m.logPath
	}
	return m.renderTitledBox(title, m.logViewport.View(), m.width, m.height-headerLines, true)
}
