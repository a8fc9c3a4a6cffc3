package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{bg.Render("sluice", styles.Logo)}

	switch {
	case m.status != nil && m.status.Offline():
		parts = append(parts,
			bg.Render("● OFFLINE", styles.DangerText),
			bg.Render(fmt.Sprintf("retrying (%d failures)", m.status.Failures()), styles.WarningText),
		)
	case m.list == nil:
		parts = append(parts, bg.Render("Connecting...", styles.WarningText.Bold(true)))
	default:
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	}

	if m.list != nil {
		running, failed := m.countStates()
		parts = append(parts,
			bg.Render("Pipelines:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", len(m.list.Data)), styles.Text),
			bg.Render("Running:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", running), styles.InfoText),
		)
		failedStyle := styles.Text
		if failed > 0 {
			failedStyle = styles.DangerText
		}
		parts = append(parts, bg.Render("Failed:", styles.MutedText)+bg.Space()+bg.Render(fmt.Sprintf("%d", failed), failedStyle))
	}
	if n := m.problemCount(); n > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("Problems: %d", n), styles.WarningText))
	}
	if !m.lastUpdated.IsZero() && m.width >= 100 {
		parts = append(parts, bg.Render("Updated "+m.lastUpdated.Format("15:04:05"), styles.FaintText))
	}
	if m.notice != "" {
		parts = append(parts, bg.Render(m.notice, styles.AccentText))
	} else if m.apiURL != "" && m.width >= wideLayout {
		parts = append(parts, bg.Render(m.apiURL, styles.FaintText))
	}

	return styles.Header.MaxWidth(m.width).Width(m.width).Render(bg.Join(parts, "  "))
}

// renderCommandBar renders the short key help line.
func (m Model) renderCommandBar() string {
	h := m.help
	h.ShowAll = false
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning))
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Muted))
	h.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Faint))
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Width(m.width).
		MaxWidth(m.width).
		Padding(0, 1).
		Render(h.View(m.keys))
}

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	h := m.help
	h.ShowAll = true
	h.Styles.FullKey = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning))
	h.Styles.FullDesc = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Text))
	h.Styles.FullSeparator = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Faint))

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(h.View(m.keys))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("Press any key to close"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
			Padding(1, 2).
			Render(b.String()),
	)
}
