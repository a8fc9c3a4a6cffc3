package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

// listColumns sizes the pipeline table columns to width.
func listColumns(width int) []table.Column {
	const (
		stateW   = 10
		lastRunW = 10
		stagesW  = 7
	)
	nameW := width - stateW - lastRunW - stagesW - 8
	if nameW < 12 {
		nameW = 12
	}
	return []table.Column{
		{Title: "Pipeline", Width: nameW},
		{Title: "State", Width: stateW},
		{Title: "Last run", Width: lastRunW},
		{Title: "Stages", Width: stagesW},
	}
}

// stateRank orders pipelines so the ones needing attention come first.
func stateRank(state string) int {
	switch strings.ToLower(state) {
	case pipelines.StateFailed:
		return 0
	case pipelines.StateRunning:
		return 1
	case pipelines.StatePaused:
		return 2
	case pipelines.StateIdle:
		return 3
	case pipelines.StateDisabled:
		return 5
	default:
		return 4
	}
}

// sortPipelines returns a copy ordered by state rank, then name.
func sortPipelines(items []pipelines.Pipeline) []pipelines.Pipeline {
	out := append([]pipelines.Pipeline(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := stateRank(out[i].State), stateRank(out[j].State)
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(displayName(out[i])) < strings.ToLower(displayName(out[j]))
	})
	return out
}

func displayName(p pipelines.Pipeline) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.ID
}

// updateTable rebuilds the table rows from the held list snapshot, keeping
// the cursor on the same pipeline when it is still listed.
func (m *Model) updateTable() {
	current := m.cursorID()
	var items []pipelines.Pipeline
	if m.list != nil {
		items = sortPipelines(m.list.Data)
	}

	now := m.now()
	rows := make([]table.Row, 0, len(items))
	ids := make([]string, 0, len(items))
	cursor := 0
	for i, p := range items {
		marker := ""
		if p.ID == m.selectedID {
			marker = "› "
		}
		rows = append(rows, table.Row{
			marker + displayName(p),
			p.State,
			humanizeAge(p.ParsedLastRunAt(), now),
			fmt.Sprintf("%d", len(p.Stages)),
		})
		ids = append(ids, p.ID)
		if p.ID == current {
			cursor = i
		}
	}
	m.rowIDs = ids
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
}

// cursorID returns the pipeline id under the table cursor.
func (m Model) cursorID() string {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rowIDs) {
		return ""
	}
	return m.rowIDs[idx]
}

// countStates returns how many listed pipelines are running and failed.
func (m Model) countStates() (running, failed int) {
	if m.list == nil {
		return 0, 0
	}
	for _, p := range m.list.Data {
		switch strings.ToLower(p.State) {
		case pipelines.StateRunning:
			running++
		case pipelines.StateFailed:
			failed++
		}
	}
	return running, failed
}

// renderPipelines renders the table and detail panes.
func (m Model) renderPipelines() string {
	listW, listH, detailW, detailH := m.paneSizes()

	title := "Pipelines"
	if m.list != nil {
		switch m.list.Status {
		case model.StatusLoaded:
			title = fmt.Sprintf("Pipelines (%d)", len(m.list.Data))
		case model.StatusFailed:
			title = "Pipelines (stale)"
		default:
			title = "Pipelines (" + m.list.Status.String() + ")"
		}
	}
	content := m.table.View()
	if m.list == nil || (m.list.Status == model.StatusLoaded && len(m.list.Data) == 0) {
		content = m.theme.Styles().MutedText.Render(emptyListText(m.list))
	}
	list := m.renderTitledBox(title, content, listW, listH, m.focusedPane == 0)
	detail := m.renderTitledBox(m.detailTitle(), m.detailViewport.View(), detailW, detailH, m.focusedPane == 1)

	if m.width >= wideLayout {
		return lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	}
	return list + "\n" + detail
}

func emptyListText(s *model.Snapshot[[]pipelines.Pipeline]) string {
	if s == nil {
		return "Connecting..."
	}
	return "No pipelines defined"
}
