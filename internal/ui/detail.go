package ui

import (
	"fmt"
	"strings"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/model"
	"github.com/five82/sluice/internal/pipelines"
)

func (m Model) detailTitle() string {
	if m.selectedID == "" {
		return "Details"
	}
	if m.detail != nil && m.detail.Status == model.StatusLoaded {
		return "Details: " + displayName(m.detail.Data.Pipeline)
	}
	return "Details: " + m.selectedID
}

// renderDetailContent renders the detail pane body for the held detail
// snapshot.
func (m Model) renderDetailContent() string {
	bgColor := m.theme.SurfaceAlt
	if m.focusedPane == 1 {
		bgColor = m.theme.FocusBg
	}
	styles := m.theme.Styles().WithBackground(bgColor)

	if m.selectedID == "" {
		return styles.MutedText.Render("Select a pipeline and press enter")
	}
	s := m.detail
	if s == nil || s.Status == model.StatusInitialized {
		return styles.MutedText.Render("Loading " + m.selectedID + "...")
	}

	var b strings.Builder
	if s.Status == model.StatusFailed {
		b.WriteString(styles.DangerText.Render("Refresh failed"))
		b.WriteString("\n")
		for _, rec := range s.ErrorRecords() {
			b.WriteString(styles.MutedText.Render("  " + describeRecord(rec)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	d := s.Data
	if d.Pipeline.ID == "" {
		if s.Status == model.StatusLoading {
			b.WriteString(styles.MutedText.Render("Loading " + m.selectedID + "..."))
		}
		return strings.TrimRight(b.String(), "\n")
	}

	now := m.now()
	p := d.Pipeline
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(styles.FaintText.Render(fmt.Sprintf("%-10s", label)))
		b.WriteString(styles.Text.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(styles.Text.Bold(true).Render(displayName(p)))
	b.WriteString("  ")
	b.WriteString(m.theme.Styles().StatusStyle(p.State).Render(strings.ToUpper(p.State)))
	b.WriteString("\n\n")
	field("ID", p.ID)
	field("Schedule", p.Schedule)
	field("Last run", humanizeAge(p.ParsedLastRunAt(), now))
	if p.LastError != "" {
		b.WriteString(styles.FaintText.Render(fmt.Sprintf("%-10s", "Error")))
		b.WriteString(styles.DangerText.Render(p.LastError))
		b.WriteString("\n")
	}

	if len(p.Stages) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.AccentText.Bold(true).Render("Stages"))
		b.WriteString("\n")
		for i, st := range p.Stages {
			line := fmt.Sprintf("%2d. %s", i+1, st.Name)
			if st.Kind != "" {
				line += " (" + st.Kind + ")"
			}
			b.WriteString(styles.Text.Render(line))
			if st.Status != "" {
				b.WriteString(" ")
				b.WriteString(m.theme.Styles().StatusStyle(st.Status).Render(st.Status))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.AccentText.Bold(true).Render(fmt.Sprintf("Recent runs (%d)", len(d.Runs))))
	b.WriteString("\n")
	if len(d.Runs) == 0 {
		b.WriteString(styles.MutedText.Render("No runs yet"))
		b.WriteString("\n")
	}
	for _, r := range d.Runs {
		b.WriteString(m.theme.Styles().StatusStyle(r.Status).Render(fmt.Sprintf("%-9s", r.Status)))
		b.WriteString(" ")
		b.WriteString(styles.Text.Render(truncate(r.ID, 12)))
		b.WriteString(" ")
		b.WriteString(styles.MutedText.Render(humanizeAge(r.ParsedStartedAt(), now)))
		if dur := formatDuration(r.Duration(now)); dur != "" {
			b.WriteString(styles.FaintText.Render("  " + dur))
		}
		b.WriteString("\n")
		if msg := strings.TrimSpace(r.Message); msg != "" {
			b.WriteString(styles.FaintText.Render("  " + msg))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// describeRecord renders a record as "code [status]: cause".
func describeRecord(rec errstore.Record) string {
	var b strings.Builder
	b.WriteString(rec.Code)
	if rec.StatusCode > 0 {
		fmt.Fprintf(&b, " [%d]", rec.StatusCode)
	}
	if rec.Cause != nil {
		b.WriteString(": ")
		b.WriteString(rec.Cause.Error())
	}
	return b.String()
}

// pipelineRoute is the route the detail pane mounts pipeline id under.
func pipelineRoute(id string) model.Params {
	return model.Params{pipelines.RouteKey: id}
}
