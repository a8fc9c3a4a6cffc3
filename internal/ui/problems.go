package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/five82/sluice/internal/errstore"
	"github.com/five82/sluice/internal/pipelines"
)

// problemSection is one subject's records as shown in the problems view.
type problemSection struct {
	title   string
	records []errstore.Record
}

// problemSections orders the held records list first, newest record first
// within each subject.
func problemSections(problems map[string][]errstore.Record, selectedID string) []problemSection {
	subjects := make([]string, 0, len(problems))
	for subject := range problems {
		subjects = append(subjects, subject)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjectRank(subjects[i]) < subjectRank(subjects[j]) ||
			subjectRank(subjects[i]) == subjectRank(subjects[j]) && subjects[i] < subjects[j]
	})

	out := make([]problemSection, 0, len(subjects))
	for _, subject := range subjects {
		records := append([]errstore.Record(nil), problems[subject]...)
		if len(records) == 0 {
			continue
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Time.After(records[j].Time)
		})
		title := subject
		switch subject {
		case pipelines.SubjectList:
			title = "Pipeline list"
		case pipelines.SubjectDetail:
			title = "Pipeline " + selectedID
		}
		out = append(out, problemSection{title: title, records: records})
	}
	return out
}

func subjectRank(subject string) int {
	switch subject {
	case pipelines.SubjectList:
		return 0
	case pipelines.SubjectDetail:
		return 1
	default:
		return 2
	}
}

func (m Model) problemCount() int {
	n := 0
	for _, records := range m.problems {
		n += len(records)
	}
	return n
}

// renderProblemsContent renders the problems viewport body.
func (m Model) renderProblemsContent() string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	sections := problemSections(m.problems, m.selectedID)
	if len(sections) == 0 {
		return styles.SuccessText.Render("No problems recorded")
	}

	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.AccentText.Bold(true).Render(fmt.Sprintf("%s (%d)", sec.title, len(sec.records))))
		b.WriteString("\n")
		for _, rec := range sec.records {
			ts := "--:--:--"
			if !rec.Time.IsZero() {
				ts = rec.Time.Format("15:04:05")
			}
			b.WriteString(styles.FaintText.Render(ts))
			b.WriteString("  ")
			b.WriteString(styles.DangerText.Render(rec.Code))
			if rec.StatusCode > 0 {
				b.WriteString(styles.WarningText.Render(fmt.Sprintf(" [%d]", rec.StatusCode)))
			}
			b.WriteString("\n")
			if rec.Cause != nil {
				b.WriteString(styles.MutedText.Render("          " + rec.Cause.Error()))
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderProblems renders the problems view.
func (m Model) renderProblems() string {
	title := "Problems"
	if n := m.problemCount(); n > 0 {
		title = fmt.Sprintf("Problems (%d)", n)
	}
	return m.renderTitledBox(title, m.problemsViewport.View(), m.width, m.height-headerLines, true)
}
