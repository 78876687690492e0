package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
)

type reviewModel struct {
	title   string
	report  *reconcile.Report
	dir     *directory.Directory
	entries []billing.Entry
	cursor  int
}

func newReviewModel(title string, r *reconcile.Report, dir *directory.Directory) reviewModel {
	entries := make([]billing.Entry, len(r.Entries()))
	copy(entries, r.Entries())
	return reviewModel{title: title, report: r, dir: dir, entries: entries}
}

func (m reviewModel) Update(msg tea.KeyMsg) (reviewModel, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "d", "x":
		if len(m.entries) == 0 {
			break
		}
		m.entries = append(m.entries[:m.cursor:m.cursor], m.entries[m.cursor+1:]...)
		if m.cursor >= len(m.entries) && m.cursor > 0 {
			m.cursor--
		}
	}
	return m, nil
}

func (m reviewModel) resolved(e billing.Entry) bool {
	_, ok := m.dir.Resolve(e.MatterNumber, e.MatterDescr)
	return ok
}

func (m reviewModel) billedMinutes() float64 {
	var total float64
	for _, e := range m.entries {
		total += e.TimeBilled
	}
	return total
}

func (m reviewModel) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Billing entries — " + m.title))
	sb.WriteString("\n")
	sb.WriteString(totalsStyle.Render(fmt.Sprintf("%d intervals • %.1f min logged • %.1f min billed",
		m.report.Intervals, m.report.LoggedMinutes, m.billedMinutes())))
	sb.WriteString("\n")

	if len(m.entries) == 0 {
		sb.WriteString(mutedStyle.Render("No entries."))
		sb.WriteString("\n")
		if m.report.Result.Diagnostic != "" {
			sb.WriteString(diagnosticStyle.Render(m.report.Result.Diagnostic))
			sb.WriteString("\n")
		}
	}

	for i, e := range m.entries {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}

		matter := fmt.Sprintf("%s / %s %s", e.ClientName, e.MatterNumber, e.MatterDescr)
		line := fmt.Sprintf("%s%-40s  %9s  %s", prefix, truncate(matter, 40), timeLabel(e), describe(e))

		switch {
		case i == m.cursor:
			line = cursorStyle.Render(line)
		case !m.resolved(e):
			line = unresolvedStyle.Render(line)
		}
		sb.WriteString(line)
		if !m.resolved(e) {
			sb.WriteString(" " + unresolvedStyle.Render("(not in directory)"))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(keysStyle.Render("[a]ccept • [e]dit • [d]elete • [r]etry • [q]uit"))

	return panelStyle.Render(sb.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
