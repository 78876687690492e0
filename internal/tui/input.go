package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/christopherklint97/billr/internal/billing"
)

// newNarrativeInput edits an entry's narrative, one work summary line per
// textarea line.
func newNarrativeInput(e billing.Entry) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "Describe the work in billing language..."
	ta.CharLimit = 2000
	ta.SetWidth(70)
	ta.SetHeight(4)
	ta.ShowLineNumbers = false

	if e.Variant == billing.VariantSummary {
		ta.SetValue(strings.Join(e.WorkSummary, "\n"))
	} else {
		ta.SetValue(e.TaskDescr)
	}
	return ta
}

// applyNarrative writes the textarea contents back. Blank input leaves the
// entry unchanged.
func applyNarrative(e *billing.Entry, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	if e.Variant == billing.VariantSummary {
		var lines []string
		for _, l := range strings.Split(value, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		e.WorkSummary = lines
		return
	}
	e.TaskDescr = strings.Join(strings.Fields(value), " ")
}
