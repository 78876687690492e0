package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/directory"
)

type editField int

const (
	editMatter editField = iota
	editTime
	editNarrative
)

var fieldNames = []string{"Matter", "Time", "Narrative"}

type editModel struct {
	entries   []billing.Entry
	dir       *directory.Directory
	matters   []directory.Matter
	cursor    int
	field     editField
	textInput textinput.Model
	narrative textarea.Model
	editing   bool
	filtered  []directory.Matter
}

func newEditModel(entries []billing.Entry, cursor int, dir *directory.Directory) editModel {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50

	own := make([]billing.Entry, len(entries))
	copy(own, entries)

	return editModel{
		entries:   own,
		dir:       dir,
		matters:   dir.Matters(),
		cursor:    cursor,
		textInput: ti,
	}
}

func (m editModel) Update(msg tea.Msg) (editModel, tea.Cmd) {
	if m.editing {
		return m.updateEditing(msg)
	}
	return m.updateNavigating(msg)
}

func (m editModel) updateNavigating(msg tea.Msg) (editModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "tab":
		m.field = (m.field + 1) % 3
	case "shift+tab":
		m.field = (m.field + 2) % 3
	case "enter":
		m.editing = true
		e := m.entries[m.cursor]
		switch m.field {
		case editMatter:
			m.textInput.SetValue("")
			m.textInput.Placeholder = "Search matter by number or description..."
			m.filtered = m.matters
		case editTime:
			if e.Variant == billing.VariantSummary {
				m.textInput.SetValue(e.TimeBilledText)
			} else {
				m.textInput.SetValue(strconv.FormatFloat(e.TimeBilled, 'f', 1, 64))
			}
			m.textInput.Placeholder = "Minutes"
		case editNarrative:
			m.narrative = newNarrativeInput(e)
			cmd := m.narrative.Focus()
			return m, cmd
		}
		cmd := m.textInput.Focus()
		return m, cmd
	}
	return m, nil
}

func (m editModel) updateEditing(msg tea.Msg) (editModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "ctrl+s":
			if m.field == editNarrative {
				m.applyEdit()
				m.stopEditing()
				return m, nil
			}
		case "enter":
			if m.field != editNarrative {
				m.applyEdit()
				m.stopEditing()
				return m, nil
			}
		case "esc":
			m.stopEditing()
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.field == editNarrative {
		m.narrative, cmd = m.narrative.Update(msg)
		return m, cmd
	}

	m.textInput, cmd = m.textInput.Update(msg)
	if m.field == editMatter {
		m.filtered = filterMatters(m.matters, m.textInput.Value())
	}
	return m, cmd
}

func (m *editModel) stopEditing() {
	if m.field == editNarrative {
		m.narrative.Blur()
	}
	m.editing = false
	m.textInput.Blur()
}

func filterMatters(matters []directory.Matter, query string) []directory.Matter {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return matters
	}
	var out []directory.Matter
	for _, mt := range matters {
		if strings.HasPrefix(mt.Number, query) || strings.Contains(strings.ToLower(mt.Description), query) {
			out = append(out, mt)
		}
	}
	return out
}

func (m *editModel) applyEdit() {
	e := &m.entries[m.cursor]
	switch m.field {
	case editMatter:
		if len(m.filtered) > 0 {
			mt := m.filtered[0]
			e.MatterNumber = mt.Number
			e.MatterDescr = mt.Description
			e.ClientNumber = mt.ClientNumber
			if c, ok := m.dir.Client(mt.ClientNumber); ok {
				e.ClientName = c.Name
			}
		}
	case editTime:
		v := strings.TrimSpace(m.textInput.Value())
		if e.Variant == billing.VariantSummary {
			if v != "" {
				e.TimeBilledText = v
			}
			return
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			e.TimeBilled = f
		}
	case editNarrative:
		applyNarrative(e, m.narrative.Value())
	}
}

func (m editModel) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Edit Entries"))
	sb.WriteString("\n")

	for i, e := range m.entries {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}

		line := fmt.Sprintf("%s%-6s %-30s  %9s  %s", prefix, e.MatterNumber, truncate(e.MatterDescr, 30), timeLabel(e), describe(e))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Field: %s\n", cursorStyle.Render(fieldNames[m.field])))

	if m.editing {
		if m.field == editNarrative {
			sb.WriteString(m.narrative.View())
			sb.WriteString("\n")
			sb.WriteString(mutedStyle.Render("Ctrl+S: save • Esc: cancel"))
			sb.WriteString("\n")
		} else {
			sb.WriteString(m.textInput.View())
			sb.WriteString("\n")
		}

		if m.field == editMatter && len(m.filtered) > 0 {
			limit := min(5, len(m.filtered))
			for _, mt := range m.filtered[:limit] {
				sb.WriteString(fmt.Sprintf("  %s\n", mutedStyle.Render(mt.Number+": "+mt.Description)))
			}
		}
	}

	sb.WriteString("\n")
	sb.WriteString(keysStyle.Render("Enter: edit field • Tab: next field • j/k: nav • Esc: done editing"))

	return panelStyle.Render(sb.String())
}
