package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testDir() *directory.Directory {
	d := directory.New()
	d.AddClient(directory.Client{Number: "4211", Name: "Microsoft"})
	d.AddClient(directory.Client{Number: "4365", Name: "VMWare"})
	d.AddMatter(directory.Matter{Number: "488", ClientNumber: "4211", Description: "Derivative Securities Litigation"})
	d.AddMatter(directory.Matter{Number: "011", ClientNumber: "4365", Description: "Splunk Acquisition"})
	return d
}

func testReport() *reconcile.Report {
	return &reconcile.Report{
		Date:          "2025-03-30",
		Intervals:     3,
		LoggedMinutes: 20,
		Result: billing.Result{Entries: []billing.Entry{
			{Variant: billing.VariantTask, ClientName: "Microsoft", ClientNumber: "4211", MatterNumber: "488",
				MatterDescr: "Derivative Securities Litigation", TaskDescr: "Drafted brief", TimeBilled: 12, Date: "2025-03-30"},
			{Variant: billing.VariantTask, ClientName: "Acme", ClientNumber: "1", MatterNumber: "999",
				MatterDescr: "Invented", TaskDescr: "Reviewed inbox", TimeBilled: 8, Date: "2025-03-30"},
		}},
	}
}

func send(a *App, keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = a.Update(key(k))
	}
	return cmd
}

func TestApp_DeleteAndAccept(t *testing.T) {
	report := testReport()
	a := NewApp(context.Background(), "2025-03-30", nil, report, testDir())
	require.Equal(t, reviewView, a.state)
	assert.Contains(t, a.View(), "(not in directory)")

	send(a, "down", "d", "a")

	require.NotNil(t, a.GetResult())
	assert.True(t, a.GetResult().Accepted)
	require.Len(t, a.GetResult().Entries, 1)
	assert.Equal(t, "488", a.GetResult().Entries[0].MatterNumber)
	assert.Len(t, report.Entries(), 2, "the report itself is not modified")
	assert.Contains(t, a.View(), "1 entries accepted")

	cmd := send(a, "x")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestApp_QuitDiscards(t *testing.T) {
	a := NewApp(context.Background(), "2025-03-30", nil, testReport(), testDir())
	cmd := send(a, "q")

	require.NotNil(t, a.GetResult())
	assert.False(t, a.GetResult().Accepted)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestApp_RunsThenReviews(t *testing.T) {
	calls := 0
	run := func(context.Context) (*reconcile.Report, error) {
		calls++
		return testReport(), nil
	}
	a := NewApp(context.Background(), "2025-03-30", run, nil, testDir())
	require.Equal(t, loadingView, a.state)
	assert.Contains(t, a.View(), "Reconciling 2025-03-30")

	a.Update(a.reconcile()())
	assert.Equal(t, reviewView, a.state)
	assert.Equal(t, 1, calls)
	assert.Len(t, a.review.entries, 2)
}

func TestApp_ErrorThenRetry(t *testing.T) {
	fail := true
	run := func(context.Context) (*reconcile.Report, error) {
		if fail {
			return nil, errors.New("openai generation failed: 503")
		}
		return testReport(), nil
	}
	a := NewApp(context.Background(), "2025-03-30", run, nil, testDir())

	a.Update(a.reconcile()())
	require.Equal(t, confirmationView, a.state)
	assert.Contains(t, a.View(), "503")

	fail = false
	send(a, "r")
	require.Equal(t, loadingView, a.state)
	a.Update(a.reconcile()())
	assert.Equal(t, reviewView, a.state)
}

func TestApp_EditTimeAndMatter(t *testing.T) {
	a := NewApp(context.Background(), "2025-03-30", nil, testReport(), testDir())
	send(a, "down", "e")
	require.Equal(t, editView, a.state)
	assert.Equal(t, 1, a.edit.cursor)

	// matter
	send(a, "enter")
	require.True(t, a.edit.editing)
	send(a, "s", "p", "l")
	assert.Len(t, a.edit.filtered, 1)
	send(a, "enter")

	// time
	send(a, "tab", "enter")
	assert.Equal(t, "8.0", a.edit.textInput.Value())
	a.edit.textInput.SetValue("15.5")
	send(a, "enter")

	send(a, "esc")
	require.Equal(t, reviewView, a.state)

	e := a.review.entries[1]
	assert.Equal(t, "011", e.MatterNumber)
	assert.Equal(t, "Splunk Acquisition", e.MatterDescr)
	assert.Equal(t, "4365", e.ClientNumber)
	assert.Equal(t, "VMWare", e.ClientName)
	assert.Equal(t, 15.5, e.TimeBilled)
	assert.NotContains(t, a.View(), "(not in directory)")
}

func TestApp_EmptyReportShowsDiagnostic(t *testing.T) {
	report := &reconcile.Report{Result: billing.Parse("not json", billing.Options{})}
	a := NewApp(context.Background(), "2025-03-30", nil, report, testDir())

	view := a.View()
	assert.Contains(t, view, "No entries.")
	assert.Contains(t, view, "not json")

	send(a, "e")
	assert.Equal(t, reviewView, a.state, "nothing to edit")
}

func TestKeysStyleLeavesMutedStyleAlone(t *testing.T) {
	assert.Equal(t, 0, mutedStyle.GetMarginTop())
	assert.Equal(t, 1, keysStyle.GetMarginTop())
	assert.Equal(t, mutedStyle.GetForeground(), keysStyle.GetForeground())
}

func TestApplyNarrative(t *testing.T) {
	e := billing.Entry{Variant: billing.VariantSummary, WorkSummary: []string{"old"}}
	applyNarrative(&e, "Drafted brief\n\n  Reviewed filings  \n")
	assert.Equal(t, []string{"Drafted brief", "Reviewed filings"}, e.WorkSummary)

	task := billing.Entry{Variant: billing.VariantTask, TaskDescr: "old"}
	applyNarrative(&task, "   ")
	assert.Equal(t, "old", task.TaskDescr)
	applyNarrative(&task, "Drafted\nbrief")
	assert.Equal(t, "Drafted brief", task.TaskDescr)
}

func TestFilterMatters(t *testing.T) {
	matters := testDir().Matters()
	assert.Len(t, filterMatters(matters, ""), 2)
	assert.Len(t, filterMatters(matters, "48"), 1)
	assert.Len(t, filterMatters(matters, "ACQUISITION"), 1)
	assert.Empty(t, filterMatters(matters, "zoning"))
}
