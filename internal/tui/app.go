package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
)

type viewState int

const (
	loadingView viewState = iota
	reviewView
	editView
	confirmationView
)

// Result is what the reviewer decided. Entries is only meaningful when
// Accepted is true.
type Result struct {
	Accepted bool
	Entries  []billing.Entry
	Report   *reconcile.Report
}

// RunFunc performs one reconciliation run.
type RunFunc func(ctx context.Context) (*reconcile.Report, error)

type reportMsg struct {
	report *reconcile.Report
	err    error
}

type App struct {
	state   viewState
	spinner spinner.Model
	review  reviewModel
	edit    editModel
	result  *Result
	errMsg  string

	ctx    context.Context
	run    RunFunc
	report *reconcile.Report
	dir    *directory.Directory
	title  string
}

// NewApp starts by calling run, then lets the user review the entries. A
// non-nil report skips the initial run.
func NewApp(ctx context.Context, title string, run RunFunc, report *reconcile.Report, dir *directory.Directory) *App {
	if dir == nil {
		dir = directory.New()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot

	a := &App{
		state:   loadingView,
		spinner: s,
		ctx:     ctx,
		run:     run,
		dir:     dir,
		title:   title,
	}
	if report != nil {
		a.setReport(report)
	}
	return a
}

func (a *App) Init() tea.Cmd {
	if a.state == loadingView {
		return tea.Batch(a.spinner.Tick, a.reconcile())
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			a.result = &Result{Report: a.report}
			return a, tea.Quit
		}
	case reportMsg:
		return a.handleReport(msg)
	}

	switch a.state {
	case loadingView:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case reviewView:
		return a.updateReview(msg)
	case editView:
		return a.updateEdit(msg)
	case confirmationView:
		return a.updateConfirmation(msg)
	}
	return a, nil
}

func (a *App) View() string {
	switch a.state {
	case loadingView:
		return a.spinner.View() + " Reconciling " + a.title + "..."
	case reviewView:
		return a.review.View()
	case editView:
		return a.edit.View()
	case confirmationView:
		if a.errMsg != "" {
			return failedStyle.Render("Error: ") + a.errMsg + "\n\n" + keysStyle.Render("[r]etry • any other key to exit")
		}
		return acceptedStyle.Render(fmt.Sprintf("%d entries accepted.", len(a.result.Entries))) + "\n\n" + keysStyle.Render("Press any key to exit")
	}
	return ""
}

// GetResult returns nil until the program has quit.
func (a *App) GetResult() *Result {
	return a.result
}

func (a *App) setReport(r *reconcile.Report) {
	a.report = r
	a.review = newReviewModel(a.title, r, a.dir)
	a.state = reviewView
}

func (a *App) handleReport(msg reportMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.state = confirmationView
		a.errMsg = msg.err.Error()
		return a, nil
	}
	a.setReport(msg.report)
	return a, nil
}

func (a *App) updateReview(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	switch keyMsg.String() {
	case "a", "enter":
		a.result = &Result{Accepted: true, Entries: a.review.entries, Report: a.report}
		a.state = confirmationView
		return a, nil
	case "e":
		if len(a.review.entries) == 0 {
			return a, nil
		}
		a.edit = newEditModel(a.review.entries, a.review.cursor, a.dir)
		a.state = editView
		return a, nil
	case "r":
		if a.run == nil {
			return a, nil
		}
		a.state = loadingView
		return a, tea.Batch(a.spinner.Tick, a.reconcile())
	case "q", "esc":
		a.result = &Result{Report: a.report}
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.review, cmd = a.review.Update(keyMsg)
	return a, cmd
}

func (a *App) updateEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if keyMsg.String() == "esc" && !a.edit.editing {
			a.review.entries = a.edit.entries
			a.review.cursor = a.edit.cursor
			a.state = reviewView
			return a, nil
		}
	}

	var cmd tea.Cmd
	a.edit, cmd = a.edit.Update(msg)
	return a, cmd
}

func (a *App) updateConfirmation(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}
	if a.errMsg != "" && keyMsg.String() == "r" && a.run != nil {
		a.errMsg = ""
		a.state = loadingView
		return a, tea.Batch(a.spinner.Tick, a.reconcile())
	}
	if a.result == nil {
		a.result = &Result{Report: a.report}
	}
	return a, tea.Quit
}

func (a *App) reconcile() tea.Cmd {
	run, ctx := a.run, a.ctx
	return func() tea.Msg {
		if run == nil {
			return reportMsg{err: fmt.Errorf("nothing to reconcile")}
		}
		report, err := run(ctx)
		return reportMsg{report: report, err: err}
	}
}

func describe(e billing.Entry) string {
	if e.Variant == billing.VariantSummary {
		return strings.Join(e.WorkSummary, "; ")
	}
	return e.TaskDescr
}

func timeLabel(e billing.Entry) string {
	if e.Variant == billing.VariantSummary {
		return e.TimeBilledText
	}
	return fmt.Sprintf("%.1f min", e.TimeBilled)
}
