// Package reconcile turns one day of the activity ledger into billing
// entries.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/calendar"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/google/uuid"
)

// LedgerReader is the read side of the activity store.
type LedgerReader interface {
	IntervalsForDay(ctx context.Context, day time.Time) ([]activity.Interval, error)
}

// EventSource supplies calendar events for a day.
type EventSource interface {
	Day(ctx context.Context, t time.Time) ([]calendar.Event, error)
}

// DirectoryLoader loads a fresh directory snapshot for each run.
type DirectoryLoader func(ctx context.Context) (*directory.Directory, error)

// FromFile loads the directory database at path.
func FromFile(path string) DirectoryLoader {
	return func(ctx context.Context) (*directory.Directory, error) {
		return directory.Load(ctx, path)
	}
}

type Pipeline struct {
	Directory   DirectoryLoader
	Ledger      LedgerReader
	Generator   ai.Generator
	Calendar    EventSource // optional
	Variant     billing.Variant
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Unresolved is an accepted entry whose matter is not in the directory.
type Unresolved struct {
	Index int
	Entry billing.Entry
}

func (u Unresolved) String() string {
	return fmt.Sprintf("entry %d: matter %s (%q) not found in directory", u.Index, u.Entry.MatterNumber, u.Entry.MatterDescr)
}

// Report is the outcome of one run. LoggedMinutes and BilledMinutes are
// reported side by side; nothing forces them to agree.
type Report struct {
	RunID         string
	Date          string
	Variant       billing.Variant
	Intervals     int
	Events        int
	Document      string
	Raw           string
	Result        billing.Result
	Unresolved    []Unresolved
	LoggedMinutes float64
	BilledMinutes float64
}

func (r *Report) Entries() []billing.Entry {
	return r.Result.Entries
}

// Run reconciles the local calendar day containing day. A directory or
// ledger failure aborts before the generator is called. An unusable
// response is not an error: the report's Result is empty and carries a
// diagnostic.
func (p *Pipeline) Run(ctx context.Context, day time.Time) (*Report, error) {
	report, logger := p.newReport(day)

	dir, err := p.prepare(ctx, day, report, logger)
	if err != nil {
		return nil, err
	}

	system, err := ai.SystemPrompt(p.Variant)
	if err != nil {
		return nil, err
	}

	logger.Info("requesting billing entries", "intervals", report.Intervals, "document_len", len(report.Document))
	raw, err := p.Generator.Generate(ctx, ai.Request{
		System:      system,
		Prompt:      report.Document,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating entries: %w", err)
	}
	report.Raw = raw

	report.Result = billing.Parse(raw, billing.Options{DefaultDate: report.Date})
	if report.Result.Empty() {
		logger.Warn("no usable billing entries", "diagnostic", report.Result.Diagnostic)
		return report, nil
	}
	for _, perr := range report.Result.Errors {
		logger.Debug("entry issue", "error", perr.Error(), "rejected", perr.Rejects())
	}

	for i, e := range report.Result.Entries {
		report.BilledMinutes += e.TimeBilled
		if _, ok := dir.Resolve(e.MatterNumber, e.MatterDescr); !ok {
			u := Unresolved{Index: i, Entry: e}
			report.Unresolved = append(report.Unresolved, u)
			logger.Warn("unresolved entry", "detail", u.String())
		}
	}
	logger.Info("reconciliation finished",
		"entries", len(report.Result.Entries),
		"unresolved", len(report.Unresolved),
		"logged_minutes", report.LoggedMinutes,
		"billed_minutes", report.BilledMinutes,
	)
	return report, nil
}

// Prepare builds the document without calling the generator.
func (p *Pipeline) Prepare(ctx context.Context, day time.Time) (*Report, error) {
	report, logger := p.newReport(day)
	if _, err := p.prepare(ctx, day, report, logger); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *Pipeline) newReport(day time.Time) (*Report, *slog.Logger) {
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	report := &Report{
		RunID:   uuid.NewString(),
		Date:    day.Format("2006-01-02"),
		Variant: p.Variant,
	}
	return report, logger.With("run_id", report.RunID, "date", report.Date)
}

// prepare fills the document and ledger totals of report and returns the
// directory snapshot the document was built from.
func (p *Pipeline) prepare(ctx context.Context, day time.Time, report *Report, logger *slog.Logger) (*directory.Directory, error) {
	dir, err := p.Directory(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading directory: %w", err)
	}
	clients, matters := dir.Len()
	logger.Debug("directory loaded", "clients", clients, "matters", matters)

	intervals, err := p.Ledger.IntervalsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("reading activity ledger: %w", err)
	}
	report.Intervals = len(intervals)
	for _, iv := range intervals {
		report.LoggedMinutes += iv.Minutes()
	}
	if len(intervals) == 0 {
		logger.Warn("activity ledger is empty for day")
	}

	var events []calendar.Event
	if p.Calendar != nil {
		events, err = p.Calendar.Day(ctx, day)
		if err != nil {
			logger.Warn("calendar unavailable, continuing without it", "error", err)
			events = nil
		}
		report.Events = len(events)
	}

	doc, err := ai.BuildDocument(ai.ContextInput{
		Directory: dir,
		Intervals: intervals,
		Events:    events,
		Date:      day,
		Variant:   p.Variant,
	})
	if err != nil {
		return nil, fmt.Errorf("building document: %w", err)
	}
	report.Document = doc
	return dir, nil
}
