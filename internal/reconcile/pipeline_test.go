package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/calendar"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	out   string
	err   error
	calls int
	last  ai.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req ai.Request) (string, error) {
	g.calls++
	g.last = req
	return g.out, g.err
}

type fakeCalendar struct {
	events []calendar.Event
	err    error
}

func (c fakeCalendar) Day(context.Context, time.Time) ([]calendar.Event, error) {
	return c.events, c.err
}

var day = time.Date(2025, 3, 30, 0, 0, 0, 0, time.Local)

func clock(h, m, sec int) time.Time {
	return time.Date(2025, 3, 30, h, m, sec, 0, time.Local)
}

func staticDirectory() DirectoryLoader {
	return func(context.Context) (*directory.Directory, error) {
		d := directory.New()
		d.AddClient(directory.Client{Number: "4211", Name: "Microsoft"})
		d.AddMatter(directory.Matter{Number: "488", ClientNumber: "4211", Description: "Derivative Securities Litigation"})
		return d, nil
	}
}

func seededLedger(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "activity_log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.AppendInterval(ctx, activity.Interval{
		Start: clock(9, 0, 0), App: "Microsoft Word", Title: "Derivative brief.docx", Duration: 2,
	}))
	require.NoError(t, db.AppendInterval(ctx, activity.Interval{
		Start: clock(9, 0, 2), App: "Outlook", Title: "Inbox", Duration: 598,
	}))
	return db
}

func TestRun(t *testing.T) {
	gen := &fakeGenerator{out: "```json\n[{\"client_name\":\"Microsoft\",\"client_number\":\"4211\",\"matter_number\":\"488\",\"matter_descr\":\"Derivative Securities Litigation\",\"task_descr\":\"x\",\"time_billed\":5.0,\"date\":\"2025-03-30\"}]\n```"}
	p := &Pipeline{
		Directory:   staticDirectory(),
		Ledger:      seededLedger(t),
		Generator:   gen,
		Variant:     billing.VariantTask,
		Temperature: 0.3,
		MaxTokens:   800,
	}

	report, err := p.Run(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 0.3, gen.last.Temperature)
	assert.Equal(t, 800, gen.last.MaxTokens)
	assert.Equal(t, report.Document, gen.last.Prompt)
	assert.Contains(t, gen.last.Prompt, "9:00 AM — Microsoft Word — Derivative brief.docx — 0.0 min")
	assert.Contains(t, gen.last.System, "task_descr")

	require.Len(t, report.Entries(), 1)
	assert.Equal(t, 5.0, report.Entries()[0].TimeBilled)
	assert.Empty(t, report.Unresolved)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2025-03-30", report.Date)
	assert.Equal(t, 2, report.Intervals)
	assert.InDelta(t, 10.0, report.LoggedMinutes, 1e-9)
	assert.InDelta(t, 5.0, report.BilledMinutes, 1e-9)
}

func TestRun_DirectoryUnavailableSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{out: "[]"}
	p := &Pipeline{
		Directory: FromFile(filepath.Join(t.TempDir(), "missing.db")),
		Ledger:    seededLedger(t),
		Generator: gen,
		Variant:   billing.VariantTask,
	}

	_, err := p.Run(context.Background(), day)
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrUnavailable)
	assert.Zero(t, gen.calls)
}

func TestRun_GenerationError(t *testing.T) {
	cause := &ai.GenerationError{Provider: "openai", Err: errors.New("503")}
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    seededLedger(t),
		Generator: &fakeGenerator{err: cause},
		Variant:   billing.VariantTask,
	}

	_, err := p.Run(context.Background(), day)
	var genErr *ai.GenerationError
	assert.ErrorAs(t, err, &genErr)
}

func TestRun_MalformedResponseIsEmptyReport(t *testing.T) {
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    seededLedger(t),
		Generator: &fakeGenerator{out: "not json"},
		Variant:   billing.VariantTask,
	}

	report, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.True(t, report.Result.Empty())
	assert.Contains(t, report.Result.Diagnostic, "not json")
}

func TestRun_EmptyLedgerStillGenerates(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "activity_log.db"))
	require.NoError(t, err)
	defer db.Close()

	gen := &fakeGenerator{out: "[]"}
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    db,
		Generator: gen,
		Variant:   billing.VariantTask,
	}

	report, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.last.Prompt, "- Microsoft (4211):")
	assert.Zero(t, report.Intervals)
	assert.True(t, report.Result.Empty())
}

func TestRun_UnresolvedEntries(t *testing.T) {
	gen := &fakeGenerator{out: `[{"client_name":"Acme","client_number":"1","matter_number":"999","matter_descr":"Invented Matter","task_descr":"x","time_billed":3}]`}
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    seededLedger(t),
		Generator: gen,
		Variant:   billing.VariantTask,
	}

	report, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, report.Entries(), 1)
	assert.Equal(t, "2025-03-30", report.Entries()[0].Date, "missing date defaults to the run day")
	require.Len(t, report.Unresolved, 1)
	assert.Contains(t, report.Unresolved[0].String(), "matter 999")
}

func TestRun_CalendarFailureIsNotFatal(t *testing.T) {
	gen := &fakeGenerator{out: "[]"}
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    seededLedger(t),
		Generator: gen,
		Calendar:  fakeCalendar{err: errors.New("offline")},
		Variant:   billing.VariantTask,
	}

	_, err := p.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestPrepare_IncludesCalendar(t *testing.T) {
	gen := &fakeGenerator{}
	p := &Pipeline{
		Directory: staticDirectory(),
		Ledger:    seededLedger(t),
		Generator: gen,
		Calendar: fakeCalendar{events: []calendar.Event{{
			Summary:   "Derivative team meeting",
			StartTime: clock(10, 0, 0),
			EndTime:   clock(11, 0, 0),
		}}},
		Variant: billing.VariantTask,
	}

	report, err := p.Prepare(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, gen.calls)
	assert.Equal(t, 1, report.Events)
	assert.Contains(t, report.Document, "10:00 AM–11:00 AM — Derivative team meeting")
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil, "json"))
	assert.Equal(t, "[]\n", buf.String())

	entries := []billing.Entry{{Variant: billing.VariantTask, ClientName: "Microsoft", TaskDescr: "x", TimeBilled: 5, Date: "2025-03-30"}}

	buf.Reset()
	require.NoError(t, Encode(&buf, entries, "yaml"))
	assert.Contains(t, buf.String(), "task_descr: x")

	assert.Error(t, Encode(&buf, entries, "xml"))
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	report := &Report{Date: "2025-03-30", Result: billing.Result{Entries: []billing.Entry{
		{Variant: billing.VariantTask, TaskDescr: "x", TimeBilled: 5, Date: "2025-03-30"},
	}}}

	path, err := Save(dir, report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "billing", "2025-03-30.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0]["task_descr"])
}

func TestParseDate(t *testing.T) {
	now := time.Date(2025, 3, 30, 15, 4, 5, 0, time.Local)

	d, err := ParseDate("", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-30 00:00:00", d.Format("2006-01-02 15:04:05"))

	d, err = ParseDate("2025-01-02", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.Local), d)

	for _, bad := range []string{"2025-13-01", "03/30/2025", "yesterday", "2025-3-30"} {
		_, err := ParseDate(bad, now)
		assert.Error(t, err, bad)
	}
}
