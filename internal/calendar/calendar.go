// Package calendar reads meetings from an iCalendar feed so reconciliation
// can see time that never shows up as a foreground window.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/hashicorp/go-retryablehttp"
)

type Event struct {
	Summary   string
	StartTime time.Time
	EndTime   time.Time
}

// Fetcher loads events from an ICS URL or file path.
type Fetcher struct {
	Source string
	HTTP   *http.Client
}

func NewFetcher(source string) *Fetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &Fetcher{Source: source, HTTP: rc.StandardClient()}
}

// Day returns the events overlapping the local calendar day containing t.
func (f *Fetcher) Day(ctx context.Context, t time.Time) ([]Event, error) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return f.Fetch(ctx, start, start.AddDate(0, 0, 1))
}

// Fetch returns events overlapping [windowStart, windowEnd), ordered by
// start time.
func (f *Fetcher) Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]Event, error) {
	r, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	events, err := decode(r, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}

func (f *Fetcher) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(f.Source, "http://") && !strings.HasPrefix(f.Source, "https://") {
		file, err := os.Open(f.Source)
		if err != nil {
			return nil, fmt.Errorf("opening calendar file: %w", err)
		}
		return file, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func decode(r io.Reader, windowStart, windowEnd time.Time) ([]Event, error) {
	dec := ical.NewDecoder(r)
	var events []Event

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := ical.Event{Component: component}

			start, err := event.DateTimeStart(time.Local)
			if err != nil {
				continue // skip malformed events
			}
			end, err := event.DateTimeEnd(time.Local)
			if err != nil {
				continue
			}

			if !start.Before(windowEnd) || !end.After(windowStart) {
				continue
			}
			summary, _ := event.Props.Text(ical.PropSummary)
			if summary == "" {
				continue
			}
			events = append(events, Event{Summary: summary, StartTime: start, EndTime: end})
		}
	}

	return events, nil
}
