package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/calendar"
	"github.com/christopherklint97/billr/internal/directory"
)

const (
	directoryHeader = "Here is a list of clients and their matters:"
	ledgerHeader    = "Here is a full-day log of activity:"
	calendarHeader  = "Here are the calendar events for the day:"

	systemRole = "You are a billing assistant for a corporate law firm. Given logs of activity and a list of client matters, generate billing entries for each matter."
)

// RenderDirectory lists matters grouped under their client, in the
// directory's traversal order.
func RenderDirectory(d *directory.Directory) string {
	type clientKey struct{ name, number string }

	var order []clientKey
	grouped := make(map[clientKey][]directory.Matter)
	for _, m := range d.Matters() {
		name := "Client " + m.ClientNumber
		if c, ok := d.Client(m.ClientNumber); ok {
			name = c.Name
		}
		key := clientKey{name: name, number: m.ClientNumber}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], m)
	}

	lines := []string{directoryHeader, ""}
	for _, key := range order {
		lines = append(lines, fmt.Sprintf("- %s (%s):", key.name, key.number))
		for _, m := range grouped[key] {
			lines = append(lines, fmt.Sprintf("  - %s: %s", m.Number, m.Description))
		}
	}
	return strings.Join(lines, "\n")
}

// LedgerLine formats one interval as "9:00 AM — app — title — 0.0 min".
func LedgerLine(iv activity.Interval) string {
	minutes := math.Round(iv.Minutes()*10) / 10
	return fmt.Sprintf("%s — %s — %s — %s min",
		iv.Start.Format("3:04 PM"),
		iv.App,
		iv.Title,
		strconv.FormatFloat(minutes, 'f', 1, 64),
	)
}

// RenderLedger renders every interval in the order given.
func RenderLedger(intervals []activity.Interval) string {
	lines := make([]string, 0, len(intervals)+2)
	lines = append(lines, ledgerHeader, "")
	for _, iv := range intervals {
		lines = append(lines, LedgerLine(iv))
	}
	return strings.Join(lines, "\n")
}

// RenderCalendar renders events as additional context. It returns "" when
// there are no events.
func RenderCalendar(events []calendar.Event) string {
	if len(events) == 0 {
		return ""
	}
	lines := []string{calendarHeader, ""}
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- %s–%s — %s",
			e.StartTime.Local().Format("3:04 PM"),
			e.EndTime.Local().Format("3:04 PM"),
			e.Summary,
		))
	}
	return strings.Join(lines, "\n")
}

// ContextInput is everything a reconciliation run feeds the builder.
type ContextInput struct {
	Directory *directory.Directory
	Intervals []activity.Interval
	Events    []calendar.Event
	Date      time.Time
	Variant   billing.Variant
}

// BuildDocument renders the full generation request body. Identical input
// always produces identical output.
func BuildDocument(in ContextInput) (string, error) {
	example, err := ExampleOutput(in.Variant, in.Date)
	if err != nil {
		return "", err
	}

	sections := []string{
		RenderDirectory(in.Directory),
		RenderLedger(in.Intervals),
	}
	if cal := RenderCalendar(in.Events); cal != "" {
		sections = append(sections, cal)
	}
	sections = append(sections, instruction(in.Variant, in.Date), example)
	return strings.Join(sections, "\n\n"), nil
}

func instruction(v billing.Variant, date time.Time) string {
	day := date.Format("2006-01-02")
	if v == billing.VariantSummary {
		return "Please analyze the activity log and assign each entry to the most likely client and matter from the list above. " +
			"Group your response by matter. For each matter, estimate the total time spent and provide a billing summary " +
			"in professional legal billing language. Use the client and matter numbers exactly as listed. " +
			"Respond with only a JSON array, one object per matter, in exactly this format:"
	}
	return "Please analyze the activity log and assign each entry to the most likely client and matter from the list above. " +
		"Produce one object per discrete task performed for a matter. Write task_descr in professional legal billing language, " +
		"set time_billed to the minutes spent as a number with one decimal, and use the date " + day + ". " +
		"Use the client and matter numbers exactly as listed and do not invent matters; leave out activity that belongs to no listed matter. " +
		"Respond with only a JSON array in exactly this format:"
}

// ExampleOutput returns the literal example array shown to the service.
func ExampleOutput(v billing.Variant, date time.Time) (string, error) {
	var record any
	switch v {
	case billing.VariantTask:
		record = billing.TaskRecord{
			ClientName:   "Microsoft",
			ClientNumber: "4211",
			MatterNumber: "488",
			MatterDescr:  "Derivative Securities Litigation",
			TaskDescr:    "Drafted and revised brief in support of motion to dismiss derivative complaint",
			TimeBilled:   42.5,
			Date:         date.Format("2006-01-02"),
		}
	case billing.VariantSummary:
		record = billing.SummaryRecord{
			ClientName:   "Microsoft",
			ClientNumber: "4211",
			MatterNumber: "488",
			MatterDescr:  "Derivative Securities Litigation",
			WorkSummary: []string{
				"Drafted and revised brief in support of motion to dismiss derivative complaint",
				"Reviewed correspondence from opposing counsel regarding discovery schedule",
			},
			TimeBilled: "1.2 hours",
		}
	default:
		return "", fmt.Errorf("no example for variant %s", v)
	}

	out, err := json.MarshalIndent([]any{record}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling example: %w", err)
	}
	return string(out), nil
}

// SystemPrompt returns the role and output contract for variant v.
func SystemPrompt(v billing.Variant) (string, error) {
	schema, err := billing.OutputSchema(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`%s

Output contract:
- Respond with a JSON array only. No prose, no markdown fences.
- Every element must validate against this JSON Schema:
%s
- Use only client and matter numbers that appear in the provided list.`, systemRole, schema), nil
}
