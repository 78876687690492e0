// Package billing decodes and validates the billing entries returned by the
// generation service.
package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type ErrorKind int

const (
	KindMalformed ErrorKind = iota
	KindNotObject
	KindUnknownVariant
	KindMissingField
	KindWrongType
	KindInvalidValue
	KindUnknownField
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotObject:
		return "not an object"
	case KindUnknownVariant:
		return "unknown variant"
	case KindMissingField:
		return "missing field"
	case KindWrongType:
		return "wrong type"
	case KindInvalidValue:
		return "invalid value"
	case KindUnknownField:
		return "unknown field"
	}
	return "unknown"
}

// ParseError describes one problem found in the generation output. Index
// is the array position, or -1 when the whole document is affected.
type ParseError struct {
	Index int
	Field string
	Kind  ErrorKind
	Msg   string
}

func (e ParseError) Error() string {
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "entry %d: ", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

// Rejects reports whether the error caused its entry to be dropped.
func (e ParseError) Rejects() bool {
	return e.Kind != KindUnknownField
}

type Options struct {
	// DefaultDate fills a missing date on task entries when set.
	DefaultDate string
}

// Result is the outcome of Parse. An empty Entries slice means no usable
// result; Diagnostic then explains why.
type Result struct {
	Entries    []Entry
	Errors     []ParseError
	Diagnostic string
	Raw        string
	Cleaned    string
}

func (r Result) Empty() bool {
	return len(r.Entries) == 0
}

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
)

// StripFences removes a surrounding markdown code fence, optionally tagged
// json, and surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse decodes raw generation output. It never fails: malformed input
// yields an empty Result with a diagnostic containing the raw and cleaned
// text.
func Parse(raw string, opts Options) Result {
	res := Result{Raw: raw, Cleaned: StripFences(raw)}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(res.Cleaned), &items); err != nil {
		res.Errors = []ParseError{{Index: -1, Kind: KindMalformed, Msg: err.Error()}}
		res.Diagnostic = fmt.Sprintf("could not decode generation output as a JSON array: %v\n--- raw ---\n%s\n--- cleaned ---\n%s",
			err, res.Raw, res.Cleaned)
		return res
	}

	for i, item := range items {
		entry, errs := decodeEntry(i, item, opts)
		res.Errors = append(res.Errors, errs...)
		if !rejected(errs) {
			res.Entries = append(res.Entries, entry)
		}
	}

	switch {
	case len(items) == 0:
		res.Diagnostic = "generation output contained no entries"
	case len(res.Errors) > 0:
		lines := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			lines[i] = e.Error()
		}
		res.Diagnostic = fmt.Sprintf("%d of %d entries accepted\n%s", len(res.Entries), len(items), strings.Join(lines, "\n"))
	}
	return res
}

func rejected(errs []ParseError) bool {
	for _, e := range errs {
		if e.Rejects() {
			return true
		}
	}
	return false
}

var (
	commonFields  = []string{"client_name", "client_number", "matter_number", "matter_descr"}
	taskFields    = []string{"task_descr", "time_billed", "date"}
	summaryFields = []string{"work_summary", "time_billed"}
)

type fieldReader struct {
	index  int
	fields map[string]json.RawMessage
	errs   []ParseError
}

func (r *fieldReader) fail(field string, kind ErrorKind, msg string) {
	r.errs = append(r.errs, ParseError{Index: r.index, Field: field, Kind: kind, Msg: msg})
}

func (r *fieldReader) present(field string) bool {
	v, ok := r.fields[field]
	return ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// text reads a string field. Numbers are accepted for identifier-like
// fields since models often emit "4211" as 4211.
func (r *fieldReader) text(field string, allowNumber bool) string {
	if !r.present(field) {
		r.fail(field, KindMissingField, "")
		return ""
	}
	raw := r.fields[field]
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if allowNumber {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	r.fail(field, KindWrongType, "want string, got "+string(raw))
	return ""
}

func (r *fieldReader) minutes(field string) float64 {
	if !r.present(field) {
		r.fail(field, KindMissingField, "")
		return 0
	}
	raw := r.fields[field]
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			r.fail(field, KindWrongType, "want number, got "+string(raw))
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			r.fail(field, KindWrongType, "want number, got "+string(raw))
			return 0
		}
		f = parsed
	}
	if f < 0 {
		r.fail(field, KindInvalidValue, "negative time")
		return 0
	}
	return f
}

func (r *fieldReader) lines(field string) []string {
	if !r.present(field) {
		r.fail(field, KindMissingField, "")
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.fields[field], &out); err != nil {
		r.fail(field, KindWrongType, "want array of strings")
		return nil
	}
	return out
}

func (r *fieldReader) unknown(known ...[]string) {
	allowed := map[string]bool{}
	for _, set := range known {
		for _, f := range set {
			allowed[f] = true
		}
	}
	var extra []string
	for k := range r.fields {
		if !allowed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		r.fail(k, KindUnknownField, "")
	}
}

func decodeEntry(index int, item json.RawMessage, opts Options) (Entry, []ParseError) {
	r := &fieldReader{index: index}
	if err := json.Unmarshal(item, &r.fields); err != nil || r.fields == nil {
		return Entry{}, []ParseError{{Index: index, Kind: KindNotObject, Msg: string(item)}}
	}

	var e Entry
	switch {
	case r.present("task_descr"):
		e.Variant = VariantTask
	case r.present("work_summary"):
		e.Variant = VariantSummary
	default:
		return Entry{}, []ParseError{{Index: index, Kind: KindUnknownVariant, Msg: "neither task_descr nor work_summary present"}}
	}

	e.ClientName = r.text("client_name", false)
	e.ClientNumber = r.text("client_number", true)
	e.MatterNumber = r.text("matter_number", true)
	e.MatterDescr = r.text("matter_descr", false)

	switch e.Variant {
	case VariantTask:
		e.TaskDescr = r.text("task_descr", false)
		e.TimeBilled = r.minutes("time_billed")
		if !r.present("date") && opts.DefaultDate != "" {
			e.Date = opts.DefaultDate
		} else {
			e.Date = r.text("date", false)
			if e.Date != "" {
				if _, err := time.Parse("2006-01-02", e.Date); err != nil {
					r.fail("date", KindInvalidValue, "want YYYY-MM-DD, got "+e.Date)
				}
			}
		}
		r.unknown(commonFields, taskFields)
	case VariantSummary:
		e.WorkSummary = r.lines("work_summary")
		e.TimeBilledText = r.text("time_billed", true)
		r.unknown(commonFields, summaryFields)
	}

	return e, r.errs
}
