package billing

import (
	"encoding/json"
	"fmt"
)

// Variant identifies which output schema an entry was decoded from.
type Variant int

const (
	VariantUnknown Variant = iota
	// VariantSummary is the legacy per-matter schema with a work_summary list.
	VariantSummary
	// VariantTask is the canonical one-object-per-task schema.
	VariantTask
)

func (v Variant) String() string {
	switch v {
	case VariantSummary:
		return "summary"
	case VariantTask:
		return "task"
	default:
		return "unknown"
	}
}

// ParseVariant maps a config schema name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "task", "":
		return VariantTask, nil
	case "summary":
		return VariantSummary, nil
	}
	return VariantUnknown, fmt.Errorf("unknown schema %q (want task or summary)", s)
}

// Entry is one validated billing entry.
type Entry struct {
	Variant      Variant
	ClientName   string
	ClientNumber string
	MatterNumber string
	MatterDescr  string

	// VariantTask
	TaskDescr  string
	TimeBilled float64 // minutes
	Date       string  // YYYY-MM-DD

	// VariantSummary
	WorkSummary    []string
	TimeBilledText string
}

// TaskRecord is the wire shape of a VariantTask entry.
type TaskRecord struct {
	ClientName   string  `json:"client_name" yaml:"client_name" jsonschema:"description=Client name exactly as listed in the directory"`
	ClientNumber string  `json:"client_number" yaml:"client_number" jsonschema:"description=Client number from the directory"`
	MatterNumber string  `json:"matter_number" yaml:"matter_number" jsonschema:"description=Matter number from the directory"`
	MatterDescr  string  `json:"matter_descr" yaml:"matter_descr" jsonschema:"description=Matter description from the directory"`
	TaskDescr    string  `json:"task_descr" yaml:"task_descr" jsonschema:"description=One discrete task in professional legal billing language"`
	TimeBilled   float64 `json:"time_billed" yaml:"time_billed" jsonschema:"description=Minutes spent on the task rounded to one decimal"`
	Date         string  `json:"date" yaml:"date" jsonschema:"format=date,description=Day the work was performed (YYYY-MM-DD)"`
}

// SummaryRecord is the wire shape of a VariantSummary entry.
type SummaryRecord struct {
	ClientName   string   `json:"client_name" yaml:"client_name" jsonschema:"description=Client name exactly as listed in the directory"`
	ClientNumber string   `json:"client_number" yaml:"client_number" jsonschema:"description=Client number from the directory"`
	MatterNumber string   `json:"matter_number" yaml:"matter_number" jsonschema:"description=Matter number from the directory"`
	MatterDescr  string   `json:"matter_descr" yaml:"matter_descr" jsonschema:"description=Matter description from the directory"`
	WorkSummary  []string `json:"work_summary" yaml:"work_summary" jsonschema:"description=Billing narrative lines for the matter"`
	TimeBilled   string   `json:"time_billed" yaml:"time_billed" jsonschema:"description=Total time for the matter such as 1.5 hours"`
}

// Record returns the wire shape of e for its variant.
func (e Entry) Record() any {
	if e.Variant == VariantSummary {
		return SummaryRecord{
			ClientName:   e.ClientName,
			ClientNumber: e.ClientNumber,
			MatterNumber: e.MatterNumber,
			MatterDescr:  e.MatterDescr,
			WorkSummary:  e.WorkSummary,
			TimeBilled:   e.TimeBilledText,
		}
	}
	return TaskRecord{
		ClientName:   e.ClientName,
		ClientNumber: e.ClientNumber,
		MatterNumber: e.MatterNumber,
		MatterDescr:  e.MatterDescr,
		TaskDescr:    e.TaskDescr,
		TimeBilled:   e.TimeBilled,
		Date:         e.Date,
	}
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

func (e Entry) MarshalYAML() (any, error) {
	return e.Record(), nil
}
