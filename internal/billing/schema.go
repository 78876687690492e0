package billing

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// OutputSchema returns the JSON Schema of the array the generation service
// must produce for variant v.
func OutputSchema(v Variant) (string, error) {
	var record any
	switch v {
	case VariantTask:
		record = &TaskRecord{}
	case VariantSummary:
		record = &SummaryRecord{}
	default:
		return "", fmt.Errorf("no schema for variant %s", v)
	}

	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	item := r.Reflect(record)
	item.Version = ""

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshaling item schema: %w", err)
	}
	out, err := json.MarshalIndent(map[string]any{
		"type":  "array",
		"items": json.RawMessage(itemJSON),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	return string(out), nil
}
