package reconcile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/christopherklint97/billr/internal/billing"
	"gopkg.in/yaml.v3"
)

// Encode writes entries as an indented JSON array or a YAML sequence.
func Encode(w io.Writer, entries []billing.Entry, format string) error {
	if entries == nil {
		entries = []billing.Entry{}
	}
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (want json or yaml)", format)
}

// Save writes the report's entries to <dataDir>/billing/<date>.json and
// returns the path.
func Save(dataDir string, r *Report) (string, error) {
	dir := filepath.Join(dataDir, "billing")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating billing dir: %w", err)
	}
	path := filepath.Join(dir, r.Date+".json")

	tmp, err := os.CreateTemp(dir, r.Date+"-*.json")
	if err != nil {
		return "", fmt.Errorf("creating billing file: %w", err)
	}
	if err := Encode(tmp, r.Entries(), "json"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing billing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing billing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("replacing billing file: %w", err)
	}
	return path, nil
}
