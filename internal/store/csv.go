package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/christopherklint97/billr/internal/activity"
)

// CSVMirror appends every interval to a CSV file alongside the database.
type CSVMirror struct {
	f *os.File
	w *csv.Writer
}

// CSVMirrorPath returns the mirror file next to the ledger at dbPath, with
// the extension replaced by .csv.
func CSVMirrorPath(dbPath string) string {
	return strings.TrimSuffix(dbPath, filepath.Ext(dbPath)) + ".csv"
}

func OpenCSVMirror(path string) (*CSVMirror, error) {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening csv mirror: %w", err)
	}
	m := &CSVMirror{f: f, w: csv.NewWriter(f)}
	if os.IsNotExist(statErr) {
		if err := m.write([]string{"Timestamp", "App", "Window", "Time (seconds)"}); err != nil {
			f.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *CSVMirror) AppendInterval(_ context.Context, iv activity.Interval) error {
	return m.write([]string{
		iv.Start.Format(activity.TimestampLayout),
		iv.App,
		iv.Title,
		strconv.FormatFloat(iv.Duration, 'f', -1, 64),
	})
}

func (m *CSVMirror) write(record []string) error {
	if err := m.w.Write(record); err != nil {
		return &PersistenceError{Op: "csv write", Err: err}
	}
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		return &PersistenceError{Op: "csv flush", Err: err}
	}
	return nil
}

func (m *CSVMirror) Close() error {
	m.w.Flush()
	return m.f.Close()
}

// Tee writes each interval to the primary sink first, then to the mirrors.
// Only a primary failure is returned; mirror failures go to onMirrorErr.
type Tee struct {
	Primary     activity.Sink
	Mirrors     []activity.Sink
	OnMirrorErr func(error)
}

func (t Tee) AppendInterval(ctx context.Context, iv activity.Interval) error {
	if err := t.Primary.AppendInterval(ctx, iv); err != nil {
		return err
	}
	for _, m := range t.Mirrors {
		if err := m.AppendInterval(ctx, iv); err != nil && t.OnMirrorErr != nil {
			t.OnMirrorErr(err)
		}
	}
	return nil
}
