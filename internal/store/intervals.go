package store

import (
	"context"
	"fmt"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
)

// PersistenceError reports a failed ledger write. The interval was not
// recorded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AppendInterval commits one interval. Each call is its own transaction,
// so readers never observe a partial row.
func (db *DB) AppendInterval(ctx context.Context, iv activity.Interval) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO activity_logs (timestamp, app, window, duration_seconds) VALUES (?, ?, ?, ?)`,
		iv.Start.Format(activity.TimestampLayout), iv.App, iv.Title, iv.Duration,
	)
	if err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// IntervalsBetween returns intervals whose start lies in [from, to],
// ascending by timestamp. Bounds are compared in local wall-clock time.
func (db *DB) IntervalsBetween(ctx context.Context, from, to time.Time) ([]activity.Interval, error) {
	return db.queryIntervals(ctx,
		`SELECT id, timestamp, app, window, duration_seconds
		 FROM activity_logs
		 WHERE timestamp BETWEEN ? AND ?
		 ORDER BY timestamp ASC, id ASC`,
		from.Format(activity.TimestampLayout),
		to.Format(activity.TimestampLayout),
	)
}

// IntervalsForDay returns the ledger for the calendar day containing day.
func (db *DB) IntervalsForDay(ctx context.Context, day time.Time) ([]activity.Interval, error) {
	start, end := DayBounds(day)
	return db.IntervalsBetween(ctx, start, end)
}

// IntervalsAfter returns intervals with an ID greater than id, in
// insertion order.
func (db *DB) IntervalsAfter(ctx context.Context, id int64) ([]activity.Interval, error) {
	return db.queryIntervals(ctx,
		`SELECT id, timestamp, app, window, duration_seconds
		 FROM activity_logs
		 WHERE id > ?
		 ORDER BY id ASC`,
		id,
	)
}

// LastIntervalID returns the highest assigned interval ID, or 0.
func (db *DB) LastIntervalID(ctx context.Context) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM activity_logs`).Scan(&id)
	return id, err
}

// DayBounds returns 00:00:00 and 23:59:59 of the day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return start, end
}

func (db *DB) queryIntervals(ctx context.Context, query string, args ...any) ([]activity.Interval, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying intervals: %w", err)
	}
	defer rows.Close()

	var intervals []activity.Interval
	for rows.Next() {
		var iv activity.Interval
		var ts string
		if err := rows.Scan(&iv.ID, &ts, &iv.App, &iv.Title, &iv.Duration); err != nil {
			return nil, fmt.Errorf("scanning interval: %w", err)
		}
		t, err := time.ParseInLocation(activity.TimestampLayout, ts, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing interval timestamp %q: %w", ts, err)
		}
		iv.Start = t
		intervals = append(intervals, iv)
	}

	return intervals, rows.Err()
}
