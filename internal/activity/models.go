package activity

import (
	"errors"
	"time"
)

// TimestampLayout is how interval start times are persisted.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	UnknownApp    = "(Unknown)"
	NoWindowTitle = "(No window title)"
)

// ErrAcquisition is wrapped by probes when the foreground window cannot be
// determined.
var ErrAcquisition = errors.New("foreground window unavailable")

// Window is a foreground state: the focused application and its title.
type Window struct {
	App   string
	Title string
}

// Interval is a closed span during which one Window was in the foreground.
type Interval struct {
	ID       int64
	Start    time.Time
	App      string
	Title    string
	Duration float64 // seconds
}

func (iv Interval) Minutes() float64 {
	return iv.Duration / 60
}

func (iv Interval) End() time.Time {
	return iv.Start.Add(time.Duration(iv.Duration * float64(time.Second)))
}
