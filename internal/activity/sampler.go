package activity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/christopherklint97/billr/internal/logging"
)

// Probe reports the current foreground window.
type Probe interface {
	Foreground(ctx context.Context) (Window, error)
}

// Sink persists closed intervals. An error from AppendInterval is fatal to
// the sampler.
type Sink interface {
	AppendInterval(ctx context.Context, iv Interval) error
}

// Sampler turns periodic foreground observations into a contiguous
// sequence of intervals. It is not safe for concurrent use.
type Sampler struct {
	probe  Probe
	sink   Sink
	now    func() time.Time
	logger *slog.Logger

	current Window
	since   time.Time
	started bool
}

type Option func(*Sampler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSampler(probe Probe, sink Sink, opts ...Option) *Sampler {
	s := &Sampler{
		probe:  probe,
		sink:   sink,
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the open foreground state and when it began.
func (s *Sampler) Current() (Window, time.Time, bool) {
	return s.current, s.since, s.started
}

// Tick performs one poll. When the foreground state changed, the previous
// state is closed and persisted before the new one is adopted. A poll cut
// short by ctx is discarded and ctx.Err() returned with state untouched.
func (s *Sampler) Tick(ctx context.Context) error {
	w := s.observe(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	if !s.started {
		s.current, s.since, s.started = w, now, true
		s.logger.Debug("initial foreground state", "app", w.App, "title", w.Title)
		return nil
	}
	if w == s.current {
		return nil
	}

	if err := s.emit(ctx, now); err != nil {
		return err
	}
	s.current, s.since = w, now
	return nil
}

// Flush persists the open interval and restarts it at the current time.
func (s *Sampler) Flush(ctx context.Context) error {
	if !s.started {
		return nil
	}
	now := s.now()
	if err := s.emit(ctx, now); err != nil {
		return err
	}
	s.since = now
	return nil
}

// Run polls every interval until ctx is cancelled, then flushes the open
// interval. It returns nil on cancellation and the first persistence error
// otherwise.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("final flush failed, open interval lost", "error", err)
			}
			return nil
		case <-ticker.C:
			// an error caused by cancellation falls through to the flush
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

func (s *Sampler) observe(ctx context.Context) Window {
	w, err := s.probe.Foreground(ctx)
	if err != nil {
		s.logger.Warn("foreground acquisition failed", "error", err)
		return Window{App: UnknownApp, Title: NoWindowTitle}
	}
	if w.App == "" {
		w.App = UnknownApp
	}
	if w.Title == "" {
		w.Title = NoWindowTitle
	}
	return w
}

func (s *Sampler) emit(ctx context.Context, now time.Time) error {
	elapsed := now.Sub(s.since).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	iv := Interval{
		Start:    s.since,
		App:      s.current.App,
		Title:    s.current.Title,
		Duration: math.Round(elapsed*100) / 100,
	}
	if err := s.sink.AppendInterval(ctx, iv); err != nil {
		return fmt.Errorf("persisting interval: %w", err)
	}
	s.logger.Info("interval recorded",
		"start", iv.Start.Format(TimestampLayout),
		"app", iv.App,
		"title", iv.Title,
		"seconds", iv.Duration,
	)
	return nil
}
