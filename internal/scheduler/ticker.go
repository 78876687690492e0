package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/config"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/store"
)

// StateLastReconciled is the store state key holding the last day the
// daemon reconciled.
const StateLastReconciled = "last_reconciled"

// Notifier shows a desktop notification.
type Notifier func(title, message string)

// Scheduler is the background daemon: it runs the sampler until stopped
// and, when configured, reconciles each work day at a fixed time.
type Scheduler struct {
	cfg      *config.Config
	db       *store.DB
	sampler  *activity.Sampler
	pipeline *reconcile.Pipeline
	notify   Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a scheduler. pipeline may be nil to only sample.
func New(cfg *config.Config, db *store.DB, sampler *activity.Sampler, pipeline *reconcile.Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scheduler{
		cfg:      cfg,
		db:       db,
		sampler:  sampler,
		pipeline: pipeline,
		logger:   logger,
		now:      time.Now,
		notify:   func(string, string) {},
	}
	if cfg.Notifications.Enabled {
		s.notify = func(title, message string) {
			if err := SendNotification(title, message); err != nil {
				logger.Debug("notification failed", "error", err)
			}
		}
	}
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer s.removePID()

	interval := time.Duration(s.cfg.Sampler.IntervalSeconds) * time.Second
	s.logger.Info("daemon started",
		"pid", os.Getpid(),
		"interval", interval,
		"ledger", s.db.Path(),
		"reconcile_at", s.cfg.Schedule.ReconcileAt,
	)
	s.notify("billr", "Activity logging started")

	// the reconcile loop must not outlive the sampler
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	var wg sync.WaitGroup
	if s.pipeline != nil && s.cfg.Schedule.ReconcileAt != "" {
		if _, _, ok := parseClock(s.cfg.Schedule.ReconcileAt); !ok {
			return fmt.Errorf("invalid schedule.reconcile_at %q (want HH:MM)", s.cfg.Schedule.ReconcileAt)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reconcileLoop(loopCtx)
		}()
	}

	err := s.sampler.Run(ctx, interval)
	stopLoop()
	wg.Wait()

	if err != nil {
		s.logger.Error("daemon stopped on error", "error", err)
		s.notify("billr", "Activity logging stopped: "+err.Error())
		return err
	}
	s.logger.Info("daemon stopped")
	s.notify("billr", "Activity logging stopped")
	return nil
}

func (s *Scheduler) reconcileLoop(ctx context.Context) {
	for {
		next := nextRunAt(s.now(), s.cfg.Schedule.ReconcileAt, s.cfg.Schedule.WorkDays)
		if next.IsZero() {
			s.logger.Warn("no work days configured, scheduled reconciliation disabled")
			return
		}
		s.logger.Debug("next reconciliation", "at", next.Format(time.DateTime))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.ReconcileDay(ctx, next); err != nil {
			s.logger.Error("scheduled reconciliation failed", "error", err)
			s.notify("billr", "Reconciliation failed: "+err.Error())
		}
	}
}

// ReconcileDay runs the pipeline for the day containing day, saves the
// entries under the data dir and records the day in the store.
// The sampler's open interval is not in the ledger yet.
func (s *Scheduler) ReconcileDay(ctx context.Context, day time.Time) error {
	report, err := s.pipeline.Run(ctx, day)
	if err != nil {
		return err
	}
	if report.Result.Empty() {
		s.notify("billr", "No billing entries for "+report.Date)
		return fmt.Errorf("no billing entries for %s: %s", report.Date, firstLine(report.Result.Diagnostic))
	}

	path, err := reconcile.Save(s.cfg.Storage.DataDir, report)
	if err != nil {
		return err
	}
	if err := s.db.SetState(StateLastReconciled, report.Date); err != nil {
		return fmt.Errorf("recording reconciliation: %w", err)
	}

	s.logger.Info("billing entries saved", "run_id", report.RunID, "path", path, "entries", len(report.Entries()))
	msg := fmt.Sprintf("%d billing entries ready for %s", len(report.Entries()), report.Date)
	if n := len(report.Unresolved); n > 0 {
		msg += fmt.Sprintf(" (%d need a matter)", n)
	}
	s.notify("billr", msg)
	return nil
}

// nextRunAt returns the first hh:mm on a work day strictly after now, or
// the zero time when workDays is empty. Work days use 1=Monday..7=Sunday.
func nextRunAt(now time.Time, hhmm string, workDays []int) time.Time {
	h, m, ok := parseClock(hhmm)
	if !ok || len(workDays) == 0 {
		return time.Time{}
	}
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, now.Location())
		if candidate.After(now) && isWorkDay(candidate, workDays) {
			return candidate
		}
	}
	return time.Time{}
}

func isWorkDay(t time.Time, workDays []int) bool {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday = 7
	}
	for _, d := range workDays {
		if d == weekday {
			return true
		}
	}
	return false
}

func parseClock(s string) (int, int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func pidPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "billr.pid"), nil
}

func (s *Scheduler) writePID() error {
	path, err := pidPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if pid, err := ReadPID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("billr is already running (PID %d)", pid)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) removePID() {
	if path, err := pidPath(); err == nil {
		os.Remove(path)
	}
}

func ReadPID() (int, error) {
	path, err := pidPath()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running daemon found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
