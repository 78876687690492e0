package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const followPollInterval = time.Second

// Follow calls fn for every interval committed after afterID until ctx is
// cancelled. It watches the database directory with fsnotify and also
// polls, so a missed or unsupported notification only delays delivery.
func (db *DB) Follow(ctx context.Context, afterID int64, logger *slog.Logger, fn func(activity.Interval)) error {
	if logger == nil {
		logger = logging.Discard()
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Info("fsnotify unavailable, polling only", "error", err)
	} else {
		defer fsw.Close()
		if err := fsw.Add(filepath.Dir(db.path)); err != nil {
			logger.Info("cannot watch ledger directory, polling only", "error", err)
		} else {
			events = fsw.Events
			errs = fsw.Errors
		}
	}
	return db.follow(ctx, afterID, events, errs, logger, fn)
}

func (db *DB) follow(ctx context.Context, afterID int64, events <-chan fsnotify.Event, errs <-chan error, logger *slog.Logger, fn func(activity.Interval)) error {
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	base := filepath.Base(db.path)
	last := afterID
	drain := func() error {
		intervals, err := db.IntervalsAfter(ctx, last)
		if err != nil {
			return err
		}
		for _, iv := range intervals {
			fn(iv)
			last = iv.ID
		}
		return nil
	}

	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// The WAL file changes on every commit.
			if !strings.HasPrefix(filepath.Base(ev.Name), base) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Debug("ledger watcher error", "error", err)
			continue
		case <-ticker.C:
		}
		if err := drain(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
