package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/scheduler"
	"github.com/spf13/cobra"
	"github.com/tj/go-naturaldate"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger [date]",
	Short: "Print the activity ledger for a day",
	Long:  "Print the activity ledger for a day. The date is YYYY-MM-DD or a phrase such as \"yesterday\" or \"last friday\".",
	Args:  cobra.ArbitraryArgs,
	RunE:  runLedger,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's time per application",
	RunE:  runStatus,
}

var mattersCmd = &cobra.Command{
	Use:   "matters",
	Short: "List clients and matters from the directory",
	RunE:  runMatters,
}

func init() {
	ledgerCmd.Flags().BoolP("follow", "f", false, "keep printing intervals as they are recorded")
}

// parseDay accepts YYYY-MM-DD or a natural language phrase relative to now,
// resolved towards the past. The result is local midnight.
func parseDay(s string, now time.Time) (time.Time, error) {
	if s == "" || looksISO(s) {
		return reconcile.ParseDate(s, now)
	}
	t, err := naturaldate.Parse(s, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	t = t.In(now.Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location()), nil
}

func looksISO(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func runLedger(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")

	day, err := parseDay(strings.Join(args, " "), time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	intervals, err := db.IntervalsForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	var total float64
	for _, iv := range intervals {
		fmt.Println(ai.LedgerLine(iv))
		total += iv.Minutes()
	}
	if !follow {
		if len(intervals) == 0 {
			fmt.Printf("No activity recorded on %s.\n", day.Format("2006-01-02"))
			return nil
		}
		fmt.Printf("\n%d intervals, %.1f min\n", len(intervals), total)
		return nil
	}

	lastID, err := db.LastIntervalID(ctx)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	err = db.Follow(ctx, lastID, logger, func(iv activity.Interval) {
		fmt.Println(ai.LedgerLine(iv))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type appTotal struct {
	app     string
	minutes float64
}

// totalsByApp sums minutes per application, largest first.
func totalsByApp(intervals []activity.Interval) []appTotal {
	sums := map[string]float64{}
	for _, iv := range intervals {
		sums[iv.App] += iv.Minutes()
	}
	totals := make([]appTotal, 0, len(sums))
	for app, m := range sums {
		totals = append(totals, appTotal{app: app, minutes: m})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].minutes != totals[j].minutes {
			return totals[i].minutes > totals[j].minutes
		}
		return totals[i].app < totals[j].app
	})
	return totals
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if pid, err := scheduler.ReadPID(); err == nil {
		fmt.Printf("Daemon: PID %d\n", pid)
	} else {
		fmt.Println("Daemon: not running")
	}
	if last, err := db.GetState(scheduler.StateLastReconciled); err == nil && last != "" {
		fmt.Printf("Last reconciled: %s\n", last)
	}
	fmt.Println()

	intervals, err := db.IntervalsForDay(cmd.Context(), time.Now())
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	if len(intervals) == 0 {
		fmt.Println("No activity recorded today.")
		return nil
	}

	var total float64
	fmt.Println("Today's activity:")
	fmt.Println()
	for _, t := range totalsByApp(intervals) {
		fmt.Printf("  %7.1f min  %s\n", t.minutes, t.app)
		total += t.minutes
	}

	minutes := int(total)
	fmt.Printf("\nTotal: %dh %dmin (%d intervals)\n", minutes/60, minutes%60, len(intervals))
	return nil
}

func runMatters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, err := directory.Load(cmd.Context(), cfg.Storage.DirectoryDB)
	if err != nil {
		return err
	}

	clients, matters := dir.Len()
	if matters == 0 {
		fmt.Fprintf(os.Stderr, "Directory %s has no matters.\n", cfg.Storage.DirectoryDB)
		return nil
	}
	fmt.Printf("%d clients, %d matters:\n\n", clients, matters)
	fmt.Print(ai.RenderDirectory(dir))
	return nil
}
