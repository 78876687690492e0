package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/tui"
	"github.com/spf13/cobra"
)

var errNoEntries = errors.New("no billing entries")

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [YYYY-MM-DD]",
	Short: "Generate billing entries for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().String("format", "json", "output format: json or yaml")
	reconcileCmd.Flags().Bool("review", false, "review and edit the entries before printing")
	reconcileCmd.Flags().Bool("dry-run", false, "print the generation document without calling the provider")
	reconcileCmd.Flags().Bool("save", false, "also write the entries to <data_dir>/billing/<date>.json")
	reconcileCmd.Flags().String("schema", "", "entry schema: task or summary (overrides ai.schema)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	review, _ := cmd.Flags().GetBool("review")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	save, _ := cmd.Flags().GetBool("save")
	schema, _ := cmd.Flags().GetString("schema")

	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	day, err := reconcile.ParseDate(arg, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if schema != "" {
		cfg.AI.Schema = schema
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

	p, err := newPipeline(cfg, db, logger, !dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		report, err := p.Prepare(ctx, day)
		if err != nil {
			return err
		}
		fmt.Print(report.Document)
		return nil
	}

	var report *reconcile.Report
	if review {
		report, err = reviewReport(ctx, p, day)
		if err != nil || report == nil {
			return err
		}
	} else {
		report, err = p.Run(ctx, day)
		if err != nil {
			return err
		}
		if report.Result.Empty() {
			fmt.Fprintln(os.Stderr, report.Result.Diagnostic)
			return fmt.Errorf("%w for %s", errNoEntries, report.Date)
		}
		printUnresolved(os.Stderr, report)
	}

	if err := reconcile.Encode(os.Stdout, report.Entries(), format); err != nil {
		return err
	}
	if save {
		path, err := reconcile.Save(cfg.Storage.DataDir, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d entries to %s\n", len(report.Entries()), path)
	}
	return nil
}

// reviewReport runs the pipeline inside the review TUI. It returns a nil
// report when the user discards the result.
func reviewReport(ctx context.Context, p *reconcile.Pipeline, day time.Time) (*reconcile.Report, error) {
	dir, err := p.Directory(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading directory: %w", err)
	}
	p.Directory = func(context.Context) (*directory.Directory, error) { return dir, nil }

	run := func(ctx context.Context) (*reconcile.Report, error) {
		return p.Run(ctx, day)
	}
	app := tui.NewApp(ctx, day.Format("2006-01-02"), run, nil, dir)
	if _, err := tea.NewProgram(app, tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("running TUI: %w", err)
	}

	result := app.GetResult()
	if result == nil || !result.Accepted || result.Report == nil {
		fmt.Fprintln(os.Stderr, "Entries discarded.")
		return nil, nil
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w for %s", errNoEntries, result.Report.Date)
	}

	reviewed := *result.Report
	reviewed.Result.Entries = result.Entries
	reviewed.BilledMinutes = 0
	for _, e := range result.Entries {
		reviewed.BilledMinutes += e.TimeBilled
	}
	return &reviewed, nil
}

func printUnresolved(w io.Writer, r *reconcile.Report) {
	for _, u := range r.Unresolved {
		fmt.Fprintf(w, "warning: %s\n", u)
	}
	fmt.Fprintf(w, "%d entries, %.1f min billed of %.1f min logged\n",
		len(r.Entries()), r.BilledMinutes, r.LoggedMinutes)
}
