package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/calendar"
	"github.com/christopherklint97/billr/internal/config"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/scheduler"
	"github.com/christopherklint97/billr/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "billr",
	Short:         "Turn your activity log into legal billing entries",
	Long:          "billr records which application and window you work in, then reconciles the day against your client/matter directory into billing entries.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the activity sampler daemon",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runStop,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

var (
	configFile string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.config/billr/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mattersCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to the rotated log file. daemon also mirrors info and up
// to stderr; --verbose mirrors everything.
func newLogger(cfg *config.Config, daemon bool) (*slog.Logger, io.Closer, error) {
	opts := logging.Options{
		File:        cfg.Log.File,
		Level:       cfg.Log.Level,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		Stderr:      daemon || verbose,
		StderrLevel: slog.LevelInfo,
	}
	if verbose {
		opts.Level = "debug"
		opts.StderrLevel = slog.LevelDebug
	}
	logger, closer, err := logging.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log: %w", err)
	}
	return logger, closer, nil
}

func openLedger(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Storage.ActivityDB)
	if err != nil {
		return nil, fmt.Errorf("opening activity ledger: %w", err)
	}
	return db, nil
}

// newPipeline wires the reconciliation stages from cfg. Without
// withGenerator the pipeline can only Prepare.
func newPipeline(cfg *config.Config, db *store.DB, logger *slog.Logger, withGenerator bool) (*reconcile.Pipeline, error) {
	variant, err := billing.ParseVariant(cfg.AI.Schema)
	if err != nil {
		return nil, err
	}
	p := &reconcile.Pipeline{
		Directory:   reconcile.FromFile(cfg.Storage.DirectoryDB),
		Ledger:      db,
		Variant:     variant,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Logger:      logger,
	}
	if cfg.Calendar.Enabled && cfg.Calendar.Source != "" {
		p.Calendar = calendar.NewFetcher(cfg.Calendar.Source)
	}
	if withGenerator {
		gen, err := ai.NewGenerator(cfg.AI, logger)
		if err != nil {
			return nil, err
		}
		p.Generator = gen
	}
	return p, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var sink activity.Sink = db
	if cfg.Storage.CSVMirror {
		mirror, err := store.OpenCSVMirror(store.CSVMirrorPath(cfg.Storage.ActivityDB))
		if err != nil {
			return err
		}
		defer mirror.Close()
		sink = store.Tee{
			Primary: db,
			Mirrors: []activity.Sink{mirror},
			OnMirrorErr: func(err error) {
				logger.Warn("csv mirror write failed", "error", err)
			},
		}
	}
	sampler := activity.NewSampler(activity.NewSystemProbe(), sink, activity.WithLogger(logger))

	var pipeline *reconcile.Pipeline
	if cfg.Schedule.ReconcileAt != "" {
		pipeline, err = newPipeline(cfg, db, logger, true)
		if err != nil {
			return fmt.Errorf("scheduled reconciliation: %w", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	return scheduler.New(cfg, db, sampler, pipeline, logger).Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := scheduler.ReadPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("billr (PID %d) is not running", pid)
		}
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to billr (PID %d)\n", pid)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	c := exec.Command(editor, configPath)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
	}
	return nil
}
