package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/server"
	"github.com/christopherklint97/billr/internal/upload"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the activity ledger and directory to a billr server",
	RunE:  runUpload,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive uploads and reconcile them on request",
	RunE:  runServe,
}

func init() {
	uploadCmd.Flags().String("url", "", "server base URL (overrides upload.url)")
	uploadCmd.Flags().Bool("reconcile", false, "ask the server to reconcile after uploading")
	uploadCmd.Flags().String("date", "", "day to reconcile, YYYY-MM-DD (default today)")

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	baseURL, _ := cmd.Flags().GetString("url")
	doReconcile, _ := cmd.Flags().GetBool("reconcile")
	date, _ := cmd.Flags().GetString("date")

	day, err := reconcile.ParseDate(date, time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if baseURL == "" {
		baseURL = cfg.Upload.URL
	}
	if baseURL == "" {
		return fmt.Errorf("upload URL not configured — set upload.url or BILLR_UPLOAD_URL")
	}
	logger, closer, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	tmp, err := os.MkdirTemp("", "billr-upload-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	logfile, err := upload.SnapshotLedger(ctx, cfg.Storage.ActivityDB, tmp)
	if err != nil {
		return err
	}
	files, err := upload.Collect(logfile, cfg.Storage.DirectoryDB, cfg.Storage.DataDir, cfg.Upload.Files)
	if err != nil {
		return err
	}

	client := upload.New(baseURL, cfg.Upload.Marker, logger)
	reply, err := client.Upload(ctx, files)
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(reply))

	if !doReconcile {
		return nil
	}
	body, err := client.Reconcile(ctx, day.Format("2006-01-02"))
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(body))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}
	logger, closer, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	variant, err := billing.ParseVariant(cfg.AI.Schema)
	if err != nil {
		return err
	}

	gen, err := ai.NewGenerator(cfg.AI, logger)
	if err != nil {
		logger.Warn("generation unavailable, /reconcile will answer 503", "error", err)
		gen = nil
	}

	srv := server.New(server.Options{
		UploadDir:   cfg.Server.UploadDir,
		Marker:      cfg.Upload.Marker,
		Generator:   gen,
		Variant:     variant,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Logger:      logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	return srv.Run(ctx, addr)
}
