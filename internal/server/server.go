// Package server receives uploaded activity and directory databases and
// reconciles them on request.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/gin-gonic/gin"
)

const (
	activityFile = "activity_log.db"
	matterFile   = "matter_map.db"
	extraDir     = "files"
)

type Options struct {
	UploadDir   string
	Marker      string
	Generator   ai.Generator
	Variant     billing.Variant
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

type Server struct {
	opts   Options
	logger *slog.Logger
	router *gin.Engine

	// uploads replace the files a reconcile run reads
	mu sync.RWMutex
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Marker == "" {
		opts.Marker = "✅"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.MaxMultipartMemory = 32 << 20

	s := &Server{opts: opts, logger: logger, router: router}

	router.GET("/healthz", s.handleHealth)
	router.POST("/upload-log", s.handleUpload)
	router.POST("/reconcile", s.handleReconcile)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := os.MkdirAll(s.opts.UploadDir, 0755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "upload_dir", s.opts.UploadDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
