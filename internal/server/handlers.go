package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/directory"
	"github.com/christopherklint97/billr/internal/reconcile"
	"github.com/christopherklint97/billr/internal/store"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpload(c *gin.Context) {
	logfile, err := c.FormFile("logfile")
	if err != nil {
		c.String(http.StatusBadRequest, "❌ missing logfile")
		return
	}
	matterfile, err := c.FormFile("matterfile")
	if err != nil {
		c.String(http.StatusBadRequest, "❌ missing matterfile")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(c, logfile, filepath.Join(s.opts.UploadDir, activityFile)); err != nil {
		s.uploadFailed(c, err)
		return
	}
	if err := s.save(c, matterfile, filepath.Join(s.opts.UploadDir, matterFile)); err != nil {
		s.uploadFailed(c, err)
		return
	}

	extras := 0
	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File["file"] {
			dst := filepath.Join(s.opts.UploadDir, extraDir, filepath.Base(fh.Filename))
			if err := s.save(c, fh, dst); err != nil {
				s.uploadFailed(c, err)
				return
			}
			extras++
		}
	}

	s.logger.Info("upload stored",
		"logfile_bytes", logfile.Size,
		"matterfile_bytes", matterfile.Size,
		"extra_files", extras,
	)
	c.String(http.StatusOK, "%s Upload received (%d extra files)", s.opts.Marker, extras)
}

// save writes fh to dst through a temp file so a concurrent reader never
// sees a half-written database.
func (s *Server) save(c *gin.Context, fh *multipart.FileHeader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp := dst + ".part"
	if err := c.SaveUploadedFile(fh, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("saving %s: %w", fh.Filename, err)
	}
	// stale WAL files belong to the previous upload
	os.Remove(dst + "-wal")
	os.Remove(dst + "-shm")
	return os.Rename(tmp, dst)
}

func (s *Server) uploadFailed(c *gin.Context, err error) {
	s.logger.Error("upload failed", "error", err)
	c.String(http.StatusInternalServerError, "❌ upload failed: %v", err)
}

func (s *Server) handleReconcile(c *gin.Context) {
	day, err := reconcile.ParseDate(c.Query("date"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.opts.Generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no generator configured"})
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	activityPath := filepath.Join(s.opts.UploadDir, activityFile)
	if _, err := os.Stat(activityPath); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no activity log uploaded"})
		return
	}
	ledger, err := store.OpenReadOnly(activityPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer ledger.Close()

	p := &reconcile.Pipeline{
		Directory:   reconcile.FromFile(filepath.Join(s.opts.UploadDir, matterFile)),
		Ledger:      ledger,
		Generator:   s.opts.Generator,
		Variant:     s.opts.Variant,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
		Logger:      s.logger,
	}
	report, err := p.Run(c.Request.Context(), day)
	if err != nil {
		var genErr *ai.GenerationError
		switch {
		case errors.Is(err, directory.ErrUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &genErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if report.Result.Empty() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"run_id":     report.RunID,
			"error":      "no usable billing entries",
			"diagnostic": report.Result.Diagnostic,
		})
		return
	}

	unresolved := make([]string, 0, len(report.Unresolved))
	for _, u := range report.Unresolved {
		unresolved = append(unresolved, u.String())
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":         report.RunID,
		"date":           report.Date,
		"entries":        report.Entries(),
		"unresolved":     unresolved,
		"logged_minutes": report.LoggedMinutes,
		"billed_minutes": report.BilledMinutes,
	})
}
