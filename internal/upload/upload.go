// Package upload ships the local databases to a remote billr server.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/christopherklint97/billr/internal/logging"
	"github.com/christopherklint97/billr/internal/store"
	"github.com/hashicorp/go-retryablehttp"
)

// Multipart field names the server expects.
const (
	FieldLog    = "logfile"
	FieldMatter = "matterfile"
	FieldExtra  = "file"
)

// ErrMarkerMissing means the server answered but did not confirm receipt.
var ErrMarkerMissing = errors.New("upload not confirmed by server")

type File struct {
	Field string
	Path  string
}

type Client struct {
	BaseURL string
	Marker  string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

func New(baseURL, marker string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 2 * time.Minute
	rc.Logger = logger

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Marker:  marker,
		http:    rc,
		logger:  logger,
	}
}

// SnapshotLedger copies the ledger at path into dir under the same base
// name and returns the copy's path. The copy holds every committed interval
// even while the sampler daemon keeps the database open.
func SnapshotLedger(ctx context.Context, path, dir string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("missing %s: %w", FieldLog, err)
	}
	db, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	dst := filepath.Join(dir, filepath.Base(path))
	if err := db.Snapshot(ctx, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Collect returns the two databases plus every file under baseDir matching
// one of patterns. Patterns use doublestar syntax and are relative to
// baseDir. A pattern matching nothing is not an error.
func Collect(logfile, matterfile, baseDir string, patterns []string) ([]File, error) {
	files := []File{
		{Field: FieldLog, Path: logfile},
		{Field: FieldMatter, Path: matterfile},
	}
	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			return nil, fmt.Errorf("missing %s: %w", f.Field, err)
		}
	}

	seen := map[string]bool{}
	var extra []string
	fsys := os.DirFS(baseDir)
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid upload pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				extra = append(extra, m)
			}
		}
	}
	sort.Strings(extra)
	for _, m := range extra {
		files = append(files, File{Field: FieldExtra, Path: filepath.Join(baseDir, filepath.FromSlash(m))})
	}
	return files, nil
}

// Upload posts files to <BaseURL>/upload-log and returns the response body.
// The body is buffered so retries can resend it.
func (c *Client) Upload(ctx context.Context, files []File) (string, error) {
	body, contentType, err := encode(files)
	if err != nil {
		return "", err
	}

	c.logger.Info("uploading", "url", c.BaseURL+"/upload-log", "files", len(files), "bytes", len(body))
	text, err := c.post(ctx, c.BaseURL+"/upload-log", contentType, body)
	if err != nil {
		return "", err
	}
	if c.Marker != "" && !strings.Contains(text, c.Marker) {
		return text, fmt.Errorf("%w: %s", ErrMarkerMissing, strings.TrimSpace(text))
	}
	return text, nil
}

// Reconcile asks the server to reconcile the uploaded files for date.
func (c *Client) Reconcile(ctx context.Context, date string) (string, error) {
	u := c.BaseURL + "/reconcile?date=" + url.QueryEscape(date)
	return c.post(ctx, u, "", nil)
}

func (c *Client) post(ctx context.Context, u, contentType string, body []byte) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting to %s: %w", u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return string(data), fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return string(data), nil
}

func encode(files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := addFile(w, f); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func addFile(w *multipart.Writer, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("missing %s: %w", f.Field, err)
		}
		return fmt.Errorf("opening %s: %w", f.Path, err)
	}
	defer src.Close()

	part, err := w.CreateFormFile(f.Field, filepath.Base(f.Path))
	if err != nil {
		return fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copying %s: %w", f.Path, err)
	}
	return nil
}
