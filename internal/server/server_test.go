package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/ai"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/store"
	"github.com/christopherklint97/billr/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	out string
	err error
}

func (g stubGenerator) Generate(context.Context, ai.Request) (string, error) {
	return g.out, g.err
}

const billed = `[{"client_name":"Microsoft","client_number":"4211","matter_number":"488","matter_descr":"Derivative Securities Litigation","task_descr":"Drafted brief","time_billed":5.0,"date":"2025-03-30"}]`

// localDatabases creates the two files a client would upload.
func localDatabases(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "activity_log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AppendInterval(context.Background(), activity.Interval{
		Start: time.Date(2025, 3, 30, 9, 0, 0, 0, time.Local), App: "Microsoft Word", Title: "Derivative brief.docx", Duration: 300,
	}))
	// the sampler keeps its handle open while the client ships a snapshot
	logPath, err := upload.SnapshotLedger(context.Background(), db.Path(), t.TempDir())
	require.NoError(t, err)

	matterPath := filepath.Join(dir, "matter_map.db")
	mdb, err := sql.Open("sqlite", matterPath)
	require.NoError(t, err)
	defer mdb.Close()
	for _, stmt := range []string{
		`CREATE TABLE clients (client_number TEXT PRIMARY KEY, client_name TEXT)`,
		`CREATE TABLE matters (matter_number TEXT PRIMARY KEY, client_number TEXT, matter_descr TEXT)`,
		`INSERT INTO clients VALUES ('4211', 'Microsoft')`,
		`INSERT INTO matters VALUES ('488', '4211', 'Derivative Securities Litigation')`,
	} {
		_, err := mdb.Exec(stmt)
		require.NoError(t, err)
	}
	return logPath, matterPath
}

func newTestServer(t *testing.T, gen ai.Generator) (*httptest.Server, string) {
	t.Helper()
	uploadDir := t.TempDir()
	s := New(Options{
		UploadDir: uploadDir,
		Generator: gen,
		Variant:   billing.VariantTask,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, uploadDir
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadThenReconcile(t *testing.T) {
	srv, uploadDir := newTestServer(t, stubGenerator{out: billed})
	logPath, matterPath := localDatabases(t)

	client := upload.New(srv.URL, "✅", nil)
	files, err := upload.Collect(logPath, matterPath, filepath.Dir(logPath), nil)
	require.NoError(t, err)

	body, err := client.Upload(context.Background(), files)
	require.NoError(t, err)
	assert.Contains(t, body, "Upload received")
	assert.FileExists(t, filepath.Join(uploadDir, activityFile))
	assert.FileExists(t, filepath.Join(uploadDir, matterFile))
	uploaded, err := os.ReadFile(filepath.Join(uploadDir, activityFile))
	require.NoError(t, err)

	out, err := client.Reconcile(context.Background(), "2025-03-30")
	require.NoError(t, err)

	after, err := os.ReadFile(filepath.Join(uploadDir, activityFile))
	require.NoError(t, err)
	assert.Equal(t, uploaded, after, "reconcile leaves the uploaded ledger untouched")
	assert.NoFileExists(t, filepath.Join(uploadDir, activityFile+"-wal"))

	var got struct {
		RunID         string           `json:"run_id"`
		Date          string           `json:"date"`
		Entries       []map[string]any `json:"entries"`
		Unresolved    []string         `json:"unresolved"`
		LoggedMinutes float64          `json:"logged_minutes"`
		BilledMinutes float64          `json:"billed_minutes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, "2025-03-30", got.Date)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "Drafted brief", got.Entries[0]["task_descr"])
	assert.Empty(t, got.Unresolved)
	assert.InDelta(t, 5.0, got.LoggedMinutes, 1e-9)
	assert.InDelta(t, 5.0, got.BilledMinutes, 1e-9)
}

func TestUpload_MissingMatterfile(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	logPath, _ := localDatabases(t)

	_, err := upload.New(srv.URL, "✅", nil).Upload(context.Background(), []upload.File{
		{Field: upload.FieldLog, Path: logPath},
	})
	assert.ErrorContains(t, err, "400")
}

func TestUpload_ExtraFiles(t *testing.T) {
	srv, uploadDir := newTestServer(t, nil)
	logPath, matterPath := localDatabases(t)
	csvPath := filepath.Join(filepath.Dir(logPath), "activity_log.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Timestamp,App,Window,Time (seconds)\n"), 0o644))

	files, err := upload.Collect(logPath, matterPath, filepath.Dir(logPath), []string{"*.csv"})
	require.NoError(t, err)

	body, err := upload.New(srv.URL, "✅", nil).Upload(context.Background(), files)
	require.NoError(t, err)
	assert.Contains(t, body, "1 extra files")
	assert.FileExists(t, filepath.Join(uploadDir, extraDir, "activity_log.csv"))
}

func TestReconcile_NothingUploaded(t *testing.T) {
	srv, _ := newTestServer(t, stubGenerator{out: billed})

	resp, err := http.Post(srv.URL+"/reconcile?date=2025-03-30", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReconcile_BadDate(t *testing.T) {
	srv, _ := newTestServer(t, stubGenerator{out: billed})

	resp, err := http.Post(srv.URL+"/reconcile?date=March+30", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcile_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		gen  ai.Generator
		want int
	}{
		{"malformed output", stubGenerator{out: "not json"}, http.StatusUnprocessableEntity},
		{"service failure", stubGenerator{err: &ai.GenerationError{Provider: "openai", Err: errors.New("503")}}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.gen)
			logPath, matterPath := localDatabases(t)
			files, err := upload.Collect(logPath, matterPath, filepath.Dir(logPath), nil)
			require.NoError(t, err)
			_, err = upload.New(srv.URL, "✅", nil).Upload(context.Background(), files)
			require.NoError(t, err)

			resp, err := http.Post(srv.URL+"/reconcile?date=2025-03-30", "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
