package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// fakeOpenAI answers every chat completion with content.
func fakeOpenAI(t *testing.T, content string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1743325200,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/v1/"
}

// setupReconcile points the config at a temp data dir holding a one-matter
// directory and an empty ledger, with generation served by content.
func setupReconcile(t *testing.T, content string) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", fakeOpenAI(t, content))
	t.Setenv("BILLR_DATA_DIR", dataDir)
	t.Setenv("BILLR_DIRECTORY_DB", "")

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "matter_map.db"))
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE clients (client_number TEXT PRIMARY KEY, client_name TEXT)`,
		`CREATE TABLE matters (matter_number TEXT PRIMARY KEY, client_number TEXT, matter_descr TEXT)`,
		`INSERT INTO clients VALUES ('4211', 'Microsoft')`,
		`INSERT INTO matters VALUES ('488', '4211', 'Derivative Securities Litigation')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[ai]\nmax_retries = 0\n\n[notifications]\nenabled = false\n"), 0644))

	prev := configFile
	configFile = cfgPath
	t.Cleanup(func() { configFile = prev })
	return dataDir
}

func setFlag(t *testing.T, name, value string) {
	t.Helper()
	f := reconcileCmd.Flags().Lookup(name)
	prev := f.Value.String()
	require.NoError(t, reconcileCmd.Flags().Set(name, value))
	t.Cleanup(func() { reconcileCmd.Flags().Set(name, prev) })
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	out := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		out <- string(data)
	}()
	runErr := fn()
	w.Close()
	return <-out, runErr
}

func TestReconcile_EmptyResultFails(t *testing.T) {
	setupReconcile(t, "not json")

	_, err := captureStdout(t, func() error {
		return runReconcile(reconcileCmd, []string{"2025-03-31"})
	})
	require.ErrorIs(t, err, errNoEntries)
	assert.Contains(t, err.Error(), "2025-03-31")
}

func TestReconcile_PrintsAndSaves(t *testing.T) {
	dataDir := setupReconcile(t, "```json\n"+
		`[{"client_name":"Microsoft","client_number":"4211","matter_number":"488","matter_descr":"Derivative Securities Litigation","task_descr":"Drafted motion","time_billed":5.0,"date":"2025-03-31"}]`+
		"\n```")
	setFlag(t, "save", "true")

	out, err := captureStdout(t, func() error {
		return runReconcile(reconcileCmd, []string{"2025-03-31"})
	})
	require.NoError(t, err)

	var printed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	require.Len(t, printed, 1)
	assert.Equal(t, "488", printed[0]["matter_number"])
	assert.Equal(t, 5.0, printed[0]["time_billed"])

	assert.FileExists(t, filepath.Join(dataDir, "billing", "2025-03-31.json"))
}

func TestReconcile_DryRunSkipsGeneration(t *testing.T) {
	setupReconcile(t, "unused")
	t.Setenv("OPENAI_API_KEY", "")
	setFlag(t, "dry-run", "true")

	out, err := captureStdout(t, func() error {
		return runReconcile(reconcileCmd, []string{"2025-03-31"})
	})
	require.NoError(t, err)
	assert.Contains(t, out, "488: Derivative Securities Litigation")
}

func TestReconcile_InvalidDate(t *testing.T) {
	err := runReconcile(reconcileCmd, []string{"31/03/2025"})
	assert.ErrorContains(t, err, "invalid date")
}
