package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/christopherklint97/billr/internal/activity"
	"github.com/christopherklint97/billr/internal/billing"
	"github.com/christopherklint97/billr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	now := time.Date(2025, 3, 31, 14, 30, 0, 0, time.Local)

	d, err := parseDay("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.Local), d)

	d, err = parseDay("2025-03-30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 30, 0, 0, 0, 0, time.Local), d)

	d, err = parseDay("yesterday", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 30, 0, 0, 0, 0, time.Local), d)

	_, err = parseDay("2025-13-01", now)
	assert.Error(t, err)
}

func TestLooksISO(t *testing.T) {
	assert.True(t, looksISO("2025-03-30"))
	assert.False(t, looksISO("2025/03/30"))
	assert.False(t, looksISO("yesterday"))
	assert.False(t, looksISO("2025-3-30"))
}

func TestTotalsByApp(t *testing.T) {
	totals := totalsByApp([]activity.Interval{
		{App: "Outlook", Duration: 60},
		{App: "Microsoft Word", Duration: 300},
		{App: "Outlook", Duration: 120},
		{App: "Chrome", Duration: 180},
	})
	require.Len(t, totals, 3)
	assert.Equal(t, "Microsoft Word", totals[0].app)
	assert.InDelta(t, 5.0, totals[0].minutes, 1e-9)
	assert.Equal(t, "Chrome", totals[1].app, "ties sort by name")
	assert.Equal(t, "Outlook", totals[2].app)
}

func TestNewPipeline(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.DirectoryDB = filepath.Join(t.TempDir(), "matter_map.db")
	cfg.AI.Schema = "summary"
	cfg.Calendar.Enabled = true
	cfg.Calendar.Source = filepath.Join(t.TempDir(), "work.ics")

	p, err := newPipeline(&cfg, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, billing.VariantSummary, p.Variant)
	assert.Nil(t, p.Generator)
	assert.NotNil(t, p.Calendar)

	cfg.AI.Schema = "haiku"
	_, err = newPipeline(&cfg, nil, nil, false)
	assert.Error(t, err)

	cfg.AI.Schema = "task"
	cfg.AI.Provider = "openai"
	cfg.AI.APIKey = ""
	_, err = newPipeline(&cfg, nil, nil, true)
	assert.Error(t, err, "generator needs an API key")
}
