package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/quickrank/internal/models"
)

func TestPrintResult(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := printResult(&buf, &models.RankingResult{
		JobPostingID:    "job-42",
		TotalCandidates: 2,
		Candidates: []models.RankedCandidate{
			{CandidateID: "c-1", Name: "Ada", Rank: 1, Score: 91.5, Recommendation: "strong"},
			{CandidateID: "c-2", Rank: 2, Score: 80},
		},
	})

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Job posting job-42: 2 candidates ranked")
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "91.5")
	assert.Contains(t, out, "c-2")

	assert.Error(t, printResult(&buf, nil))
}

func TestPrintStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printStatus(&buf, &models.TaskStatus{
		Handle:    models.TaskHandle{ID: "cv-1", Kind: models.KindBatch},
		Ready:     true,
		Completed: 3,
		Total:     3,
		Failed:    1,
		Results:   []models.BatchItem{{Success: true}, {Error: "corrupt pdf"}, {Success: true}},
	})
	assert.Equal(t, "batch task cv-1: ready=true completed=3/3 failed=1\n  item 2 failed: corrupt pdf\n", buf.String())

	buf.Reset()
	printStatus(&buf, &models.TaskStatus{
		Handle:   models.TaskHandle{ID: "rank-1", Kind: models.KindSingle},
		Progress: &models.TaskProgress{Stage: "scoring", Percent: 40},
	})
	assert.Equal(t, "single task rank-1: ready=false progress=40% stage=scoring\n", buf.String())
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quickrank.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "https://file.example/api"
token = "file-token"

[polling]
run_timeout = "10m"
`), 0o600))

	cfg, err := loadConfig(&globalFlags{configFile: path, token: "flag-token", metrics: ":9999"})

	require.NoError(t, err)
	assert.Equal(t, "https://file.example/api", cfg.BaseURL)
	assert.Equal(t, "flag-token", cfg.APIToken)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
	assert.Equal(t, 10*time.Minute, cfg.RunTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(&globalFlags{baseURL: "not a url"})
	assert.Error(t, err)
}

func TestResolveCVArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.pdf"), []byte("alice"), 0o600))

	path, cleanup, err := resolveCVArchive(dir)
	require.NoError(t, err)
	assert.Equal(t, ".zip", filepath.Ext(path))
	assert.FileExists(t, path)
	cleanup()
	assert.NoFileExists(t, path)

	zipPath := filepath.Join(dir, "cvs.zip")
	path, cleanup, err = resolveCVArchive(zipPath)
	require.NoError(t, err)
	assert.Equal(t, zipPath, path)
	cleanup()
}
