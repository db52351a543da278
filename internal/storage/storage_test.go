package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelsos/quickrank/internal/models"
)

func TestSaveResult(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested")
	result := &models.RankingResult{
		JobPostingID:    "job-42",
		TotalCandidates: 1,
		Candidates:      []models.RankedCandidate{{CandidateID: "c-1", Rank: 1, Score: 88}},
	}

	path, err := SaveResult(dir, "run-1", result)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ranking_run-1.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := LoadResult(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", stored.RunID)
	assert.NotZero(t, stored.SavedAt)
	assert.Equal(t, result, stored.Result)
}

func TestSaveResult_NilResult(t *testing.T) {
	t.Parallel()
	_, err := SaveResult(t.TempDir(), "run-1", nil)
	assert.Error(t, err)
}

func TestLoadResult_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadResult(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0600))
	_, err = LoadResult(bad)
	assert.Error(t, err)
}
