package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelsos/quickrank/internal/models"
)

// StoredResult is the on-disk form of a finished ranking run
type StoredResult struct {
	RunID   string                `json:"run_id"`
	SavedAt int64                 `json:"saved_at"`
	Result  *models.RankingResult `json:"result"`
}

// GetAppDataDir returns the application data directory
func GetAppDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return ensureDir(filepath.Join(homeDir, ".quickrank", "results"))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	return dir, nil
}

// GetResultFilePath returns the path of the result file for a run. An empty
// dir means the application data directory.
func GetResultFilePath(dir, runID string) (string, error) {
	var err error
	if dir == "" {
		dir, err = GetAppDataDir()
	} else {
		dir, err = ensureDir(dir)
	}
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, fmt.Sprintf("ranking_%s.json", runID)), nil
}

// SaveResult writes result to the results directory and returns the file path
func SaveResult(dir, runID string, result *models.RankingResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no ranking result for run %s", runID)
	}

	filePath, err := GetResultFilePath(dir, runID)
	if err != nil {
		return "", err
	}

	data := StoredResult{
		RunID:   runID,
		SavedAt: time.Now().Unix(),
		Result:  result,
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal ranking result: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0600); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}

	return filePath, nil
}

// LoadResult reads a result file written by SaveResult
func LoadResult(filePath string) (*StoredResult, error) {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var data StoredResult
	if err := json.Unmarshal(fileData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result file: %w", err)
	}

	return &data, nil
}
