package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/models"
)

const (
	uploadCVEndpoint = "/employer/quick-rank/upload-cv"
	uploadJDEndpoint = "/employer/quick-rank/upload-jd"
	uploadField      = "file"
)

// ErrRejected is returned when the remote answers 2xx but reports success=false
// or omits the id needed to track the submitted work.
var ErrRejected = errors.New("submission rejected")

// RankingService submits the three kinds of remote work the pipeline tracks.
type RankingService struct {
	client *client.APIClient
}

// NewRankingService creates a new ranking service
func NewRankingService(apiClient *client.APIClient) *RankingService {
	return &RankingService{client: apiClient}
}

// HasToken reports whether submissions can be authenticated.
func (s *RankingService) HasToken() bool {
	return s.client.HasToken()
}

// UploadCV uploads a CV archive and returns the extraction batch handle.
func (s *RankingService) UploadCV(ctx context.Context, path string) (models.TaskHandle, error) {
	logger.Debug("Uploading CV archive %s", path)

	var response models.UploadCVResponse
	if err := s.client.PostFile(ctx, uploadCVEndpoint, uploadField, path, &response); err != nil {
		return models.TaskHandle{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if !response.Success {
		return models.TaskHandle{}, fmt.Errorf("%w: CV upload: %s", ErrRejected, response.Reason())
	}
	if response.BatchTaskID == "" {
		return models.TaskHandle{}, fmt.Errorf("%w: CV upload returned no batch task id", ErrRejected)
	}

	logger.Info("CV archive accepted as batch %s (%d files)", response.BatchTaskID, response.TotalFiles)
	return models.TaskHandle{ID: response.BatchTaskID, Kind: models.KindBatch}, nil
}

// UploadJD uploads a job description and returns the analysis batch handle.
func (s *RankingService) UploadJD(ctx context.Context, path string) (models.TaskHandle, error) {
	logger.Debug("Uploading job description %s", path)

	var response models.UploadJDResponse
	if err := s.client.PostFile(ctx, uploadJDEndpoint, uploadField, path, &response); err != nil {
		return models.TaskHandle{}, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if !response.Success {
		return models.TaskHandle{}, fmt.Errorf("%w: JD upload: %s", ErrRejected, response.Reason())
	}
	if response.BatchTaskID == "" {
		return models.TaskHandle{}, fmt.Errorf("%w: JD upload returned no batch task id", ErrRejected)
	}

	logger.Info("Job description accepted as batch %s", response.BatchTaskID)
	return models.TaskHandle{ID: response.BatchTaskID, Kind: models.KindBatch}, nil
}

// StartRanking starts asynchronous ranking of candidateIDs against a job
// posting. An empty candidateIDs ranks every candidate on the posting.
func (s *RankingService) StartRanking(ctx context.Context, jobPostingID string, candidateIDs []string) (models.TaskHandle, error) {
	endpoint := fmt.Sprintf("/ranking/job/%s", url.PathEscape(jobPostingID))
	request := models.RankingRequest{
		Sync:         false,
		SkipHardGate: true,
		CandidateIDs: candidateIDs,
	}

	var response models.RankingStartResponse
	if err := s.client.PostJSON(ctx, endpoint, request, &response); err != nil {
		return models.TaskHandle{}, fmt.Errorf("start ranking for %s: %w", jobPostingID, err)
	}
	if !response.Success {
		return models.TaskHandle{}, fmt.Errorf("%w: ranking: %s", ErrRejected, response.Reason())
	}
	if response.TaskID == "" {
		return models.TaskHandle{}, fmt.Errorf("%w: ranking returned no task id", ErrRejected)
	}

	logger.Info("Ranking of %d candidates started as task %s", len(candidateIDs), response.TaskID)
	return models.TaskHandle{ID: response.TaskID, Kind: models.KindSingle}, nil
}
